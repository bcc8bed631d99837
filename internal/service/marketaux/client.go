// Package marketaux fetches market headlines from the MarketAux news API.
package marketaux

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"SignalGrid/internal/domain/models"
	xhttp "SignalGrid/pkg/http"
)

// ErrNoData is returned when the response carries no data array.
var ErrNoData = errors.New("marketaux: response has no data")

// Config selects the query sent on every fetch.
type Config struct {
	BaseURL   string
	APIKey    string
	Countries string
	Language  string
	Limit     int
}

// Client implements repository.NewsFeed.
type Client struct {
	cfg  Config
	http *xhttp.Client
}

type newsResponse struct {
	Data *[]models.Headline `json:"data"`
}

// New creates a MarketAux client. Timeouts are left to the caller's context.
func New(cfg Config, httpClient *xhttp.Client) *Client {
	if httpClient == nil {
		httpClient = xhttp.NewClient()
	}
	return &Client{cfg: cfg, http: httpClient}
}

// FetchHeadlines returns the current headline list.
func (c *Client) FetchHeadlines(ctx context.Context) ([]models.Headline, error) {
	var resp newsResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL,
		QueryParams: c.query(),
		Headers:     map[string]string{"Accept": "application/json"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("marketaux fetch: %w", err)
	}
	if resp.Data == nil {
		return nil, ErrNoData
	}
	return *resp.Data, nil
}

func (c *Client) query() map[string][]string {
	q := map[string][]string{
		"filter_entities": {"true"},
		"api_token":       {c.cfg.APIKey},
	}
	if c.cfg.Countries != "" {
		q["countries"] = []string{c.cfg.Countries}
	}
	if c.cfg.Language != "" {
		q["language"] = []string{c.cfg.Language}
	}
	if c.cfg.Limit > 0 {
		q["limit"] = []string{strconv.Itoa(c.cfg.Limit)}
	}
	return q
}
