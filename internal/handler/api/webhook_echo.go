package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"SignalGrid/internal/domain/models"
	xhttp "SignalGrid/pkg/http"
	applogger "SignalGrid/pkg/logger"
)

// WebhookAccepted is the body data of a successful webhook call.
const WebhookAccepted = "Webhook received!"

// SignalAcceptor ingests one validated webhook request.
type SignalAcceptor interface {
	Accept(ctx context.Context, req *models.SignalRequest) (*models.GridRecord, error)
}

// RateLimiter decides whether a caller may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

// WebhookHandler receives trading signals from alerting services.
type WebhookHandler struct {
	ingest  SignalAcceptor
	limiter RateLimiter
	log     *applogger.Logger
}

// NewWebhookHandler creates the handler. limiter may be nil to disable rate limiting.
func NewWebhookHandler(ingest SignalAcceptor, limiter RateLimiter, log *applogger.Logger) *WebhookHandler {
	if log == nil {
		log = applogger.Nop()
	}
	return &WebhookHandler{ingest: ingest, limiter: limiter, log: log}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook", h.Receive)
}

// Receive handles POST /webhook.
func (h *WebhookHandler) Receive(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		return xhttp.TooManyRequestsResponse(c, []*xhttp.AppError{
			xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many webhook calls", http.StatusTooManyRequests).
				WithParam("remote", c.RealIP()),
		})
	}

	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.log.Warn("invalid webhook data", applogger.String("remote", c.RealIP()), applogger.Any("errors", verr))
		return xhttp.BadRequestResponse(c, verr)
	}

	if _, err := h.ingest.Accept(c.Request().Context(), req); err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			return xhttp.AppErrorResponse(c,
				xhttp.NewAppError(ve.Code, ve.Field, ve.Message, http.StatusBadRequest).WithError(err))
		}
		h.log.Error("webhook ingest failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, WebhookAccepted)
}
