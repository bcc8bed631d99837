package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"SignalGrid/pkg/util"
)

// SignalRequest is the inbound webhook / topic payload. All fields are required.
type SignalRequest struct {
	Symbol    string          `json:"symbol" validate:"required"`
	Term      string          `json:"term" validate:"required"`
	Signal    string          `json:"signal" validate:"required"`
	Indicator IndicatorString `json:"indicator" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Time      TimeString      `json:"time" validate:"required"`
}

// SignalEvent is a validated signal ready for the grid engine.
type SignalEvent struct {
	Key        GridKey
	Slot       SlotKey
	Price      decimal.Decimal
	ObservedAt time.Time
}

// ToEvent validates the request and resolves its grid key and slot.
func (r *SignalRequest) ToEvent() (SignalEvent, error) {
	missing := func(field string) error {
		return &ValidationError{Field: field, Code: "ERR_REQUIRED", Message: field + " is required", Err: ErrMissingField}
	}
	symbol := strings.TrimSpace(r.Symbol)
	switch {
	case symbol == "":
		return SignalEvent{}, missing("symbol")
	case strings.TrimSpace(r.Term) == "":
		return SignalEvent{}, missing("term")
	case strings.TrimSpace(r.Signal) == "":
		return SignalEvent{}, missing("signal")
	case strings.TrimSpace(string(r.Indicator)) == "":
		return SignalEvent{}, missing("indicator")
	case r.Price.IsZero():
		return SignalEvent{}, missing("price")
	case strings.TrimSpace(string(r.Time)) == "":
		return SignalEvent{}, missing("time")
	}
	observed, ok := r.Time.Parse()
	if !ok {
		return SignalEvent{}, &ValidationError{Field: "time", Code: "ERR_TIME", Message: "time must be RFC3339 or unix epoch", Err: ErrInvalidTime}
	}
	slot, err := ParseSlotKey(r.Term, r.Signal, string(r.Indicator))
	if err != nil {
		return SignalEvent{}, err
	}
	return SignalEvent{
		Key:        GridKey{Instrument: symbol, TradingDay: TradingDayOf(observed)},
		Slot:       slot,
		Price:      r.Price,
		ObservedAt: observed,
	}, nil
}

// IndicatorString accepts the indicator ordinal as either a JSON string or number.
type IndicatorString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *IndicatorString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = ""
		return nil
	}
	*s = IndicatorString(strings.Trim(raw, `"`))
	return nil
}

// TimeString accepts a signal time as either a JSON string or number. Numbers
// are unix seconds or milliseconds.
type TimeString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *TimeString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = TimeString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("time: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("time %s: not an integer epoch", raw)
	}
	*s = TimeString(n.String())
	return nil
}

// Parse resolves the time through util.ParseTime.
func (s TimeString) Parse() (time.Time, bool) {
	return util.ParseTime(strings.TrimSpace(string(s)))
}
