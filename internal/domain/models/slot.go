package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Viewers expect numeric prices.
	decimal.MarshalJSONWithoutQuotes = true
}

// SlotKey identifies one signal slot: "<term>_<signal>_<indicator>".
type SlotKey string

const (
	SlotLongBuy1   SlotKey = "long_buy_1"
	SlotLongSell1  SlotKey = "long_sell_1"
	SlotShortBuy2  SlotKey = "short_buy_2"
	SlotShortBuy3  SlotKey = "short_buy_3"
	SlotShortSell2 SlotKey = "short_sell_2"
	SlotShortSell3 SlotKey = "short_sell_3"
)

// SlotSetVersion is bumped whenever the slot enumeration changes.
const SlotSetVersion = 2

var slotOrder = []SlotKey{
	SlotLongBuy1,
	SlotLongSell1,
	SlotShortBuy2,
	SlotShortBuy3,
	SlotShortSell2,
	SlotShortSell3,
}

var slotSet = func() map[SlotKey]struct{} {
	m := make(map[SlotKey]struct{}, len(slotOrder))
	for _, k := range slotOrder {
		m[k] = struct{}{}
	}
	return m
}()

// AllSlots returns the closed slot enumeration in canonical order.
func AllSlots() []SlotKey {
	out := make([]SlotKey, len(slotOrder))
	copy(out, slotOrder)
	return out
}

// Valid reports whether k belongs to the current enumeration.
func (k SlotKey) Valid() bool {
	_, ok := slotSet[k]
	return ok
}

// ParseSlotKey composes and validates a slot key from its parts.
func ParseSlotKey(term, signal, indicator string) (SlotKey, error) {
	k := SlotKey(fmt.Sprintf("%s_%s_%s",
		strings.ToLower(strings.TrimSpace(term)),
		strings.ToLower(strings.TrimSpace(signal)),
		strings.TrimSpace(indicator)))
	if !k.Valid() {
		return "", &ValidationError{
			Field:   "indicator",
			Code:    "ERR_UNKNOWN_SLOT",
			Message: fmt.Sprintf("unknown slot %q", k),
			Err:     ErrUnknownSlot,
		}
	}
	return k, nil
}

// SlotValue is the latest signal observed for one slot.
type SlotValue struct {
	Price      decimal.Decimal
	ObservedAt time.Time
	UpdatedAt  time.Time
}

type slotValueJSON struct {
	Price    decimal.Decimal `json:"price"`
	Time     TimeString      `json:"time"`
	NewSince *int64          `json:"newSince,omitempty"`
}

// MarshalJSON renders the wire shape {price, time, newSince}.
func (v SlotValue) MarshalJSON() ([]byte, error) {
	out := slotValueJSON{Price: v.Price}
	if !v.ObservedAt.IsZero() {
		out.Time = TimeString(v.ObservedAt.UTC().Format(time.RFC3339Nano))
	}
	if !v.UpdatedAt.IsZero() {
		ms := v.UpdatedAt.UnixMilli()
		out.NewSince = &ms
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the wire shape; newSince is optional. The time may be
// RFC3339 or a unix epoch, as on the webhook.
func (v *SlotValue) UnmarshalJSON(b []byte) error {
	var in slotValueJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	v.Price = in.Price
	v.ObservedAt = time.Time{}
	if in.Time != "" {
		t, ok := in.Time.Parse()
		if !ok {
			return fmt.Errorf("slot time %q: %w", in.Time, ErrInvalidTime)
		}
		v.ObservedAt = t.UTC()
	}
	v.UpdatedAt = time.Time{}
	if in.NewSince != nil {
		v.UpdatedAt = time.UnixMilli(*in.NewSince).UTC()
	}
	return nil
}

// Slots maps every slot of the enumeration to its value (nil = empty).
type Slots map[SlotKey]*SlotValue

// NewSlots returns a mapping with every slot present and empty.
func NewSlots() Slots {
	s := make(Slots, len(slotOrder))
	for _, k := range slotOrder {
		s[k] = nil
	}
	return s
}

// Clone deep-copies the slot mapping.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		if v == nil {
			out[k] = nil
			continue
		}
		cp := *v
		out[k] = &cp
	}
	return out
}
