// Package sanitize projects persisted transfers into wire-safe, acyclic payloads.
// HTTP responses, push events and poll results all go through Transfer so their shapes never diverge.
package sanitize

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/models"
)

// TimeLayout is the single timestamp format used on every surface (UTC, microseconds).
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

type WireRecipient struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

type WireTransfer struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Amount      float64        `json:"amount"`
	Currency    string         `json:"currency"`
	Recipient   WireRecipient  `json:"recipient"`
	Status      string         `json:"status"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

func Timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func Transfer(t models.Transfer) WireTransfer {
	desc := ""
	if t.Description != nil {
		desc = *t.Description
	}
	amount, _ := t.Amount.Float64()
	return WireTransfer{
		ID:       t.ID,
		OwnerID:  t.OwnerID,
		Amount:   amount,
		Currency: strings.ToUpper(strings.TrimSpace(t.Currency)),
		Recipient: WireRecipient{
			Name:          t.Recipient.Name,
			AccountNumber: t.Recipient.AccountNumber,
			BankCode:      t.Recipient.BankCode,
		},
		Status:      string(t.Status),
		Description: desc,
		Metadata:    Metadata(t.Metadata),
		CreatedAt:   Timestamp(t.CreatedAt),
		UpdatedAt:   Timestamp(t.UpdatedAt),
	}
}

func Transfers(ts []models.Transfer) []WireTransfer {
	out := make([]WireTransfer, 0, len(ts))
	for _, t := range ts {
		out = append(out, Transfer(t))
	}
	return out
}

// Wire renormalizes an already sanitized transfer. Transfer's output is a fixed point of Wire.
func Wire(w WireTransfer) WireTransfer {
	out := w
	out.Currency = strings.ToUpper(strings.TrimSpace(w.Currency))
	out.Status = strings.ToUpper(w.Status)
	out.Metadata = Metadata(w.Metadata)
	out.CreatedAt = normalizeTimestamp(w.CreatedAt)
	out.UpdatedAt = normalizeTimestamp(w.UpdatedAt)
	if math.IsNaN(out.Amount) || math.IsInf(out.Amount, 0) {
		out.Amount = 0
	}
	return out
}

func normalizeTimestamp(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return Timestamp(t)
}

// Metadata cleans a metadata bag; the result is never nil.
func Metadata(m map[string]any) map[string]any {
	out := map[string]any{}
	if m == nil {
		return out
	}
	v, ok := clean(reflect.ValueOf(m), map[uintptr]bool{})
	if !ok {
		return out
	}
	if cm, ok := v.(map[string]any); ok {
		return cm
	}
	return out
}

// Value reduces v to JSON primitives, maps and slices. ok is false when v must be dropped.
func Value(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	return clean(reflect.ValueOf(v), map[uintptr]bool{})
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	numberType  = reflect.TypeOf(json.Number(""))
)

// seen holds the container pointers on the current path; revisiting one means a cycle.
func clean(v reflect.Value, seen map[uintptr]bool) (any, bool) {
	if !v.IsValid() {
		return nil, true
	}

	switch v.Type() {
	case timeType:
		return Timestamp(v.Interface().(time.Time)), true
	case decimalType:
		f, _ := v.Interface().(decimal.Decimal).Float64()
		return f, true
	case numberType:
		f, err := v.Interface().(json.Number).Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	}

	switch v.Kind() {
	case reflect.String:
		return v.String(), true
	case reflect.Bool:
		return v.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case reflect.Interface:
		if v.IsNil() {
			return nil, true
		}
		return clean(v.Elem(), seen)
	case reflect.Pointer:
		if v.IsNil() {
			return nil, true
		}
		p := v.Pointer()
		if seen[p] {
			return nil, false
		}
		seen[p] = true
		defer delete(seen, p)
		return clean(v.Elem(), seen)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		if v.IsNil() {
			return map[string]any{}, true
		}
		p := v.Pointer()
		if seen[p] {
			return nil, false
		}
		seen[p] = true
		defer delete(seen, p)
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			if cv, ok := clean(iter.Value(), seen); ok {
				out[iter.Key().String()] = cv
			}
		}
		return out, true
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice {
			if v.IsNil() {
				return []any{}, true
			}
			p := v.Pointer()
			if seen[p] {
				return nil, false
			}
			seen[p] = true
			defer delete(seen, p)
		}
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if cv, ok := clean(v.Index(i), seen); ok {
				out = append(out, cv)
			}
		}
		return out, true
	default:
		// func, chan, complex, unsafe pointers and structs
		return nil, false
	}
}
