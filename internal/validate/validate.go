package validate

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type ErrField struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

type Errs []ErrField

func (e Errs) Error() string {
	var b strings.Builder
	for i, ef := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ef.Field + ": " + ef.Msg)
	}
	return b.String()
}

// Add appends the non-nil results and returns the collection.
func (e Errs) Add(fields ...*ErrField) Errs {
	for _, f := range fields {
		if f != nil {
			e = append(e, *f)
		}
	}
	return e
}

// Helpers
func Required(field, value string) *ErrField {
	if strings.TrimSpace(value) == "" {
		return &ErrField{Field: field, Msg: "required"}
	}
	return nil
}

func MinLen(field, value string, min int) *ErrField {
	if utf8.RuneCountInString(strings.TrimSpace(value)) < min {
		return &ErrField{Field: field, Msg: "must be at least " + strconv.Itoa(min) + " characters"}
	}
	return nil
}

func MaxLen(field, value string, max int) *ErrField {
	if utf8.RuneCountInString(value) > max {
		return &ErrField{Field: field, Msg: "must be at most " + strconv.Itoa(max) + " characters"}
	}
	return nil
}

func Match(field, value string, re *regexp.Regexp, msg string) *ErrField {
	if !re.MatchString(value) {
		return &ErrField{Field: field, Msg: msg}
	}
	return nil
}

func Positive(field string, v decimal.Decimal) *ErrField {
	if !v.IsPositive() {
		return &ErrField{Field: field, Msg: "must be > 0"}
	}
	return nil
}

// MaxScale rejects values with more than places fractional digits.
func MaxScale(field string, v decimal.Decimal, places int32) *ErrField {
	if !v.Equal(v.Truncate(places)) {
		return &ErrField{Field: field, Msg: "must have at most " + strconv.Itoa(int(places)) + " decimal places"}
	}
	return nil
}
