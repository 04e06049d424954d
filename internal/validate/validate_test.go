package validate

import (
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
)

func TestErrsAddSkipsNil(t *testing.T) {
	var errs Errs
	errs = errs.Add(
		Required("name", "  "),
		MinLen("account_number", "12345678", 6),
		Positive("amount", decimal.NewFromInt(-100)),
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs.Error() != "name: required; amount: must be > 0" {
		t.Fatalf("unexpected message %q", errs.Error())
	}
}

func TestMaxScale(t *testing.T) {
	if f := MaxScale("amount", decimal.RequireFromString("500.00"), 2); f != nil {
		t.Fatalf("500.00 should pass, got %v", f)
	}
	if f := MaxScale("amount", decimal.RequireFromString("1.005"), 2); f == nil {
		t.Fatal("1.005 should fail")
	}
}

func TestMatchAndLengths(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z]{3}$`)
	if Match("currency", "USD", re, "bad") != nil {
		t.Fatal("USD should match")
	}
	if Match("currency", "usd1", re, "bad") == nil {
		t.Fatal("usd1 should not match")
	}
	if MaxLen("description", "héllo", 5) != nil {
		t.Fatal("rune count should be used for max length")
	}
	if MinLen("name", " a ", 2) == nil {
		t.Fatal("trimmed single rune must fail min length 2")
	}
}
