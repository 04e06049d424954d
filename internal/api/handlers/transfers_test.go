package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/baharkarakas/transferflow/internal/apperr"
)

func TestParseSince(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 123456000, time.UTC)
	tests := []struct {
		name string
		in   string
		want time.Time
		bad  bool
	}{
		{"empty", "", time.Time{}, false},
		{"wire format", "2024-03-01T12:30:00.123456Z", want, false},
		{"rfc3339 offset", "2024-03-01T14:30:00.123456+02:00", want, false},
		{"unix millis", "1709296200123", time.UnixMilli(1709296200123), false},
		{"garbage", "yesterday", time.Time{}, true},
		{"negative millis", "-5", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSince(tt.in)
			if tt.bad {
				if !errors.Is(err, apperr.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}
