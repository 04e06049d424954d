package auth

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyAccessToken(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)

	pair, err := tm.GeneratePair("u-1", RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	id, err := tm.Verify(pair.Access)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.ID != "u-1" || !id.IsAdmin() {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := tm.Verify(pair.Refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not authenticate requests, got %v", err)
	}
	if _, err := tm.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: %v", err)
	}
	if _, err := tm.Verify("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("malformed token: %v", err)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }

	pair, err := tm.GeneratePair("u-1", RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	tm.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := tm.Verify(pair.Access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}

	other := NewTokenManager("other-secret", "refresh-secret", time.Minute, time.Hour)
	other.now = func() time.Time { return issued }
	forged, _ := other.GeneratePair("u-2", RoleAdmin)
	tm.now = func() time.Time { return issued }
	if _, err := tm.Verify(forged.Access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token signed with another secret accepted: %v", err)
	}
}

func TestParseAnyDistinguishesRefresh(t *testing.T) {
	tm := NewTokenManager("a", "r", time.Minute, time.Hour)
	pair, _ := tm.GeneratePair("u-9", RoleUser)

	c, isRefresh, err := tm.ParseAny(pair.Refresh)
	if err != nil || !isRefresh || c.UserID != "u-9" {
		t.Fatalf("refresh parse: claims=%+v refresh=%v err=%v", c, isRefresh, err)
	}
	c, isRefresh, err = tm.ParseAny(pair.Access)
	if err != nil || isRefresh || c.Role != RoleUser {
		t.Fatalf("access parse: claims=%+v refresh=%v err=%v", c, isRefresh, err)
	}
}
