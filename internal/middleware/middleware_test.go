package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/baharkarakas/transferflow/internal/auth"
	"github.com/baharkarakas/transferflow/internal/ratelimit"
)

type stubVerifier map[string]auth.Identity

func (s stubVerifier) Verify(token string) (auth.Identity, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return auth.Identity{}, auth.ErrInvalidToken
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		_, _ = w.Write([]byte(id.ID + ":" + id.Role))
	})
}

func TestAuthAndRBAC(t *testing.T) {
	am := NewAuthMiddleware(stubVerifier{
		"user-token":  {ID: "u1", Role: auth.RoleUser},
		"admin-token": {ID: "a1", Role: auth.RoleAdmin},
	})
	h := am.Auth(RBAC(auth.RoleAdmin)(echoIdentity()))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"user on admin route", "Bearer user-token", http.StatusForbidden},
		{"admin", "bearer admin-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusOK && rec.Body.String() != "a1:admin" {
				t.Fatalf("identity not propagated: %q", rec.Body.String())
			}
		})
	}
}

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 26 || rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected a ULID, got %q / %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "upstream-1" {
		t.Fatalf("incoming id should be kept, got %q", seen)
	}
}

func TestRecoverReturns500(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimitPerIP(t *testing.T) {
	h := RateLimit(ratelimit.NewWindow(2, time.Minute))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	call("10.0.0.1")
	call("10.0.0.1")
	rec := call("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("third call: status=%d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if rec := call("10.0.0.2"); rec.Code != http.StatusOK {
		t.Fatalf("other ip throttled: %d", rec.Code)
	}

	open := RateLimit(failingLimiter{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("limiter errors must fail open, got %d", rec.Code)
	}
}

func TestTrustedRealIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	var seen string
	h := TrustedRealIP(proxies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIP(r)
	}))

	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct peer", "192.0.2.1:1234", "", "", "192.0.2.1"},
		{"spoofed forwarded-for", "192.0.2.1:1234", "203.0.113.5", "", "192.0.2.1"},
		{"spoofed real-ip", "192.0.2.1:1234", "", "198.51.100.7", "192.0.2.1"},
		{"trusted proxy forwarded-for", "10.1.2.3:443", "203.0.113.5, 10.0.0.1", "", "203.0.113.5"},
		{"trusted proxy real-ip", "10.1.2.3:443", "", "198.51.100.7", "198.51.100.7"},
		{"trusted proxy garbage header", "10.1.2.3:443", "not-an-ip", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if seen != tt.want {
				t.Fatalf("client ip = %q, want %q", seen, tt.want)
			}
		})
	}
}

func TestRateLimitIgnoresRotatedForwardedFor(t *testing.T) {
	h := TrustedRealIP(nil)(RateLimit(ratelimit.NewWindow(2, time.Minute))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[2] != http.StatusTooManyRequests || codes[3] != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For escaped the limiter: %v", codes)
	}
}
