package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified caller handed to every service call.
type Identity struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Verifier turns a bearer token into an identity. REST and the push channel share one.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	Type   string `json:"typ"` // "access" | "refresh"
	jwt.RegisteredClaims
}

type Pair struct {
	Access    string    `json:"access_token"`
	Refresh   string    `json:"refresh_token"`
	AccessExp time.Time `json:"access_expires_at"`
}

func (tm *TokenManager) GeneratePair(userID, role string) (Pair, error) {
	now := tm.now()

	access, err := tm.sign(tm.accessSecret, Claims{
		UserID: userID,
		Role:   role,
		Type:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessTTL)),
		},
	})
	if err != nil {
		return Pair{}, err
	}
	refresh, err := tm.sign(tm.refreshSecret, Claims{
		UserID: userID,
		Role:   role,
		Type:   "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.refreshTTL)),
		},
	})
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh, AccessExp: now.Add(tm.accessTTL).UTC()}, nil
}

func (tm *TokenManager) sign(secret []byte, c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// ParseAny tries the access secret first, then the refresh secret.
func (tm *TokenManager) ParseAny(tokenStr string) (*Claims, bool, error) {
	if c, err := tm.parse(tokenStr, tm.accessSecret, "access"); err == nil {
		return c, false, nil
	}
	if c, err := tm.parse(tokenStr, tm.refreshSecret, "refresh"); err == nil {
		return c, true, nil
	}
	return nil, false, ErrInvalidToken
}

// Verify accepts access tokens only.
func (tm *TokenManager) Verify(tokenStr string) (Identity, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return Identity{}, ErrInvalidToken
	}
	c, err := tm.parse(tokenStr, tm.accessSecret, "access")
	if err != nil {
		return Identity{}, err
	}
	if c.UserID == "" || (c.Role != RoleUser && c.Role != RoleAdmin) {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: c.UserID, Role: c.Role}, nil
}

func (tm *TokenManager) parse(tokenStr string, secret []byte, typ string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != typ {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
