package auth

import "strings"

// DevVerifier accepts "dev-<id>" (user) and "dev-admin-<id>" (admin) bearer tokens in
// front of next. It must only be wired when APP_ENV=dev.
type DevVerifier struct {
	Next Verifier
}

func (d DevVerifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if id, ok := strings.CutPrefix(token, "dev-admin-"); ok && id != "" {
		return Identity{ID: id, Role: RoleAdmin}, nil
	}
	if id, ok := strings.CutPrefix(token, "dev-"); ok && id != "" {
		return Identity{ID: id, Role: RoleUser}, nil
	}
	if d.Next == nil {
		return Identity{}, ErrInvalidToken
	}
	return d.Next.Verify(token)
}
