package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/baharkarakas/transferflow/internal/api/httpx"
	"github.com/baharkarakas/transferflow/internal/auth"
)

// AuthHandler mints tokens for local development. Session issuance belongs to the
// identity provider in every other environment.
type AuthHandler struct {
	TM     *auth.TokenManager
	AppEnv string
}

func NewAuthHandler(tm *auth.TokenManager, appEnv string) *AuthHandler {
	return &AuthHandler{TM: tm, AppEnv: appEnv}
}

type devTokenReq struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (h *AuthHandler) DevToken(w http.ResponseWriter, r *http.Request) {
	if h.AppEnv != "dev" {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found", nil)
		return
	}
	var req devTokenReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteAppError(w, r, nil, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "00000000-0000-0000-0000-000000000000"
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}
	if req.Role != auth.RoleUser && req.Role != auth.RoleAdmin {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "role must be user or admin", nil)
		return
	}
	h.writePair(w, r, req.UserID, req.Role)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "refresh_token is required", nil)
		return
	}
	claims, isRefresh, err := h.TM.ParseAny(req.RefreshToken)
	if err != nil || !isRefresh {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token", nil)
		return
	}
	h.writePair(w, r, claims.UserID, claims.Role)
}

func (h *AuthHandler) writePair(w http.ResponseWriter, r *http.Request, userID, role string) {
	pair, err := h.TM.GeneratePair(userID, role)
	if err != nil {
		httpx.WriteAppError(w, r, nil, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		ExpiresIn:    int64(time.Until(pair.AccessExp).Truncate(time.Second).Seconds()),
	})
}
