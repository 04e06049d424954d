package handlers

import (
	"log/slog"
	"net/http"

	"github.com/baharkarakas/transferflow/internal/api/httpx"
	"github.com/baharkarakas/transferflow/internal/middleware"
	"github.com/baharkarakas/transferflow/internal/services"
)

type BalanceHandler struct {
	svc *services.BalanceService
	log *slog.Logger
}

func NewBalanceHandler(svc *services.BalanceService, log *slog.Logger) *BalanceHandler {
	return &BalanceHandler{svc: svc, log: log}
}

// Current returns the caller's own balance; admins may pass ?user_id= to inspect another user.
func (h *BalanceHandler) Current(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFrom(r.Context())
	userID := caller.ID
	if q := r.URL.Query().Get("user_id"); q != "" && caller.IsAdmin() {
		userID = q
	}
	b, err := h.svc.Current(r.Context(), userID)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}
