package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/transferflow/internal/api/httpx"
	"github.com/baharkarakas/transferflow/internal/middleware"
	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/realtime"
	"github.com/baharkarakas/transferflow/internal/services"
)

type AdminHandler struct {
	transfers *services.TransferService
	admin     *services.AdminService
	hub       *realtime.Hub
	log       *slog.Logger
}

func NewAdminHandler(ts *services.TransferService, as *services.AdminService, hub *realtime.Hub, log *slog.Logger) *AdminHandler {
	return &AdminHandler{transfers: ts, admin: as, hub: hub, log: log}
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	res, err := h.admin.ListPending(r.Context(), page, limit)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	q := r.URL.Query()
	res, err := h.admin.List(r.Context(), services.ListFilter{
		Status:  models.TransferStatus(strings.ToUpper(q.Get("status"))),
		OwnerID: q.Get("owner_id"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

type approveReq struct {
	Notes string `json:"notes"`
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.IdentityFrom(r.Context())
	var req approveReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	t, err := h.transfers.Approve(r.Context(), chi.URLParam(r, "id"), admin, req.Notes)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

type rejectReq struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.IdentityFrom(r.Context())
	var req rejectReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	t, err := h.transfers.Reject(r.Context(), chi.URLParam(r, "id"), admin, req.Reason)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

type settleReq struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note"`
}

func (h *AdminHandler) Settle(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.IdentityFrom(r.Context())
	var req settleReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	outcome := models.TransferStatus(strings.ToUpper(strings.TrimSpace(req.Outcome)))
	t, err := h.transfers.Settle(r.Context(), chi.URLParam(r, "id"), admin.ID, outcome, req.Note)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.admin.Stats(r.Context())
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (h *AdminHandler) RealtimeStats(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.hub.Stats())
}
