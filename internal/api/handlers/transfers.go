package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/api/httpx"
	"github.com/baharkarakas/transferflow/internal/apperr"
	"github.com/baharkarakas/transferflow/internal/middleware"
	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/sanitize"
	"github.com/baharkarakas/transferflow/internal/services"
	"github.com/baharkarakas/transferflow/internal/validate"
)

type TransferHandler struct {
	svc *services.TransferService
	log *slog.Logger
}

func NewTransferHandler(svc *services.TransferService, log *slog.Logger) *TransferHandler {
	return &TransferHandler{svc: svc, log: log}
}

type createTransferReq struct {
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Recipient   models.Recipient `json:"recipient"`
	Description string           `json:"description"`
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFrom(r.Context())

	var req createTransferReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	t, err := h.svc.Create(r.Context(), services.CreateTransferInput{
		Caller:      caller,
		ClientIP:    middleware.ClientIP(r),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Recipient:   req.Recipient,
		Description: req.Description,
	})
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFrom(r.Context())
	t, err := h.svc.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

// Updates is the polling reconciliation endpoint.
func (h *TransferHandler) Updates(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFrom(r.Context())

	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}

	res, err := h.svc.Updates(r.Context(), caller, since, limit)
	if err != nil {
		httpx.WriteAppError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// parseSince accepts the wire timestamp format, any RFC 3339 time, or unix milliseconds.
func parseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(sanitize.TimeLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms >= 0 {
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, apperr.Validation(validate.Errs{{Field: "since", Msg: "must be an RFC 3339 timestamp or unix milliseconds"}})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(validate.Errs{{Field: name, Msg: "must be a non-negative integer"}})
	}
	return n, nil
}
