package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/apperr"
	"github.com/baharkarakas/transferflow/internal/auth"
	"github.com/baharkarakas/transferflow/internal/metrics"
	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/ratelimit"
	repo "github.com/baharkarakas/transferflow/internal/repository"
	"github.com/baharkarakas/transferflow/internal/sanitize"
	"github.com/baharkarakas/transferflow/internal/validate"
)

const (
	DefaultUpdatesLimit = 50
	MaxUpdatesLimit     = 200

	// SystemActor is recorded as the actor of automated settlements.
	SystemActor = "system"
)

var (
	accountRe  = regexp.MustCompile(`^[A-Z0-9]{6,34}$`)
	bankCodeRe = regexp.MustCompile(`^[A-Z0-9]{4,11}$`)
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

	maxAmount = decimal.RequireFromString("999999999999999999.99")
)

// Emitter receives committed transfers. Implementations must not block.
type Emitter interface {
	EmitCreated(ownerID string, t models.Transfer)
	EmitTransition(ownerID string, t models.Transfer)
}

type TransferService struct {
	transfers repo.Transfers
	balances  *BalanceService
	audit     repo.AuditLogs
	limiter   ratelimit.Limiter
	emitter   Emitter
	log       *slog.Logger
	now       func() time.Time
}

type TransferDeps struct {
	Transfers repo.Transfers
	Balances  repo.Balances
	AuditLogs repo.AuditLogs
	Limiter   ratelimit.Limiter // nil disables creation throttling
	Emitter   Emitter
	Log       *slog.Logger
}

func NewTransferService(d TransferDeps) *TransferService {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &TransferService{
		transfers: d.Transfers,
		balances:  NewBalanceService(d.Balances),
		audit:     d.AuditLogs,
		limiter:   d.Limiter,
		emitter:   d.Emitter,
		log:       log,
		now:       time.Now,
	}
}

type CreateTransferInput struct {
	Caller      auth.Identity
	ClientIP    string
	Amount      decimal.Decimal
	Currency    string
	Recipient   models.Recipient
	Description string
}

func (s *TransferService) Create(ctx context.Context, in CreateTransferInput) (sanitize.WireTransfer, error) {
	if err := s.admit(ctx, in.Caller); err != nil {
		return sanitize.WireTransfer{}, err
	}

	in = normalize(in)
	if errs := validateCreate(in); len(errs) > 0 {
		return sanitize.WireTransfer{}, apperr.Validation(errs)
	}

	bal, err := s.balances.Current(ctx, in.Caller.ID)
	if err != nil {
		return sanitize.WireTransfer{}, apperr.Internal("balance lookup failed", err)
	}
	if in.Amount.GreaterThan(bal.Amount) {
		return sanitize.WireTransfer{}, apperr.InsufficientFunds(bal.Amount.StringFixed(2))
	}

	t := models.Transfer{
		OwnerID:   in.Caller.ID,
		Amount:    in.Amount,
		Currency:  in.Currency,
		Recipient: in.Recipient,
		Status:    models.TransferPending,
		Metadata:  map[string]any{},
	}
	if in.Description != "" {
		desc := in.Description
		t.Description = &desc
	}

	created, err := s.transfers.Create(ctx, t)
	if err != nil {
		return sanitize.WireTransfer{}, apperr.Internal("could not store transfer", err)
	}
	metrics.TransfersCreated.Inc()
	s.writeAudit(ctx, created.ID, "created", map[string]any{
		"owner_id":  created.OwnerID,
		"amount":    created.Amount.StringFixed(2),
		"currency":  created.Currency,
		"client_ip": in.ClientIP,
	})
	s.log.Info("transfer created", "transfer_id", created.ID, "owner_id", created.OwnerID)

	if s.emitter != nil {
		s.emitter.EmitCreated(created.OwnerID, created)
	}
	return sanitize.Transfer(created), nil
}

// admit applies the creation limiter, one bucket per identity so changing networks does not
// reset it. Admins are exempt and limiter failures let the request through.
func (s *TransferService) admit(ctx context.Context, caller auth.Identity) error {
	if s.limiter == nil || caller.IsAdmin() {
		return nil
	}
	d, err := s.limiter.Allow(ctx, "create:"+caller.ID)
	if err != nil {
		s.log.Warn("transfer rate limiter unavailable", "owner_id", caller.ID, "err", err)
		return nil
	}
	if !d.Allowed {
		metrics.RateLimited.Inc()
		return apperr.RateLimited(d.RetryAfter)
	}
	return nil
}

func normalize(in CreateTransferInput) CreateTransferInput {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Recipient.Name = strings.TrimSpace(in.Recipient.Name)
	in.Recipient.AccountNumber = strings.ToUpper(strings.Join(strings.Fields(in.Recipient.AccountNumber), ""))
	in.Recipient.BankCode = strings.ToUpper(strings.TrimSpace(in.Recipient.BankCode))
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func validateCreate(in CreateTransferInput) validate.Errs {
	var errs validate.Errs
	errs = errs.Add(
		validate.Positive("amount", in.Amount),
		validate.MaxScale("amount", in.Amount, 2),
		validate.Match("currency", in.Currency, currencyRe, "must be a 3-letter currency code"),
		validate.Required("recipient.name", in.Recipient.Name),
		validate.MaxLen("recipient.name", in.Recipient.Name, 100),
		validate.Match("recipient.account_number", in.Recipient.AccountNumber, accountRe, "must be 6-34 letters or digits"),
		validate.Match("recipient.bank_code", in.Recipient.BankCode, bankCodeRe, "must be 4-11 letters or digits"),
		validate.MaxLen("description", in.Description, 500),
	)
	if in.Recipient.Name != "" {
		errs = errs.Add(validate.MinLen("recipient.name", in.Recipient.Name, 2))
	}
	if in.Amount.GreaterThan(maxAmount) {
		errs = errs.Add(&validate.ErrField{Field: "amount", Msg: "is too large"})
	}
	return errs
}

func (s *TransferService) Approve(ctx context.Context, id string, admin auth.Identity, notes string) (sanitize.WireTransfer, error) {
	patch := map[string]any{
		"approved_by": admin.ID,
		"approved_at": sanitize.Timestamp(s.now()),
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		patch["approval_notes"] = notes
	}
	return s.transition(ctx, id, models.TransferPending, models.TransferProcessing, patch, "approved")
}

func (s *TransferService) Reject(ctx context.Context, id string, admin auth.Identity, reason string) (sanitize.WireTransfer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return sanitize.WireTransfer{}, apperr.ErrMissingReason
	}
	if len([]rune(reason)) > 500 {
		return sanitize.WireTransfer{}, apperr.Validation(validate.Errs{{Field: "reason", Msg: "must be at most 500 characters"}})
	}
	patch := map[string]any{
		"rejected_by":      admin.ID,
		"rejected_at":      sanitize.Timestamp(s.now()),
		"rejection_reason": reason,
	}
	return s.transition(ctx, id, models.TransferPending, models.TransferRejected, patch, "rejected")
}

// Settle finishes a PROCESSING transfer as COMPLETED or FAILED. The settlement sweeper and
// the manual admin route both land here.
func (s *TransferService) Settle(ctx context.Context, id, actor string, outcome models.TransferStatus, note string) (sanitize.WireTransfer, error) {
	if outcome != models.TransferCompleted && outcome != models.TransferFailed {
		return sanitize.WireTransfer{}, apperr.Validation(validate.Errs{{Field: "outcome", Msg: "must be COMPLETED or FAILED"}})
	}
	patch := map[string]any{
		"settled_by": actor,
		"settled_at": sanitize.Timestamp(s.now()),
	}
	if note = strings.TrimSpace(note); note != "" {
		patch["settlement_note"] = note
		if outcome == models.TransferFailed {
			patch["failure_reason"] = note
		}
	}
	return s.transition(ctx, id, models.TransferProcessing, outcome, patch, strings.ToLower(string(outcome)))
}

func (s *TransferService) transition(ctx context.Context, id string, from, to models.TransferStatus, patch map[string]any, action string) (sanitize.WireTransfer, error) {
	if strings.TrimSpace(id) == "" {
		return sanitize.WireTransfer{}, apperr.NotFound("transfer not found")
	}
	if !models.CanTransition(from, to) {
		return sanitize.WireTransfer{}, apperr.Internal("illegal transfer transition", fmt.Errorf("%s -> %s", from, to))
	}

	t, err := s.transfers.Transition(ctx, id, from, to, patch)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return sanitize.WireTransfer{}, apperr.NotFound("transfer not found")
	case errors.Is(err, repo.ErrPreconditionFailed):
		metrics.TransitionConflicts.Inc()
		return sanitize.WireTransfer{}, apperr.AlreadyProcessed("transfer already processed")
	case err != nil:
		return sanitize.WireTransfer{}, apperr.Internal("could not update transfer", err)
	}

	metrics.TransferTransitions.WithLabelValues(string(to)).Inc()
	s.writeAudit(ctx, t.ID, action, patch)
	s.log.Info("transfer transitioned", "transfer_id", t.ID, "from", from, "to", to)

	if s.emitter != nil {
		s.emitter.EmitTransition(t.OwnerID, t)
	}
	return sanitize.Transfer(t), nil
}

// Get returns a transfer to its owner or to an admin. Anyone else sees NotFound.
func (s *TransferService) Get(ctx context.Context, caller auth.Identity, id string) (sanitize.WireTransfer, error) {
	t, err := s.transfers.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return sanitize.WireTransfer{}, apperr.NotFound("transfer not found")
	}
	if err != nil {
		return sanitize.WireTransfer{}, apperr.Internal("could not load transfer", err)
	}
	if t.OwnerID != caller.ID && !caller.IsAdmin() {
		return sanitize.WireTransfer{}, apperr.NotFound("transfer not found")
	}
	return sanitize.Transfer(t), nil
}

type UpdatesResult struct {
	Transfers  []sanitize.WireTransfer `json:"transfers"`
	NextSince  string                  `json:"next_since"`
	HasMore    bool                    `json:"has_more"`
	ServerTime string                  `json:"server_time"`
}

// Updates returns every record visible to caller with updated_at > since, oldest change first.
// Users see their own transfers, admins the pending queue.
func (s *TransferService) Updates(ctx context.Context, caller auth.Identity, since time.Time, limit int) (UpdatesResult, error) {
	if limit <= 0 {
		limit = DefaultUpdatesLimit
	}
	if limit > MaxUpdatesLimit {
		limit = MaxUpdatesLimit
	}
	if since.IsZero() {
		since = time.Unix(0, 0)
	}
	since = since.UTC()

	f := repo.UpdatesFilter{Since: since, Limit: limit + 1}
	if caller.IsAdmin() {
		f.Status = models.TransferPending
	} else {
		f.OwnerID = caller.ID
	}

	serverTime := s.now()
	rows, err := s.transfers.UpdatedSince(ctx, f)
	if err != nil {
		return UpdatesResult{}, apperr.Internal("could not load updates", err)
	}

	res := UpdatesResult{NextSince: sanitize.Timestamp(since), ServerTime: sanitize.Timestamp(serverTime)}
	if len(rows) > limit {
		rows = rows[:limit]
		res.HasMore = true
	}
	res.Transfers = sanitize.Transfers(rows)
	if n := len(rows); n > 0 {
		res.NextSince = sanitize.Timestamp(rows[n-1].UpdatedAt)
	}
	return res, nil
}

func (s *TransferService) writeAudit(ctx context.Context, transferID, action string, details map[string]any) {
	if s.audit == nil {
		return
	}
	id := transferID
	err := s.audit.Create(ctx, models.AuditLog{
		EntityType: "transfer",
		EntityID:   &id,
		Action:     action,
		Details:    details,
	})
	if err != nil {
		s.log.Warn("audit log write failed", "transfer_id", transferID, "action", action, "err", err)
	}
}
