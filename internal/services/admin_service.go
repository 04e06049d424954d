package services

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/apperr"
	"github.com/baharkarakas/transferflow/internal/models"
	repo "github.com/baharkarakas/transferflow/internal/repository"
	"github.com/baharkarakas/transferflow/internal/risk"
	"github.com/baharkarakas/transferflow/internal/sanitize"
	"github.com/baharkarakas/transferflow/internal/validate"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type AdminService struct {
	transfers   repo.Transfers
	assessor    *risk.Assessor
	statsWindow time.Duration
	now         func() time.Time
}

func NewAdminService(t repo.Transfers, a *risk.Assessor, statsWindow time.Duration) *AdminService {
	if statsWindow <= 0 {
		statsWindow = 30 * 24 * time.Hour
	}
	return &AdminService{transfers: t, assessor: a, statsWindow: statsWindow, now: time.Now}
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

func paginate(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	// keeps (page-1)*limit from overflowing into a negative offset
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

func newPagination(page, limit, total int) Pagination {
	pages := (total + limit - 1) / limit
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages, HasNext: page < pages}
}

type PendingTransfer struct {
	sanitize.WireTransfer
	WaitSeconds int64           `json:"wait_seconds"`
	Risk        risk.Assessment `json:"risk"`
}

type PendingPage struct {
	Transfers  []PendingTransfer `json:"transfers"`
	Pagination Pagination        `json:"pagination"`
}

// ListPending serves the review queue longest-waiting first.
func (s *AdminService) ListPending(ctx context.Context, page, limit int) (PendingPage, error) {
	page, limit = paginate(page, limit)
	rows, total, err := s.transfers.List(ctx, repo.TransferFilter{
		Status:      models.TransferPending,
		OldestFirst: true,
		Limit:       limit,
		Offset:      (page - 1) * limit,
	})
	if err != nil {
		return PendingPage{}, apperr.Internal("could not list pending transfers", err)
	}

	now := s.now()
	out := PendingPage{Transfers: make([]PendingTransfer, 0, len(rows)), Pagination: newPagination(page, limit, total)}
	for _, t := range rows {
		item := PendingTransfer{
			WireTransfer: sanitize.Transfer(t),
			WaitSeconds:  int64(now.Sub(t.CreatedAt).Seconds()),
		}
		if s.assessor != nil {
			item.Risk = s.assessor.Assess(t, now)
		}
		out.Transfers = append(out.Transfers, item)
	}
	return out, nil
}

type ListFilter struct {
	Status  models.TransferStatus
	OwnerID string
	Page    int
	Limit   int
}

type TransferPage struct {
	Transfers  []sanitize.WireTransfer `json:"transfers"`
	Pagination Pagination              `json:"pagination"`
}

// List is the processed-history view: newest first, optionally by status and owner.
func (s *AdminService) List(ctx context.Context, f ListFilter) (TransferPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return TransferPage{}, apperr.Validation(validate.Errs{{Field: "status", Msg: "unknown status"}})
	}
	page, limit := paginate(f.Page, f.Limit)
	rows, total, err := s.transfers.List(ctx, repo.TransferFilter{
		Status:  f.Status,
		OwnerID: f.OwnerID,
		Limit:   limit,
		Offset:  (page - 1) * limit,
	})
	if err != nil {
		return TransferPage{}, apperr.Internal("could not list transfers", err)
	}
	return TransferPage{Transfers: sanitize.Transfers(rows), Pagination: newPagination(page, limit, total)}, nil
}

type Stats struct {
	WindowStart string             `json:"window_start"`
	WindowEnd   string             `json:"window_end"`
	Total       int64              `json:"total"`
	ByStatus    map[string]int64   `json:"by_status"`
	Volume      map[string]float64 `json:"volume"`
}

// Stats aggregates transfers created inside the rolling window. Volume counts money
// that is moving or has moved, so REJECTED and FAILED are excluded.
func (s *AdminService) Stats(ctx context.Context) (Stats, error) {
	end := s.now().UTC()
	start := end.Add(-s.statsWindow)

	rows, err := s.transfers.Stats(ctx, start)
	if err != nil {
		return Stats{}, apperr.Internal("could not compute stats", err)
	}

	out := Stats{
		WindowStart: sanitize.Timestamp(start),
		WindowEnd:   sanitize.Timestamp(end),
		ByStatus:    make(map[string]int64, len(models.AllTransferStatuses)),
		Volume:      map[string]float64{},
	}
	for _, st := range models.AllTransferStatuses {
		out.ByStatus[string(st)] = 0
	}
	volume := map[string]decimal.Decimal{}
	for _, r := range rows {
		out.ByStatus[string(r.Status)] += r.Count
		out.Total += r.Count
		if r.Status == models.TransferRejected || r.Status == models.TransferFailed {
			continue
		}
		volume[r.Currency] = volume[r.Currency].Add(r.Volume)
	}
	for cur, v := range volume {
		out.Volume[cur], _ = v.Round(2).Float64()
	}
	return out, nil
}
