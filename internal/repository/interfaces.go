package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrPreconditionFailed means a conditional update matched zero rows for an existing record.
	ErrPreconditionFailed = errors.New("precondition failed")
)

type TransferFilter struct {
	Status      models.TransferStatus // empty = any
	OwnerID     string                // empty = any
	OldestFirst bool
	Limit       int
	Offset      int
}

type UpdatesFilter struct {
	OwnerID string
	Status  models.TransferStatus
	Since   time.Time
	Limit   int
}

// StatsRow is one (status, currency) aggregate.
type StatsRow struct {
	Status   models.TransferStatus
	Currency string
	Count    int64
	Volume   decimal.Decimal
}

type Transfers interface {
	Create(ctx context.Context, t models.Transfer) (models.Transfer, error)
	GetByID(ctx context.Context, id string) (models.Transfer, error)

	// Transition applies status to and merges patch into metadata only while the
	// stored status still equals from. updated_at strictly advances on success.
	Transition(ctx context.Context, id string, from, to models.TransferStatus, patch map[string]any) (models.Transfer, error)

	List(ctx context.Context, f TransferFilter) ([]models.Transfer, int, error)
	UpdatedSince(ctx context.Context, f UpdatesFilter) ([]models.Transfer, error)
	StaleInStatus(ctx context.Context, status models.TransferStatus, updatedBefore time.Time, limit int) ([]models.Transfer, error)
	Stats(ctx context.Context, since time.Time) ([]StatsRow, error)
}

type Balances interface {
	Get(ctx context.Context, userID string) (models.Balance, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}
