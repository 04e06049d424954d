package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the read-only view of the ledger collaborator used to bound transfer amounts.
type Balance struct {
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}
