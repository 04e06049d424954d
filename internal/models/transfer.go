package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferPending    TransferStatus = "PENDING"
	TransferProcessing TransferStatus = "PROCESSING"
	TransferCompleted  TransferStatus = "COMPLETED"
	TransferFailed     TransferStatus = "FAILED"
	TransferRejected   TransferStatus = "REJECTED"
)

// AllTransferStatuses lists every status in lifecycle order.
var AllTransferStatuses = []TransferStatus{
	TransferPending,
	TransferProcessing,
	TransferCompleted,
	TransferFailed,
	TransferRejected,
}

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferPending:    {TransferProcessing, TransferRejected},
	TransferProcessing: {TransferCompleted, TransferFailed},
	TransferCompleted:  {},
	TransferFailed:     {},
	TransferRejected:   {},
}

func (s TransferStatus) Valid() bool {
	_, ok := transferTransitions[s]
	return ok
}

// CanTransition reports whether to is a direct successor of from. Nothing leaves a terminal status.
func CanTransition(from, to TransferStatus) bool {
	for _, s := range transferTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Recipient struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

type Transfer struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Recipient   Recipient       `json:"recipient"`
	Status      TransferStatus  `json:"status"`
	Description *string         `json:"description,omitempty"`
	Metadata    map[string]any  `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
