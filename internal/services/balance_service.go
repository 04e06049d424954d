package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/models"
	repo "github.com/baharkarakas/transferflow/internal/repository"
)

type BalanceService struct{ r repo.Balances }

func NewBalanceService(r repo.Balances) *BalanceService { return &BalanceService{r: r} }

// Current returns the user's balance; a user without a ledger row has a zero balance.
func (s *BalanceService) Current(ctx context.Context, userID string) (models.Balance, error) {
	b, err := s.r.Get(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Balance{UserID: userID, Amount: decimal.Zero}, nil
	}
	return b, err
}
