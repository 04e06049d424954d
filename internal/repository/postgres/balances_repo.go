package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/repository"
)

type balancesRepo struct{ pool *pgxpool.Pool }

func (r *balancesRepo) Get(ctx context.Context, userID string) (models.Balance, error) {
	var (
		b      models.Balance
		amount string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, amount::text, currency, last_updated_at
		   FROM balances
		  WHERE user_id=$1`,
		userID,
	).Scan(&b.UserID, &amount, &b.Currency, &b.LastUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Balance{}, repository.ErrNotFound
	}
	if err != nil {
		return models.Balance{}, err
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return models.Balance{}, fmt.Errorf("parse balance %q: %w", amount, err)
	}
	return b, nil
}
