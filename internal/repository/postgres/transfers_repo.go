package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/repository"
)

type transfersRepo struct{ pool *pgxpool.Pool }

const transferColumns = `id::text, owner_id, amount::text, currency,
       recipient_name, recipient_account, recipient_bank_code,
       status, description, metadata, created_at, updated_at`

func (r *transfersRepo) Create(ctx context.Context, t models.Transfer) (models.Transfer, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TransferPending
	}
	meta, err := json.Marshal(nonNil(t.Metadata))
	if err != nil {
		return models.Transfer{}, fmt.Errorf("marshal metadata: %w", err)
	}

	const q = `
INSERT INTO transfers (
  id, owner_id, amount, currency, recipient_name, recipient_account, recipient_bank_code,
  status, description, metadata, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb, now(), now())
RETURNING ` + transferColumns

	row := r.pool.QueryRow(ctx, q,
		t.ID, t.OwnerID, t.Amount.String(), t.Currency,
		t.Recipient.Name, t.Recipient.AccountNumber, t.Recipient.BankCode,
		string(t.Status), t.Description, string(meta),
	)
	out, err := scanTransfer(row)
	if err != nil {
		return models.Transfer{}, fmt.Errorf("insert transfer: %w", err)
	}
	return out, nil
}

func (r *transfersRepo) GetByID(ctx context.Context, id string) (models.Transfer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return models.Transfer{}, repository.ErrNotFound
		}
		return models.Transfer{}, err
	}
	return t, nil
}

// Transition is the only concurrency control transfers need: the WHERE clause on the
// current status lets exactly one concurrent writer match the row.
func (r *transfersRepo) Transition(ctx context.Context, id string, from, to models.TransferStatus, patch map[string]any) (models.Transfer, error) {
	meta, err := json.Marshal(nonNil(patch))
	if err != nil {
		return models.Transfer{}, fmt.Errorf("marshal metadata patch: %w", err)
	}

	const q = `
UPDATE transfers
   SET status     = $3,
       metadata   = metadata || $4::jsonb,
       updated_at = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')
 WHERE id = $1 AND status = $2
RETURNING ` + transferColumns

	t, err := scanTransfer(r.pool.QueryRow(ctx, q, id, string(from), string(to), string(meta)))
	if err == nil {
		return t, nil
	}
	if isInvalidID(err) {
		return models.Transfer{}, repository.ErrNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Transfer{}, fmt.Errorf("transition transfer: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transfers WHERE id=$1)`, id).Scan(&exists); err != nil {
		return models.Transfer{}, err
	}
	if !exists {
		return models.Transfer{}, repository.ErrNotFound
	}
	return models.Transfer{}, repository.ErrPreconditionFailed
}

func (r *transfersRepo) List(ctx context.Context, f repository.TransferFilter) ([]models.Transfer, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, "owner_id = $"+strconv.Itoa(len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfers`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transfers: %w", err)
	}

	order := " ORDER BY created_at DESC, id"
	if f.OldestFirst {
		order = " ORDER BY created_at ASC, id"
	}
	args = append(args, f.Limit, f.Offset)
	q := `SELECT ` + transferColumns + ` FROM transfers` + cond + order +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	out, err := r.query(ctx, q, args...)
	return out, total, err
}

func (r *transfersRepo) UpdatedSince(ctx context.Context, f repository.UpdatesFilter) ([]models.Transfer, error) {
	q := `SELECT ` + transferColumns + `
   FROM transfers
  WHERE updated_at > $1
    AND ($2 = '' OR owner_id = $2)
    AND ($3 = '' OR status = $3)
  ORDER BY updated_at, id
  LIMIT $4`
	return r.query(ctx, q, f.Since, f.OwnerID, string(f.Status), f.Limit)
}

func (r *transfersRepo) StaleInStatus(ctx context.Context, status models.TransferStatus, updatedBefore time.Time, limit int) ([]models.Transfer, error) {
	q := `SELECT ` + transferColumns + `
   FROM transfers
  WHERE status = $1 AND updated_at < $2
  ORDER BY updated_at
  LIMIT $3`
	return r.query(ctx, q, string(status), updatedBefore, limit)
}

func (r *transfersRepo) Stats(ctx context.Context, since time.Time) ([]repository.StatsRow, error) {
	rows, err := r.pool.Query(ctx, `
SELECT status, currency, COUNT(*), COALESCE(SUM(amount), 0)::text
  FROM transfers
 WHERE created_at >= $1
 GROUP BY status, currency
 ORDER BY status, currency`, since)
	if err != nil {
		return nil, fmt.Errorf("transfer stats: %w", err)
	}
	defer rows.Close()

	var out []repository.StatsRow
	for rows.Next() {
		var (
			row    repository.StatsRow
			status string
			volume string
		)
		if err := rows.Scan(&status, &row.Currency, &row.Count, &volume); err != nil {
			return nil, err
		}
		row.Status = models.TransferStatus(status)
		if row.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("parse volume %q: %w", volume, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *transfersRepo) query(ctx context.Context, q string, args ...any) ([]models.Transfer, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransfer(row pgx.Row) (models.Transfer, error) {
	var (
		t        models.Transfer
		amount   string
		status   string
		metaJSON []byte
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &amount, &t.Currency,
		&t.Recipient.Name, &t.Recipient.AccountNumber, &t.Recipient.BankCode,
		&status, &t.Description, &metaJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return models.Transfer{}, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return models.Transfer{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Status = models.TransferStatus(status)
	t.Currency = strings.TrimSpace(t.Currency)
	t.Metadata = map[string]any{}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &t.Metadata); err != nil {
			return models.Transfer{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return t, nil
}

// isInvalidID reports a malformed uuid literal (22P02), which can only mean "no such transfer".
func isInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
