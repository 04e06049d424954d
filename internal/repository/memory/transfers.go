// Package memory is a process-local implementation of the repository interfaces.
// A single mutex plays the role of the database's row-level atomicity.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/repository"
)

type Transfers struct {
	mu   sync.Mutex
	rows map[string]models.Transfer
	last time.Time
	now  func() time.Time
}

func NewTransfers() *Transfers {
	return &Transfers{rows: make(map[string]models.Transfer), now: time.Now}
}

// tick returns a microsecond timestamp strictly after every timestamp handed out before.
func (s *Transfers) tick() time.Time {
	ts := s.now().UTC().Truncate(time.Microsecond)
	if !ts.After(s.last) {
		ts = s.last.Add(time.Microsecond)
	}
	s.last = ts
	return ts
}

func (s *Transfers) Create(_ context.Context, t models.Transfer) (models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TransferPending
	}
	t.Metadata = copyMap(t.Metadata)
	ts := s.tick()
	t.CreatedAt, t.UpdatedAt = ts, ts
	s.rows[t.ID] = t
	return clone(t), nil
}

func (s *Transfers) GetByID(_ context.Context, id string) (models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.rows[id]
	if !ok {
		return models.Transfer{}, repository.ErrNotFound
	}
	return clone(t), nil
}

func (s *Transfers) Transition(_ context.Context, id string, from, to models.TransferStatus, patch map[string]any) (models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.rows[id]
	if !ok {
		return models.Transfer{}, repository.ErrNotFound
	}
	if t.Status != from {
		return models.Transfer{}, repository.ErrPreconditionFailed
	}

	t.Status = to
	t.Metadata = copyMap(t.Metadata)
	for k, v := range copyMap(patch) {
		t.Metadata[k] = v
	}
	t.UpdatedAt = s.tick()
	s.rows[id] = t
	return clone(t), nil
}

func (s *Transfers) List(_ context.Context, f repository.TransferFilter) ([]models.Transfer, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transfer
	for _, t := range s.rows {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if f.OldestFirst {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	total := len(out)
	return page(out, f.Limit, f.Offset), total, nil
}

func (s *Transfers) UpdatedSince(_ context.Context, f repository.UpdatesFilter) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transfer
	for _, t := range s.rows {
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if !t.UpdatedAt.After(f.Since) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Limit, 0), nil
}

func (s *Transfers) StaleInStatus(_ context.Context, status models.TransferStatus, updatedBefore time.Time, limit int) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transfer
	for _, t := range s.rows {
		if t.Status == status && t.UpdatedAt.Before(updatedBefore) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return page(out, limit, 0), nil
}

func (s *Transfers) Stats(_ context.Context, since time.Time) ([]repository.StatsRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		status   models.TransferStatus
		currency string
	}
	agg := map[key]*repository.StatsRow{}
	for _, t := range s.rows {
		if t.CreatedAt.Before(since) {
			continue
		}
		k := key{t.Status, t.Currency}
		row, ok := agg[k]
		if !ok {
			row = &repository.StatsRow{Status: t.Status, Currency: t.Currency, Volume: decimal.Zero}
			agg[k] = row
		}
		row.Count++
		row.Volume = row.Volume.Add(t.Amount)
	}

	out := make([]repository.StatsRow, 0, len(agg))
	for _, row := range agg {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].Currency < out[j].Currency
	})
	return out, nil
}

func page(in []models.Transfer, limit, offset int) []models.Transfer {
	if offset < 0 || offset >= len(in) {
		return []models.Transfer{}
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	out := make([]models.Transfer, 0, len(in))
	for _, t := range in {
		out = append(out, clone(t))
	}
	return out
}

func clone(t models.Transfer) models.Transfer {
	t.Metadata = copyMap(t.Metadata)
	if t.Description != nil {
		d := *t.Description
		t.Description = &d
	}
	return t
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
