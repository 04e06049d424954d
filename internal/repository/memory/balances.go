package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/repository"
)

type Balances struct {
	mu   sync.RWMutex
	rows map[string]models.Balance
	def  *models.Balance
}

func NewBalances() *Balances {
	return &Balances{rows: make(map[string]models.Balance)}
}

// Set seeds a balance; used by tests and the memory store driver.
func (b *Balances) Set(userID string, amount decimal.Decimal, currency string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[userID] = models.Balance{UserID: userID, Amount: amount, Currency: currency, LastUpdatedAt: time.Now().UTC()}
}

// SetDefault makes every unknown user start with amount; the memory driver uses it for local runs.
func (b *Balances) SetDefault(amount decimal.Decimal, currency string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.def = &models.Balance{Amount: amount, Currency: currency, LastUpdatedAt: time.Now().UTC()}
}

func (b *Balances) Get(_ context.Context, userID string) (models.Balance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bal, ok := b.rows[userID]
	if !ok {
		if b.def == nil {
			return models.Balance{}, repository.ErrNotFound
		}
		bal = *b.def
		bal.UserID = userID
	}
	return bal, nil
}

type AuditLogs struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func NewAuditLogs() *AuditLogs { return &AuditLogs{} }

func (a *AuditLogs) Create(_ context.Context, l models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	l.CreatedAt = time.Now().UTC()
	a.logs = append(a.logs, l)
	return nil
}

func (a *AuditLogs) All() []models.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AuditLog, len(a.logs))
	copy(out, a.logs)
	return out
}
