package settlement

import (
	"context"
	"errors"
	"strings"

	"github.com/baharkarakas/transferflow/internal/models"
)

var ErrBankUnreachable = errors.New("beneficiary bank unreachable")

// Gateway moves the money for an approved transfer. A returned error fails the transfer.
type Gateway interface {
	Execute(ctx context.Context, t models.Transfer) error
}

// Simulated stands in for a payment rail: it settles everything except transfers
// to bank codes listed as unreachable.
type Simulated struct {
	unreachable map[string]struct{}
}

func NewSimulated(unreachableBanks []string) *Simulated {
	s := &Simulated{unreachable: make(map[string]struct{}, len(unreachableBanks))}
	for _, b := range unreachableBanks {
		s.unreachable[strings.ToUpper(strings.TrimSpace(b))] = struct{}{}
	}
	return s
}

func (s *Simulated) Execute(ctx context.Context, t models.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, down := s.unreachable[strings.ToUpper(t.Recipient.BankCode)]; down {
		return ErrBankUnreachable
	}
	return nil
}
