package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/baharkarakas/transferflow/internal/repository"
)

type Repositories struct {
	Transfers repo.Transfers
	Balances  repo.Balances
	AuditLogs repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Transfers: &transfersRepo{pool},
		Balances:  &balancesRepo{pool},
		AuditLogs: &auditLogsRepo{pool},
	}
}
