package mysql

import (
	"microloan/internal/domain/account"
	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
)

// Models lists every table the ledger owns, in migration order.
func Models() []any {
	return []any{
		&loan.Counter{},
		&loan.Loan{},
		&loan.Contribution{},
		&account.Account{},
		&event.Event{},
	}
}
