package account

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type Repository interface {
	// Get returns a zero-balance account for unknown addresses.
	Get(ctx context.Context, addr common.Address) (*Account, error)
	// GetForUpdate locks the account row (if it exists) until the tx ends.
	GetForUpdate(ctx context.Context, addr common.Address) (*Account, error)
	// Save upserts the account.
	Save(ctx context.Context, a *Account) error
}
