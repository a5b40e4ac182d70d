package main

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"microloan/internal/config"
	"microloan/internal/domain/account"
	"microloan/internal/usecase/ledger"
)

// applyGenesis credits the configured allocations into an empty ledger.
// A ledger that already holds accounts is left untouched so restarts do not
// mint twice.
func applyGenesis(ctx context.Context, gdb *gorm.DB, l *ledger.Usecase, cfg *config.Config, log *slog.Logger) error {
	alloc, err := cfg.Genesis()
	if err != nil {
		return err
	}
	if len(alloc) == 0 {
		return nil
	}
	var existing int64
	if err := gdb.WithContext(ctx).Model(&account.Account{}).Count(&existing).Error; err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if existing > 0 {
		log.Info("genesis skipped, ledger not empty", "accounts", existing)
		return nil
	}
	for _, a := range alloc {
		if err := l.Credit(ctx, a.Address, a.Amount); err != nil {
			return fmt.Errorf("genesis credit %s: %w", a.Address.Hex(), err)
		}
	}
	log.Info("genesis applied", "accounts", len(alloc))
	return nil
}
