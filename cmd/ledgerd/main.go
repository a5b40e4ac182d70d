package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpadp "microloan/internal/adapter/http"
	"microloan/internal/adapter/repository/mysql"
	"microloan/internal/config"
	"microloan/internal/infrastructure/db"
	"microloan/internal/infrastructure/logging"
	"microloan/internal/node"
	"microloan/internal/usecase/ledger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log := logging.Setup("ledgerd", cfg.Env, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("ledgerd stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	gdb, err := db.Open(cfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := db.Migrate(gdb, mysql.Models()...); err != nil {
		return err
	}

	l := ledger.NewUsecase(mysql.NewGormUoW(gdb), cfg.LedgerParams())
	if err := applyGenesis(ctx, gdb, l, cfg, log); err != nil {
		return err
	}

	n := node.New(node.Config{ChainID: cfg.ChainID, BlockInterval: cfg.BlockInterval()}, l, log)
	e, rpcSrv, err := httpadp.NewServer(httpadp.NewHandler(n), httpadp.NewLedgerAPI(n, l))
	if err != nil {
		return err
	}
	defer rpcSrv.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Run(gctx) })
	g.Go(func() error {
		addr := ":" + cfg.AppPort
		log.Info("listening", "addr", addr, "chain_id", cfg.ChainID)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
