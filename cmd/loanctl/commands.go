package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/crypto"

	"microloan/internal/chain"
	"microloan/internal/reconciler"
	"microloan/internal/usecase/ledger"
)

func runKeygenCommand(args []string, stdout, stderr io.Writer) int {
	fs, _ := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "file to write the hex private key to")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *out == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", *out)
		return 1
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return fail(stderr, err)
	}
	if err := crypto.SaveECDSA(*out, key); err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, map[string]string{
		"address": crypto.PubkeyToAddress(key.PublicKey).Hex(),
		"keyFile": *out,
	})
}

// withClient parses flags, opens a client bounded by --timeout and runs fn.
func withClient(name string, args []string, stdout, stderr io.Writer,
	bind func(fs *flag.FlagSet, o *options), fn func(ctx context.Context, c *client, o *options) (any, error)) int {
	fs, o := newFlagSet(name, stderr)
	if bind != nil {
		bind(fs, o)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	c, err := o.open(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	defer c.Close()
	out, err := fn(ctx, c, o)
	if err != nil {
		return fail(stderr, err)
	}
	return writeJSON(stdout, out)
}

func requireKey(o *options) error {
	if o.key == "" {
		return errors.New("--key is required")
	}
	return nil
}

func runBalanceCommand(args []string, stdout, stderr io.Writer) int {
	return withClient("balance", args, stdout, stderr,
		func(fs *flag.FlagSet, o *options) { o.bindAddress(fs) },
		func(ctx context.Context, c *client, o *options) (any, error) {
			addr, err := o.account()
			if err != nil {
				return nil, err
			}
			bal, err := c.adapter.Balance(ctx, addr)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"address": addr.Hex(),
				"balance": c.views.Units().ToDisplay(bal),
				"raw":     bal.String(),
			}, nil
		})
}

func runCreateCommand(args []string, stdout, stderr io.Writer) int {
	var amount, purpose, rate, detailsURI, collToken, collAmount string
	var days uint64
	return withClient("create", args, stdout, stderr,
		func(fs *flag.FlagSet, o *options) {
			o.bindKey(fs)
			fs.StringVar(&amount, "amount", "", "requested principal in display units")
			fs.StringVar(&purpose, "purpose", "", "what the loan is for")
			fs.Uint64Var(&days, "days", 30, "duration in days")
			fs.StringVar(&rate, "rate", "", "flat interest rate in percent, e.g. 5 or 12.5")
			fs.StringVar(&detailsURI, "details-uri", "", "optional off-ledger details")
			fs.StringVar(&collToken, "collateral-token", "", "optional collateral token")
			fs.StringVar(&collAmount, "collateral-amount", "0", "optional collateral amount")
		},
		func(ctx context.Context, c *client, o *options) (any, error) {
			if err := requireKey(o); err != nil {
				return nil, err
			}
			u := c.views.Units()
			principal, err := u.FromDisplay(amount)
			if err != nil {
				return nil, fmt.Errorf("--amount: %w", err)
			}
			bps, err := reconciler.PercentToBPS(rate)
			if err != nil {
				return nil, fmt.Errorf("--rate: %w", err)
			}
			collateral, err := u.FromDisplay(collAmount)
			if err != nil {
				return nil, fmt.Errorf("--collateral-amount: %w", err)
			}
			return c.submit(ctx, chain.Call{Op: chain.OpCreate, Create: &ledger.CreateLoanInput{
				Amount:           principal,
				Purpose:          purpose,
				DurationDays:     days,
				InterestRateBPS:  bps,
				DetailsURI:       detailsURI,
				CollateralToken:  collToken,
				CollateralAmount: collateral,
			}})
		})
}

func runFundCommand(args []string, stdout, stderr io.Writer) int {
	var id uint64
	var amount string
	return withClient("fund", args, stdout, stderr,
		func(fs *flag.FlagSet, o *options) {
			o.bindKey(fs)
			fs.Uint64Var(&id, "loan", 0, "loan id")
			fs.StringVar(&amount, "amount", "", "contribution in display units")
		},
		func(ctx context.Context, c *client, o *options) (any, error) {
			if err := requireKey(o); err != nil {
				return nil, err
			}
			v, err := c.views.Units().FromDisplay(amount)
			if err != nil {
				return nil, fmt.Errorf("--amount: %w", err)
			}
			return c.submit(ctx, chain.Call{Op: chain.OpFund, LoanID: id, Value: v})
		})
}

func runRepayCommand(args []string, stdout, stderr io.Writer) int {
	var id uint64
	var amount string
	return withClient("repay", args, stdout, stderr,
		func(fs *flag.FlagSet, o *options) {
			o.bindKey(fs)
			fs.Uint64Var(&id, "loan", 0, "loan id")
			fs.StringVar(&amount, "amount", "", "payment in display units; defaults to the total due")
		},
		func(ctx context.Context, c *client, o *options) (any, error) {
			if err := requireKey(o); err != nil {
				return nil, err
			}
			if amount == "" {
				l, err := c.adapter.LoanDetails(ctx, id)
				if err != nil {
					return nil, err
				}
				due, err := ledger.TotalDue(l.AmountRequested, l.InterestRateBPS)
				if err != nil {
					return nil, err
				}
				return c.submit(ctx, chain.Call{Op: chain.OpRepay, LoanID: id, Value: due})
			}
			v, err := c.views.Units().FromDisplay(amount)
			if err != nil {
				return nil, fmt.Errorf("--amount: %w", err)
			}
			return c.submit(ctx, chain.Call{Op: chain.OpRepay, LoanID: id, Value: v})
		})
}

// runCloseCommand handles cancel and default, which carry no value.
func runCloseCommand(name string, args []string, stdout, stderr io.Writer) int {
	op := chain.OpCancel
	if name == "default" {
		op = chain.OpDefault
	}
	var id uint64
	return withClient(name, args, stdout, stderr,
		func(fs *flag.FlagSet, o *options) {
			o.bindKey(fs)
			fs.Uint64Var(&id, "loan", 0, "loan id")
		},
		func(ctx context.Context, c *client, o *options) (any, error) {
			if err := requireKey(o); err != nil {
				return nil, err
			}
			return c.submit(ctx, chain.Call{Op: op, LoanID: id})
		})
}

func runShowCommand(args []string, stdout, stderr io.Writer) int {
	var id uint64
	return withClient("show", args, stdout, stderr,
		func(fs *flag.FlagSet, o *options) { fs.Uint64Var(&id, "loan", 0, "loan id") },
		func(ctx context.Context, c *client, _ *options) (any, error) {
			return c.views.Loan(ctx, id)
		})
}

func runListCommand(args []string, stdout, stderr io.Writer) int {
	return withClient("list", args, stdout, stderr, nil,
		func(ctx context.Context, c *client, _ *options) (any, error) {
			return c.views.Loans(ctx)
		})
}

func runMineCommand(args []string, stdout, stderr io.Writer) int {
	return withClient("mine", args, stdout, stderr,
		func(fs *flag.FlagSet, o *options) { o.bindAddress(fs) },
		func(ctx context.Context, c *client, o *options) (any, error) {
			addr, err := o.account()
			if err != nil {
				return nil, err
			}
			return c.views.MyLoans(ctx, addr)
		})
}

func runInvestCommand(args []string, stdout, stderr io.Writer) int {
	return withClient("invest", args, stdout, stderr,
		func(fs *flag.FlagSet, o *options) { o.bindAddress(fs) },
		func(ctx context.Context, c *client, o *options) (any, error) {
			addr, err := o.account()
			if err != nil {
				return nil, err
			}
			return c.views.MyInvestments(ctx, addr)
		})
}

func runStatsCommand(args []string, stdout, stderr io.Writer) int {
	return withClient("stats", args, stdout, stderr, nil,
		func(ctx context.Context, c *client, _ *options) (any, error) {
			return c.views.Stats(ctx)
		})
}
