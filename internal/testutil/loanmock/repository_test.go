package loanmock

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	domain "microloan/internal/domain/loan"
)

func TestRepo_Create(t *testing.T) {
	ctx := context.Background()
	l := &domain.Loan{ID: 1}

	// Uses provided func
	called := false
	wantErr := errors.New("boom")
	m := &Repo{
		CreateFn: func(gotCtx context.Context, got *domain.Loan) error {
			called = true
			if gotCtx != ctx {
				t.Fatalf("Create ctx mismatch")
			}
			if got != l {
				t.Fatalf("Create arg mismatch")
			}
			return wantErr
		},
	}
	if err := m.Create(ctx, l); !errors.Is(err, wantErr) {
		t.Fatalf("Create: want %v, got %v", wantErr, err)
	}
	if !called {
		t.Fatalf("CreateFn not called")
	}

	// Default (nil func) → no-op, nil error
	m = &Repo{}
	if err := m.Create(ctx, l); err != nil {
		t.Fatalf("Create default: want nil, got %v", err)
	}
}

func TestRepo_GetByIDForUpdate(t *testing.T) {
	ctx := context.Background()
	want := &domain.Loan{ID: 5}

	called := false
	m := &Repo{
		GetByIDForUpdateFn: func(gotCtx context.Context, id uint64) (*domain.Loan, error) {
			called = true
			if id != 5 {
				t.Fatalf("GetByIDForUpdate id mismatch: got %d", id)
			}
			return want, nil
		},
	}
	got, err := m.GetByIDForUpdate(ctx, 5)
	if err != nil || got != want {
		t.Fatalf("GetByIDForUpdate: got %+v, %v", got, err)
	}
	if !called {
		t.Fatalf("GetByIDForUpdateFn not called")
	}

	// Default (nil func) → context.Canceled
	m = &Repo{}
	got, err = m.GetByIDForUpdate(ctx, 5)
	if err != context.Canceled || got != nil {
		t.Fatalf("GetByIDForUpdate default: got %+v, %v", got, err)
	}
}

func TestRepo_NextID_Default(t *testing.T) {
	m := &Repo{}
	if _, err := m.NextID(context.Background()); err != context.Canceled {
		t.Fatalf("NextID default: want context.Canceled, got %v", err)
	}
	m.NextIDFn = func(context.Context) (uint64, error) { return 9, nil }
	if id, err := m.NextID(context.Background()); err != nil || id != 9 {
		t.Fatalf("NextID: got %d, %v", id, err)
	}
}

func TestRepo_RosterOps(t *testing.T) {
	ctx := context.Background()
	lender := common.HexToAddress("0x01")
	var appended, set domain.Amount

	m := &Repo{
		AppendLenderFn: func(_ context.Context, loanID uint64, who common.Address, amount domain.Amount) error {
			if loanID != 3 || who != lender {
				t.Fatalf("AppendLender args mismatch")
			}
			appended = amount
			return nil
		},
		SetContributionFn: func(_ context.Context, _ uint64, _ common.Address, amount domain.Amount) error {
			set = amount
			return nil
		},
		RosterFn: func(context.Context, uint64) ([]domain.Contribution, error) {
			return []domain.Contribution{{LoanID: 3, Lender: lender, Amount: set}}, nil
		},
	}
	if err := m.AppendLender(ctx, 3, lender, domain.NewAmount(10)); err != nil {
		t.Fatalf("AppendLender: %v", err)
	}
	if err := m.SetContribution(ctx, 3, lender, domain.NewAmount(15)); err != nil {
		t.Fatalf("SetContribution: %v", err)
	}
	roster, err := m.Roster(ctx, 3)
	if err != nil || len(roster) != 1 {
		t.Fatalf("Roster: %+v, %v", roster, err)
	}
	if appended.Cmp(domain.NewAmount(10)) != 0 || roster[0].Amount.Cmp(domain.NewAmount(15)) != 0 {
		t.Fatalf("amounts not forwarded: appended=%s roster=%s", appended, roster[0].Amount)
	}

	// Defaults
	m = &Repo{}
	if _, err := m.Roster(ctx, 3); err != context.Canceled {
		t.Fatalf("Roster default: want context.Canceled, got %v", err)
	}
	if _, err := m.Contribution(ctx, 3, lender); err != context.Canceled {
		t.Fatalf("Contribution default: want context.Canceled, got %v", err)
	}
}
