package accountmock

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	domain "microloan/internal/domain/account"
)

func TestRepo_GetForUpdate(t *testing.T) {
	ctx := context.Background()
	addr := common.HexToAddress("0xaa")
	want := &domain.Account{Address: addr}

	m := &Repo{
		GetForUpdateFn: func(_ context.Context, got common.Address) (*domain.Account, error) {
			if got != addr {
				t.Fatalf("GetForUpdate addr mismatch")
			}
			return want, nil
		},
	}
	got, err := m.GetForUpdate(ctx, addr)
	if err != nil || got != want {
		t.Fatalf("GetForUpdate: got %+v, %v", got, err)
	}

	// Default (nil func) → context.Canceled
	m = &Repo{}
	if _, err := m.GetForUpdate(ctx, addr); err != context.Canceled {
		t.Fatalf("GetForUpdate default: want context.Canceled, got %v", err)
	}
	if _, err := m.Get(ctx, addr); err != context.Canceled {
		t.Fatalf("Get default: want context.Canceled, got %v", err)
	}
}

func TestRepo_Save(t *testing.T) {
	wantErr := errors.New("save-fail")
	m := &Repo{SaveFn: func(context.Context, *domain.Account) error { return wantErr }}
	if err := m.Save(context.Background(), &domain.Account{}); !errors.Is(err, wantErr) {
		t.Fatalf("Save: want %v, got %v", wantErr, err)
	}
	m = &Repo{}
	if err := m.Save(context.Background(), &domain.Account{}); err != nil {
		t.Fatalf("Save default: want nil, got %v", err)
	}
}
