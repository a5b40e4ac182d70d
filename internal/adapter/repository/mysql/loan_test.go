package mysql

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	domain "microloan/internal/domain/loan"
)

var (
	borrowerA = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	lenderA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	lenderB   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

// openTestDB creates an in-memory sqlite DB with the full ledger schema.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// every pooled connection to ":memory:" gets its own database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func makeLoan(id uint64, borrower common.Address) *domain.Loan {
	return &domain.Loan{
		ID:              id,
		Borrower:        borrower,
		AmountRequested: domain.NewAmount(100),
		InterestRateBPS: 500,
		DurationSeconds: 30 * 86400,
		Purpose:         "inventory",
		Status:          domain.StatusFunding,
		RequestedAt:     1_700_000_000,
	}
}

func TestNextID_StartsAtOneAndIncrements(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		got, err := repo.NextID(ctx)
		if err != nil {
			t.Fatalf("NextID: %v", err)
		}
		if got != want {
			t.Fatalf("NextID = %d, want %d", got, want)
		}
	}
}

func TestCreateAndGetByID(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	l := makeLoan(1, borrowerA)
	l.CollateralToken = "GOLD"
	l.CollateralAmount = domain.MustParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Borrower != borrowerA || got.AmountRequested.Cmp(domain.NewAmount(100)) != 0 {
		t.Errorf("unexpected loan: %+v", got)
	}
	if got.CollateralAmount.Cmp(l.CollateralAmount) != 0 {
		t.Errorf("collateral amount lost precision: %s", got.CollateralAmount)
	}
	if got.Status != domain.StatusFunding {
		t.Errorf("status = %s", got.Status)
	}
}

func TestSaveUpdates(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	l := makeLoan(7, borrowerA)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	l.AmountFunded = domain.NewAmount(100)
	l.Status = domain.StatusActive
	l.FundedAt = 1_700_000_100
	if err := repo.Save(ctx, l); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.GetByIDForUpdate(ctx, 7)
	if err != nil {
		t.Fatalf("GetByIDForUpdate: %v", err)
	}
	if got.Status != domain.StatusActive || !got.FullyFunded() || got.FundedAt != 1_700_000_100 {
		t.Errorf("loan not updated: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)

	_, err := repo.GetByID(context.Background(), 42)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListIDs_Ordered(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	for _, id := range []uint64{3, 1, 2} {
		if err := repo.Create(ctx, makeLoan(id, borrowerA)); err != nil {
			t.Fatalf("Create %d: %v", id, err)
		}
	}
	ids, err := repo.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("ids = %v", ids)
	}
}

func TestRoster_AppendAndSetContribution(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, makeLoan(1, borrowerA)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	zero, err := repo.Contribution(ctx, 1, lenderA)
	if err != nil || !zero.IsZero() {
		t.Fatalf("Contribution before funding = %s, %v", zero, err)
	}

	if err := repo.AppendLender(ctx, 1, lenderB, domain.NewAmount(40)); err != nil {
		t.Fatalf("AppendLender B: %v", err)
	}
	if err := repo.AppendLender(ctx, 1, lenderA, domain.NewAmount(20)); err != nil {
		t.Fatalf("AppendLender A: %v", err)
	}
	if err := repo.SetContribution(ctx, 1, lenderB, domain.NewAmount(70)); err != nil {
		t.Fatalf("SetContribution: %v", err)
	}

	roster, err := repo.Roster(ctx, 1)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("roster len = %d", len(roster))
	}
	if roster[0].Lender != lenderB || roster[0].Amount.Cmp(domain.NewAmount(70)) != 0 {
		t.Errorf("roster[0] = %+v", roster[0])
	}
	if roster[1].Lender != lenderA || roster[1].Seq != 1 {
		t.Errorf("roster[1] = %+v", roster[1])
	}

	got, err := repo.Contribution(ctx, 1, lenderA)
	if err != nil || got.Cmp(domain.NewAmount(20)) != 0 {
		t.Fatalf("Contribution A = %s, %v", got, err)
	}
}

func TestSetContribution_UnknownLender(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)

	if err := repo.SetContribution(context.Background(), 1, lenderA, domain.NewAmount(1)); err == nil {
		t.Fatalf("expected error for lender not on roster")
	}
}
