package mysql

import (
	"context"
	"testing"

	eventDomain "microloan/internal/domain/event"
)

func TestEvents_AppendAndList(t *testing.T) {
	db := openTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	seed := []eventDomain.Event{
		{LoanID: 1, Type: eventDomain.TypeLoanCreated, Attributes: map[string]string{"borrower": borrowerA.Hex()}},
		{LoanID: 2, Type: eventDomain.TypeLoanCreated},
		{LoanID: 1, Type: eventDomain.TypeLoanFunded, Attributes: map[string]string{"amount": "60"}},
	}
	for i := range seed {
		if err := repo.Append(ctx, &seed[i]); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if seed[i].Seq == 0 {
			t.Fatalf("Append did not assign seq")
		}
	}

	all, err := repo.List(ctx, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("List = %d events, %v", len(all), err)
	}
	tail, err := repo.List(ctx, all[0].Seq, 1)
	if err != nil || len(tail) != 1 || tail[0].LoanID != 2 {
		t.Fatalf("List after first = %+v, %v", tail, err)
	}

	byLoan, err := repo.ListByLoan(ctx, 1)
	if err != nil {
		t.Fatalf("ListByLoan: %v", err)
	}
	if len(byLoan) != 2 || byLoan[1].Attr("amount") != "60" {
		t.Fatalf("ListByLoan = %+v", byLoan)
	}
}
