package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"microloan/internal/domain/loan"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryUnknown},
		{"no wallet", ErrNoWallet, CategoryConnectivity},
		{"rejected", fmt.Errorf("connect: %w", ErrUserRejected), CategoryConnectivity},
		{"wrong network", &WrongNetworkError{Expected: 1, Actual: 2}, CategoryConnectivity},
		{"timeout", &TransactionTimeoutError{}, CategoryConnectivity},
		{"deadline", context.DeadlineExceeded, CategoryConnectivity},
		{"in flight", ErrOperationInFlight, CategoryValidation},
		{"ledger validation", loan.ErrNotFunding, CategoryValidation},
		{"reverted", &TransactionRevertedError{Reason: loan.ReasonInsufficientRepayment}, CategoryValidation},
		{"custody", &TransactionRevertedError{Reason: loan.ReasonTransferFailed}, CategoryCustody},
		{"balance", fmt.Errorf("prepare: %w", loan.ErrInsufficientBalance), CategoryCustody},
		{"not found", loan.ErrNotFound, CategoryNotFound},
		{"other", errors.New("boom"), CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestCallGuardKey(t *testing.T) {
	acct := common.Address{1}
	require.Equal(t, "7:fund", Call{Op: OpFund, LoanID: 7}.GuardKey(acct))
	require.Equal(t, "7:repay", Call{Op: OpRepay, LoanID: 7}.GuardKey(acct))
	require.Contains(t, Call{Op: OpCreate}.GuardKey(acct), "create:0x01")

	require.Error(t, Call{Op: "withdraw"}.validate())
	require.Error(t, Call{Op: OpCreate}.validate())
}
