package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
)

const (
	SecondsPerDay = 86400
	// BPSDenominator is 100% expressed in basis points.
	BPSDenominator = 10_000
)

// Msg is the caller context of a state-changing call: the authenticated
// sender and the value attached to the call.
type Msg struct {
	From  common.Address
	Value loan.Amount
	// Nonce, when set, must match the sender's persisted nonce and is
	// consumed in the same transaction as the call's effects.
	Nonce *uint64
}

type CreateLoanInput struct {
	Amount           loan.Amount `json:"amount"`
	Purpose          string      `json:"purpose"`
	DurationDays     uint64      `json:"durationDays"`
	InterestRateBPS  uint32      `json:"interestRateBps"`
	DetailsURI       string      `json:"detailsUri,omitempty"`
	CollateralToken  string      `json:"collateralToken,omitempty"`
	CollateralAmount loan.Amount `json:"collateralAmount"`
}

// Params are the deployment constants of a ledger.
type Params struct {
	MinDurationSeconds uint64
	MaxRateBPS         uint32
	// Custody is the account that escrows contributions and repayments.
	Custody common.Address
}

func DefaultParams() Params {
	return Params{
		MinDurationSeconds: SecondsPerDay,
		MaxRateBPS:         5000,
		Custody:            common.HexToAddress("0x000000000000000000000000000000000000c057"),
	}
}

// Result reports the loan touched by a call and the events it committed, in
// emission order.
type Result struct {
	LoanID uint64        `json:"loanId"`
	Events []event.Event `json:"events"`
}
