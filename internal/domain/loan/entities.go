package loan

import (
	"github.com/ethereum/go-ethereum/common"
)

type Status string

const (
	StatusFunding   Status = "funding"
	StatusActive    Status = "active"
	StatusRepaid    Status = "repaid"
	StatusDefaulted Status = "defaulted"
	StatusCancelled Status = "cancelled"
)

// transitions lists the only legal forward moves. Terminal states have none.
var transitions = map[Status][]Status{
	StatusFunding: {StatusActive, StatusCancelled},
	StatusActive:  {StatusRepaid, StatusDefaulted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusFunding, StatusActive, StatusRepaid, StatusDefaulted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusRepaid || s == StatusDefaulted || s == StatusCancelled
}

// CanTransitionTo reports whether s -> next is an edge of the lifecycle graph.
func (s Status) CanTransitionTo(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Table: loans. Timestamps are unix seconds, 0 means "not set yet".
type Loan struct {
	ID               uint64         `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Borrower         common.Address `gorm:"column:borrower;type:binary(20);not null;index:idx_loans_borrower" json:"borrower"`
	AmountRequested  Amount         `gorm:"column:amount_requested;type:varchar(78);not null" json:"amountRequested"`
	InterestRateBPS  uint32         `gorm:"column:interest_rate_bps;not null" json:"interestRateBps"`
	DurationSeconds  uint64         `gorm:"column:duration_seconds;not null" json:"durationSeconds"`
	Purpose          string         `gorm:"column:purpose;type:text;not null" json:"purpose"`
	DetailsURI       string         `gorm:"column:details_uri;type:text" json:"detailsUri,omitempty"`
	CollateralToken  string         `gorm:"column:collateral_token;size:64" json:"collateralToken,omitempty"`
	CollateralAmount Amount         `gorm:"column:collateral_amount;type:varchar(78)" json:"collateralAmount"`
	Status           Status         `gorm:"column:status;type:varchar(16);not null;index:idx_loans_status" json:"status"`
	AmountFunded     Amount         `gorm:"column:amount_funded;type:varchar(78);not null" json:"amountFunded"`
	AmountRepaid     Amount         `gorm:"column:amount_repaid;type:varchar(78);not null" json:"amountRepaid"`
	RequestedAt      int64          `gorm:"column:requested_at;not null" json:"requestedAt"`
	FundedAt         int64          `gorm:"column:funded_at" json:"fundedAt"`
	DueDate          int64          `gorm:"column:due_date" json:"dueDate"`
	ClosedAt         int64          `gorm:"column:closed_at" json:"closedAt"`
}

func (Loan) TableName() string { return "loans" }

// Remaining is what still has to be contributed before the loan activates.
func (l *Loan) Remaining() Amount {
	return l.AmountRequested.Sub(l.AmountFunded)
}

func (l *Loan) FullyFunded() bool {
	return l.AmountFunded.Cmp(l.AmountRequested) == 0
}

// Table: contributions. One row per (loan, lender); Seq is the roster position.
type Contribution struct {
	LoanID uint64         `gorm:"column:loan_id;primaryKey;autoIncrement:false" json:"loanId"`
	Lender common.Address `gorm:"column:lender;type:binary(20);primaryKey" json:"lender"`
	Amount Amount         `gorm:"column:amount;type:varchar(78);not null" json:"amount"`
	Seq    uint32         `gorm:"column:seq;not null" json:"seq"`
}

func (Contribution) TableName() string { return "contributions" }

// Table: ledger_counters. Holds the global loan id counter.
type Counter struct {
	Name  string `gorm:"column:name;primaryKey;size:32"`
	Value uint64 `gorm:"column:value;not null"`
}

func (Counter) TableName() string { return "ledger_counters" }

const LoanIDCounter = "loan_id"
