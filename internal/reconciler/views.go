package reconciler

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"microloan/internal/domain/loan"
	"microloan/internal/usecase/ledger"
)

// record is what gets cached: raw ledger state only. Views are derived on
// every read because they depend on the clock.
type record struct {
	Loan         loan.Loan        `json:"loan"`
	Lenders      []common.Address `json:"lenders"`
	LendersKnown bool             `json:"lendersKnown"`
}

type LoanView struct {
	ID                  uint64           `json:"id"`
	Borrower            common.Address   `json:"borrower"`
	Status              loan.Status      `json:"status"`
	Purpose             string           `json:"purpose"`
	DetailsURI          string           `json:"detailsUri,omitempty"`
	CollateralToken     string           `json:"collateralToken,omitempty"`
	CollateralAmount    decimal.Decimal  `json:"collateralAmount"`
	AmountRequested     decimal.Decimal  `json:"amountRequested"`
	AmountFunded        decimal.Decimal  `json:"amountFunded"`
	AmountRemaining     decimal.Decimal  `json:"amountRemaining"`
	AmountRepaid        decimal.Decimal  `json:"amountRepaid"`
	TotalDue            decimal.Decimal  `json:"totalDue"`
	FundedPercent       decimal.Decimal  `json:"fundedPercent"`
	InterestRatePercent decimal.Decimal  `json:"interestRatePercent"`
	DurationDays        decimal.Decimal  `json:"durationDays"`
	RequestedAt         time.Time        `json:"requestedAt"`
	FundedAt            time.Time        `json:"fundedAt"`
	DueDate             time.Time        `json:"dueDate"`
	ClosedAt            time.Time        `json:"closedAt"`
	Overdue             bool             `json:"overdue"`
	Lenders             []common.Address `json:"lenders"`
	LenderCount         int              `json:"lenderCount"`
	// LendersKnown is false when the roster could not be read; Lenders is
	// then empty rather than wrong.
	LendersKnown bool `json:"lendersKnown"`

	raw loan.Loan
}

type InvestmentView struct {
	LoanID       uint64          `json:"loanId"`
	Lender       common.Address  `json:"lender"`
	Status       loan.Status     `json:"status"`
	Contribution decimal.Decimal `json:"contribution"`
	SharePercent decimal.Decimal `json:"sharePercent"`
	// ExpectedReturn is what a full repayment pays this lender.
	ExpectedReturn decimal.Decimal `json:"expectedReturn"`
	// Received is ExpectedReturn once the loan is repaid, zero otherwise.
	Received decimal.Decimal `json:"received"`
}

type PlatformStats struct {
	TotalLoans          int                 `json:"totalLoans"`
	ByStatus            map[loan.Status]int `json:"byStatus"`
	TotalRequested      decimal.Decimal     `json:"totalRequested"`
	TotalFunded         decimal.Decimal     `json:"totalFunded"`
	TotalRepaid         decimal.Decimal     `json:"totalRepaid"`
	AverageRatePercent  decimal.Decimal     `json:"averageRatePercent"`
	AverageDurationDays decimal.Decimal     `json:"averageDurationDays"`
	// SuccessRatePercent is repaid/(repaid+defaulted); 100 when no loan has
	// reached either state.
	SuccessRatePercent decimal.Decimal `json:"successRatePercent"`
	UniqueBorrowers    int             `json:"uniqueBorrowers"`
	UniqueLenders      int             `json:"uniqueLenders"`
	LendersKnown       bool            `json:"lendersKnown"`
}

// IsBorrower is a pure function of the account and the view, so it cannot go
// stale across an account switch.
func IsBorrower(account common.Address, v *LoanView) bool {
	return v != nil && account != (common.Address{}) && v.Borrower == account
}

func IsLender(account common.Address, v *LoanView) bool {
	if v == nil || account == (common.Address{}) {
		return false
	}
	for _, l := range v.Lenders {
		if l == account {
			return true
		}
	}
	return false
}

func (r *Reconciler) loanView(rec *record, now time.Time) *LoanView {
	l := rec.Loan
	u := r.units
	v := &LoanView{
		ID:                  l.ID,
		Borrower:            l.Borrower,
		Status:              l.Status,
		Purpose:             l.Purpose,
		DetailsURI:          l.DetailsURI,
		CollateralToken:     l.CollateralToken,
		CollateralAmount:    u.ToDisplay(l.CollateralAmount),
		AmountRequested:     u.ToDisplay(l.AmountRequested),
		AmountFunded:        u.ToDisplay(l.AmountFunded),
		AmountRemaining:     u.ToDisplay(l.Remaining()),
		AmountRepaid:        u.ToDisplay(l.AmountRepaid),
		InterestRatePercent: BPSToPercent(l.InterestRateBPS),
		DurationDays:        SecondsToDays(l.DurationSeconds),
		RequestedAt:         unixTime(l.RequestedAt),
		FundedAt:            unixTime(l.FundedAt),
		DueDate:             unixTime(l.DueDate),
		ClosedAt:            unixTime(l.ClosedAt),
		Lenders:             append([]common.Address{}, rec.Lenders...),
		LenderCount:         len(rec.Lenders),
		LendersKnown:        rec.LendersKnown,
		raw:                 l,
	}
	v.FundedPercent = percentOf(v.AmountFunded, v.AmountRequested)
	if due, err := ledger.TotalDue(l.AmountRequested, l.InterestRateBPS); err == nil {
		v.TotalDue = u.ToDisplay(due)
	}
	v.Overdue = l.Status == loan.StatusActive && l.DueDate != 0 && now.Unix() > l.DueDate
	return v
}

func (r *Reconciler) investmentView(v *LoanView, lender common.Address, contribution loan.Amount) InvestmentView {
	u := r.units
	iv := InvestmentView{
		LoanID:       v.ID,
		Lender:       lender,
		Status:       v.Status,
		Contribution: u.ToDisplay(contribution),
		SharePercent: percentOf(u.ToDisplay(contribution), v.AmountRequested),
	}
	due, err := ledger.TotalDue(v.raw.AmountRequested, v.raw.InterestRateBPS)
	if err != nil {
		return iv
	}
	share, err := ledger.Share(contribution, due, v.raw.AmountRequested)
	if err != nil {
		return iv
	}
	iv.ExpectedReturn = u.ToDisplay(share)
	if v.Status == loan.StatusRepaid {
		iv.Received = iv.ExpectedReturn
	}
	return iv
}

func (r *Reconciler) stats(views []*LoanView) *PlatformStats {
	s := &PlatformStats{
		TotalLoans:         len(views),
		ByStatus:           make(map[loan.Status]int),
		SuccessRatePercent: hundred,
		LendersKnown:       true,
	}
	borrowers := make(map[common.Address]struct{})
	lenders := make(map[common.Address]struct{})
	var rateBPS, durationSecs decimal.Decimal
	for _, v := range views {
		s.ByStatus[v.Status]++
		s.TotalRequested = s.TotalRequested.Add(v.AmountRequested)
		s.TotalFunded = s.TotalFunded.Add(v.AmountFunded)
		s.TotalRepaid = s.TotalRepaid.Add(v.AmountRepaid)
		rateBPS = rateBPS.Add(uintDecimal(uint64(v.raw.InterestRateBPS)))
		durationSecs = durationSecs.Add(uintDecimal(v.raw.DurationSeconds))
		borrowers[v.Borrower] = struct{}{}
		if !v.LendersKnown {
			s.LendersKnown = false
		}
		for _, l := range v.Lenders {
			lenders[l] = struct{}{}
		}
	}
	s.AverageRatePercent = averageBPSToPercent(rateBPS, len(views))
	s.AverageDurationDays = averageSecondsToDays(durationSecs, len(views))
	repaid, defaulted := s.ByStatus[loan.StatusRepaid], s.ByStatus[loan.StatusDefaulted]
	if repaid+defaulted > 0 {
		s.SuccessRatePercent = percentOf(decimal.NewFromInt(int64(repaid)), decimal.NewFromInt(int64(repaid+defaulted)))
	}
	s.UniqueBorrowers = len(borrowers)
	s.UniqueLenders = len(lenders)
	return s
}
