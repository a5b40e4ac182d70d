package ledger

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
)

// Event attribute keys.
const (
	AttrBorrower     = "borrower"
	AttrLender       = "lender"
	AttrCaller       = "caller"
	AttrAmount       = "amount"
	AttrRefunded     = "refunded"
	AttrAmountFunded = "amountFunded"
	AttrContribution = "contribution"
	AttrTotalDue     = "totalDue"
	AttrDust         = "dust"
	AttrLenders      = "lenders"
	AttrDueDate      = "dueDate"
	AttrRateBPS      = "interestRateBps"
	AttrDuration     = "durationSeconds"
	AttrPurpose      = "purpose"
)

// journal persists events in the transaction that produced them and keeps
// them in order for publication after commit.
type journal struct {
	repo   event.Repository
	now    int64
	events []event.Event
}

func newJournal(repo event.Repository, now int64) *journal {
	return &journal{repo: repo, now: now}
}

func (j *journal) record(ctx context.Context, loanID uint64, typ event.Type, attrs map[string]string) error {
	e := event.Event{LoanID: loanID, Type: typ, Attributes: attrs, EmittedAt: j.now}
	if err := j.repo.Append(ctx, &e); err != nil {
		return err
	}
	j.events = append(j.events, e)
	return nil
}

func createdAttrs(l *loan.Loan) map[string]string {
	return map[string]string{
		AttrBorrower: l.Borrower.Hex(),
		AttrAmount:   l.AmountRequested.String(),
		AttrRateBPS:  strconv.FormatUint(uint64(l.InterestRateBPS), 10),
		AttrDuration: strconv.FormatUint(l.DurationSeconds, 10),
		AttrPurpose:  l.Purpose,
	}
}

func fundedAttrs(lender common.Address, effective, refunded, funded loan.Amount) map[string]string {
	return map[string]string{
		AttrLender:       lender.Hex(),
		AttrAmount:       effective.String(),
		AttrRefunded:     refunded.String(),
		AttrAmountFunded: funded.String(),
	}
}

func activatedAttrs(l *loan.Loan) map[string]string {
	return map[string]string{
		AttrBorrower: l.Borrower.Hex(),
		AttrAmount:   l.AmountRequested.String(),
		AttrDueDate:  strconv.FormatInt(l.DueDate, 10),
	}
}

func repaidAttrs(l *loan.Loan, totalDue, refunded, dust loan.Amount, lenders int) map[string]string {
	return map[string]string{
		AttrBorrower: l.Borrower.Hex(),
		AttrTotalDue: totalDue.String(),
		AttrRefunded: refunded.String(),
		AttrDust:     dust.String(),
		AttrLenders:  strconv.Itoa(lenders),
	}
}

func lenderPaidAttrs(p Payout) map[string]string {
	return map[string]string{
		AttrLender:       p.Lender.Hex(),
		AttrAmount:       p.Amount.String(),
		AttrContribution: p.Contribution.String(),
	}
}

func closedAttrs(caller common.Address) map[string]string {
	return map[string]string{AttrCaller: caller.Hex()}
}
