package event

type Type string

const (
	TypeLoanCreated   Type = "loan.created"
	TypeLoanFunded    Type = "loan.funded"
	TypeLoanActivated Type = "loan.activated"
	TypeLoanRepaid    Type = "loan.repaid"
	TypeLenderPaid    Type = "loan.lender_paid"
	TypeLoanDefaulted Type = "loan.defaulted"
	TypeLoanCancelled Type = "loan.cancelled"
)

// Table: ledger_events. Seq orders events globally; it is assigned on insert.
type Event struct {
	Seq        uint64            `gorm:"column:seq;primaryKey;autoIncrement" json:"seq"`
	LoanID     uint64            `gorm:"column:loan_id;not null;index:idx_events_loan" json:"loanId"`
	Type       Type              `gorm:"column:type;size:32;not null" json:"type"`
	Attributes map[string]string `gorm:"column:attributes;type:text;serializer:json" json:"attributes"`
	EmittedAt  int64             `gorm:"column:emitted_at;not null" json:"emittedAt"`
}

func (Event) TableName() string { return "ledger_events" }

func (e Event) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
