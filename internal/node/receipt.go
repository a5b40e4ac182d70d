package node

import (
	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
)

const (
	ReceiptStatusFailed     = uint64(0)
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt is the outcome of one executed transaction. Failed transactions
// carry the ledger reason code and leave no events.
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	BlockNumber uint64         `json:"blockNumber"`
	Status      uint64         `json:"status"`
	From        common.Address `json:"from"`
	Method      string         `json:"method"`
	LoanID      uint64         `json:"loanId"`
	Reason      loan.Reason    `json:"reason,omitempty"`
	Message     string         `json:"message,omitempty"`
	Events      []event.Event  `json:"events"`
}

func (r *Receipt) Succeeded() bool { return r.Status == ReceiptStatusSuccessful }
