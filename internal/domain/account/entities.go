package account

import (
	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/loan"
)

// Table: accounts
type Account struct {
	Address common.Address `gorm:"column:address;type:binary(20);primaryKey" json:"address"`
	Balance loan.Amount    `gorm:"column:balance;type:varchar(78);not null" json:"balance"`
	// RejectsIncoming marks a recipient that refuses value, so any transfer
	// to it fails.
	RejectsIncoming bool `gorm:"column:rejects_incoming;not null;default:false" json:"rejectsIncoming"`
	// Nonce counts the signed transactions executed for this address,
	// successful or not.
	Nonce uint64 `gorm:"column:nonce;not null;default:0" json:"nonce"`
}

func (Account) TableName() string { return "accounts" }
