package loan

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Amount is a non-negative quantity in the smallest currency unit (wei-like).
// It has value semantics: every operation returns a new Amount.
type Amount uint256.Int

func NewAmount(v uint64) Amount { return Amount(*uint256.NewInt(v)) }

func AmountFromUint256(u *uint256.Int) Amount {
	if u == nil {
		return Amount{}
	}
	return Amount(*u)
}

// AmountFromBig converts b, rejecting negatives and values wider than 256 bits.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("negative amount %s: %w", b, ErrInvalidAmount)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, fmt.Errorf("amount %s exceeds 256 bits: %w", b, ErrInvalidAmount)
	}
	return Amount(*u), nil
}

// ParseAmount accepts a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount: %w", ErrInvalidAmount)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("amount %q is not a base-10 integer: %w", s, ErrInvalidAmount)
		}
	}
	var u uint256.Int
	if err := u.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("amount %q: %v: %w", s, err, ErrInvalidAmount)
	}
	return Amount(u), nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Uint256() *uint256.Int {
	u := uint256.Int(a)
	return &u
}

func (a Amount) Big() *big.Int { return a.Uint256().ToBig() }

func (a Amount) IsZero() bool { return a.Uint256().IsZero() }

func (a Amount) Cmp(b Amount) int { return a.Uint256().Cmp(b.Uint256()) }

// Add returns a+b and whether the sum overflowed 256 bits.
func (a Amount) Add(b Amount) (Amount, bool) {
	sum, overflow := new(uint256.Int).AddOverflow(a.Uint256(), b.Uint256())
	return Amount(*sum), overflow
}

// Sub returns a-b. Callers must ensure a >= b.
func (a Amount) Sub(b Amount) Amount {
	return Amount(*new(uint256.Int).Sub(a.Uint256(), b.Uint256()))
}

func MinAmount(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func (a Amount) String() string { return a.Uint256().Dec() }

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*a = Amount{}
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Scan implements sql.Scanner; amounts are stored as decimal strings.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		return a.set(v)
	case []byte:
		return a.set(string(v))
	case int64:
		if v < 0 {
			return fmt.Errorf("scan amount: negative %d", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("scan amount: unsupported type %T", src)
	}
}

func (a *Amount) set(s string) error {
	if s == "" {
		*a = Amount{}
		return nil
	}
	v, err := ParseAmount(s)
	if err != nil {
		return fmt.Errorf("scan amount: %w", err)
	}
	*a = v
	return nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) { return a.String(), nil }

func (Amount) GormDataType() string { return "varchar(78)" }
