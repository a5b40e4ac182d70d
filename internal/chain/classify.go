package chain

import (
	"context"
	"errors"
	"net"

	"microloan/internal/domain/loan"
)

// Category tells a client which remediation to offer for an error.
type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryCustody      Category = "custody"
	CategoryConnectivity Category = "connectivity"
	CategoryNotFound     Category = "not_found"
	CategoryUnknown      Category = "unknown"
)

func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	var (
		wrongNet *WrongNetworkError
		timeout  *TransactionTimeoutError
		netErr   net.Error
	)
	switch {
	case errors.Is(err, ErrNoWallet),
		errors.Is(err, ErrUserRejected),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrSessionChanged),
		errors.As(err, &wrongNet),
		errors.As(err, &timeout),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryConnectivity
	case errors.Is(err, ErrOperationInFlight):
		return CategoryValidation
	}
	switch loan.ReasonOf(err).Category() {
	case loan.CategoryValidation:
		return CategoryValidation
	case loan.CategoryCustody:
		return CategoryCustody
	case loan.CategoryNotFound:
		return CategoryNotFound
	}
	return CategoryUnknown
}
