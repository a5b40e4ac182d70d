package http

import (
	"errors"

	"microloan/internal/domain/loan"
	"microloan/internal/node"
)

// JSON-RPC error codes.
const (
	CodeRevert        = 3
	CodeServerError   = -32000
	CodeNotFound      = -32004
	CodeInvalidParams = -32602
)

// ErrorData is the data member of every error the ledger API returns.
type ErrorData struct {
	Reason  string       `json:"reason"`
	Details []FieldError `json:"details,omitempty"`
}

// rpcError satisfies rpc.Error and rpc.DataError so the server forwards the
// code and data verbatim.
type rpcError struct {
	code int
	msg  string
	data ErrorData
}

func (e *rpcError) Error() string          { return e.msg }
func (e *rpcError) ErrorCode() int         { return e.code }
func (e *rpcError) ErrorData() interface{} { return e.data }

func invalidParams(err error) error {
	return &rpcError{
		code: CodeInvalidParams,
		msg:  "invalid params",
		data: ErrorData{Reason: "invalid_params", Details: ToFieldErrors(err)},
	}
}

// ledgerError maps a ledger failure to its wire form.
func ledgerError(err error) error {
	if err == nil {
		return nil
	}
	reason := loan.ReasonOf(err)
	switch reason {
	case loan.ReasonNotFound:
		return &rpcError{code: CodeNotFound, msg: err.Error(), data: ErrorData{Reason: string(reason)}}
	case loan.ReasonUnknown:
		return &rpcError{code: CodeServerError, msg: err.Error(), data: ErrorData{Reason: string(reason)}}
	default:
		return &rpcError{code: CodeRevert, msg: "execution reverted: " + err.Error(), data: ErrorData{Reason: string(reason)}}
	}
}

func submitError(err error) error {
	var re *rpcError
	if errors.As(err, &re) {
		return re
	}
	return &rpcError{code: CodeServerError, msg: err.Error(), data: ErrorData{Reason: node.SubmitReason(err)}}
}
