package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902

	CodeInvalidParams = -32602
	CodeInternal      = -32603
)

// actionRejected is the string code some client libraries attach to cancelled requests.
const actionRejected = "ACTION_REJECTED"

// ErrUserRejected marks a leg that the wallet owner declined.
var ErrUserRejected = errors.New("denied by user")

// Error is an EIP-1193 provider error. It satisfies rpc.Error and rpc.DataError
// so the code and data survive the trip through an rpc.Server.
type Error struct {
	Code    int
	Message string
	Data    any
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) ErrorCode() int {
	return e.Code
}

func (e *Error) ErrorData() any {
	return e.Data
}

func newError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the JSON-RPC / EIP-1193 code carried by err, if any.
func ErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// IsUnrecognizedChain reports whether the wallet does not know the requested chain.
func IsUnrecognizedChain(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == CodeUnrecognizedChain
}

// IsUserRejection reports whether err is the wallet owner cancelling a request
// rather than a genuine failure.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "user rejected") ||
		strings.Contains(msg, "user denied") ||
		strings.Contains(msg, "rejected") {
		return true
	}
	if code, ok := ErrorCode(err); ok && code == CodeUserRejected {
		return true
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok && s == actionRejected {
			return true
		}
	}
	return strings.Contains(msg, strings.ToLower(actionRejected))
}
