package grid

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Result Codes
// --------------------------------------------------------------------------

// Code is a result code returned across package boundaries
type Code int

const (
	CodeSuccess Code = 0  // the call succeeded
	CodeUnknown Code = -1 // the error did not carry a code

	// Transport acquisition

	CodeNoClient     Code = 1001 // no usable connection for the destination
	CodeClientClosed Code = 1002 // the pool handed out a connection that was already closed
	CodeObtainFailed Code = 1003 // the communicator could not obtain a pool for the destination
	CodeHostsInvalid Code = 1004 // no destinations configured

	// Send

	CodeSendFail      Code = 2001 // the transport reported a failed send
	CodeSendFailRetry Code = 2002 // the retry budget is exhausted

	// Acknowledgment

	CodeAckServerNoRespond Code = 3001 // no response before the ack timeout
	CodeAckInvalidResponse Code = 3002 // the server answered with an invalid (error flagged) response

	// Dispatch

	CodeServantNotFound Code = 4001
	CodeServantFailed   Code = 4002
	CodeDecodeFailed    Code = 4003

	// Membership / coordination service

	CodeClusterFail          Code = 51000
	CodeClusterInvalidParam  Code = 51001
	CodeClusterConnectFailed Code = 51002
	CodeClusterReadFailed    Code = 51003
	CodeClusterNoNode        Code = 51004 // routable, but no node currently owns the key
	CodeClusterInvalidMode   Code = 51005 // selection strategy not supported by the cluster mode
)

// Category groups result codes. Callers should branch on the category.
type Category int

const (
	CategorySuccess Category = iota
	CategoryUnknown
	CategoryTransport
	CategorySend
	CategoryAck
	CategoryDispatch
	CategoryMembership
)

// Category returns the category of the code
func (c Code) Category() Category {
	switch {
	case c == CodeSuccess:
		return CategorySuccess
	case c >= 1000 && c < 2000:
		return CategoryTransport
	case c >= 2000 && c < 3000:
		return CategorySend
	case c >= 3000 && c < 4000:
		return CategoryAck
	case c >= 4000 && c < 5000:
		return CategoryDispatch
	case c >= 51000 && c < 52000:
		return CategoryMembership
	default:
		return CategoryUnknown
	}
}

// String returns the symbolic name of the code
func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "Success"
	case CodeNoClient:
		return "NoClient"
	case CodeClientClosed:
		return "ClientClosed"
	case CodeObtainFailed:
		return "ObtainFailed"
	case CodeHostsInvalid:
		return "HostsInvalid"
	case CodeSendFail:
		return "SendFail"
	case CodeSendFailRetry:
		return "SendFailRetry"
	case CodeAckServerNoRespond:
		return "AckServerNoRespond"
	case CodeAckInvalidResponse:
		return "AckInvalidResponse"
	case CodeServantNotFound:
		return "ServantNotFound"
	case CodeServantFailed:
		return "ServantFailed"
	case CodeDecodeFailed:
		return "DecodeFailed"
	case CodeClusterFail:
		return "ClusterFail"
	case CodeClusterInvalidParam:
		return "ClusterInvalidParam"
	case CodeClusterConnectFailed:
		return "ClusterConnectFailed"
	case CodeClusterReadFailed:
		return "ClusterReadFailed"
	case CodeClusterNoNode:
		return "ClusterNoNode"
	case CodeClusterInvalidMode:
		return "ClusterInvalidMode"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a result code and an error message.
type Error struct {
	Code Code   // The result code
	Msg  string // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("GridError (code %d %s): %s", int(e.Code), e.Code.String(), e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code Code, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new Error with a formatted message
func Errorf(code Code, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// CodeOf extracts the result code of an error. nil maps to CodeSuccess,
// errors without a code map to CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var gErr *Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
