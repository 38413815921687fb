package common

import (
	"strings"
)

// --------------------------------------------------------------------------
// Signals
// --------------------------------------------------------------------------

const (
	// RequestPrefix marks the signal of an rpc call
	RequestPrefix = "__rpccall:"
	// ResponsePrefix marks the signal of an rpc call return
	ResponsePrefix = "__rpccallret:"

	// SignalInvalidResponse is sent when a servant failed or returned nothing
	SignalInvalidResponse = ResponsePrefix + "invalid"
	// SignalPing is answered by the server with SignalPong without dispatch
	SignalPing = RequestPrefix + "__ping"
	SignalPong = ResponsePrefix + "__pong"
)

// IsRequestSignal reports whether the signal denotes an rpc call
func IsRequestSignal(signal string) bool {
	return strings.HasPrefix(signal, RequestPrefix)
}

// IsResponseSignal reports whether the signal denotes an rpc call return
func IsResponseSignal(signal string) bool {
	return strings.HasPrefix(signal, ResponsePrefix)
}

// RequestSignal returns the request signal for servant.method
func RequestSignal(servant, method string) string {
	return RequestPrefix + servant + "." + method
}

// ResponseSignal returns the response signal for servant.method
func ResponseSignal(servant, method string) string {
	return ResponsePrefix + servant + "." + method
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is the single envelope used for requests and responses. The payload
// is opaque to the framework; servants and typed proxies encode it.
type Message struct {
	// Signal routes the decoded message (request / response prefix)
	Signal string `json:"signal"`

	// Correlation and trace
	CbID uint64 `json:"cbId,omitempty"` // client correlation id
	Tid  uint64 `json:"tid,omitempty"`  // server assigned trace id

	// Addressing
	Servant string `json:"servant,omitempty"`
	Method  string `json:"method,omitempty"`

	// Response only fields
	Err    bool   `json:"err,omitempty"`    // true for invalid responses
	ErrMsg string `json:"errMsg,omitempty"` // reason of an invalid response

	Payload []byte `json:"payload,omitempty"`
}

// IsRequest reports whether the message is an rpc call
func (m *Message) IsRequest() bool {
	return IsRequestSignal(m.Signal)
}

// IsResponse reports whether the message is an rpc call return
func (m *Message) IsResponse() bool {
	return IsResponseSignal(m.Signal)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewRequest creates a new request for servant.method
func NewRequest(servant, method string, payload []byte) *Message {
	return &Message{
		Signal:  RequestSignal(servant, method),
		Servant: servant,
		Method:  method,
		Payload: payload,
	}
}

// NewResponse creates the response for req, stamped with its correlation and trace ids
func NewResponse(req *Message, payload []byte) *Message {
	return &Message{
		Signal:  ResponseSignal(req.Servant, req.Method),
		CbID:    req.CbID,
		Tid:     req.Tid,
		Servant: req.Servant,
		Method:  req.Method,
		Payload: payload,
	}
}

// NewInvalidResponse creates the error flagged response sent when a call
// could not produce a result
func NewInvalidResponse(req *Message, reason string) *Message {
	return &Message{
		Signal:  SignalInvalidResponse,
		CbID:    req.CbID,
		Tid:     req.Tid,
		Servant: req.Servant,
		Method:  req.Method,
		Err:     true,
		ErrMsg:  reason,
	}
}

// NewPing creates a ping message
func NewPing() *Message {
	return &Message{Signal: SignalPing}
}

// NewPong creates the answer to a ping
func NewPong(ping *Message) *Message {
	return &Message{Signal: SignalPong, CbID: ping.CbID, Tid: ping.Tid}
}
