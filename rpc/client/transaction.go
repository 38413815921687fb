package client

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
)

// --------------------------------------------------------------------------
// Mode and Status
// --------------------------------------------------------------------------

// Mode selects what a caller waits for. The bits are independent; a zero mode
// is fire-and-forget.
type Mode uint8

const (
	// ModeSendConsistence waits until the transport confirmed the send
	ModeSendConsistence Mode = 1 << iota
	// ModeWaitingAck waits for the servant response
	ModeWaitingAck

	// ModeDefault is the mode used by typed calls
	ModeDefault = ModeSendConsistence | ModeWaitingAck
)

// Has reports whether all bits of flag are set
func (m Mode) Has(flag Mode) bool {
	return m&flag == flag
}

func (m Mode) String() string {
	var parts []string
	if m.Has(ModeSendConsistence) {
		parts = append(parts, "send-consistence")
	}
	if m.Has(ModeWaitingAck) {
		parts = append(parts, "waiting-ack")
	}
	if len(parts) == 0 {
		return "fire-and-forget"
	}
	return strings.Join(parts, "|")
}

// Status is the send status of a transaction
type Status int32

const (
	StatusReset    Status = 0
	StatusOK       Status = 200
	StatusSendFail Status = 500
)

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// cbIDCounter is the process wide source of correlation ids
var cbIDCounter atomic.Uint64

// Transaction is one outstanding call. The signal methods may be called from
// transport goroutines while the owner waits.
type Transaction struct {
	cbID       uint64
	mode       Mode
	createTime time.Time
	expireTime time.Time
	ackTimeout time.Duration

	status     atomic.Int32
	attempt    atomic.Int32
	registered atomic.Bool
	completed  atomic.Bool
	destroyed  atomic.Bool
	callReturn atomic.Pointer[common.Message]

	sendDone chan struct{}
	ackDone  chan struct{}

	// connection currently lent for this transaction
	connMu sync.Mutex
	conn   transport.IConnection
}

// NewTransaction creates a transaction with a fresh correlation id. The
// transaction expires ackTimeout after creation, a non-positive value selects
// the default ack timeout.
func NewTransaction(mode Mode, ackTimeout time.Duration) *Transaction {
	if ackTimeout <= 0 {
		ackTimeout = common.DefaultRequestWaitingAckTimeout
	}
	now := time.Now()
	return &Transaction{
		cbID:       cbIDCounter.Add(1),
		mode:       mode,
		createTime: now,
		expireTime: now.Add(ackTimeout),
		ackTimeout: ackTimeout,
		sendDone:   make(chan struct{}, 1),
		ackDone:    make(chan struct{}, 1),
	}
}

// CbID returns the correlation id
func (t *Transaction) CbID() uint64 { return t.cbID }

// Mode returns the mode bits
func (t *Transaction) Mode() Mode { return t.mode }

// Status returns the send status of the last attempt
func (t *Transaction) Status() Status { return Status(t.status.Load()) }

// Attempts returns the number of send attempts made so far
func (t *Transaction) Attempts() int { return int(t.attempt.Load()) }

// CreateTime returns the creation time
func (t *Transaction) CreateTime() time.Time { return t.createTime }

// ExpireTime returns the time after which the transaction is abandoned
func (t *Transaction) ExpireTime() time.Time { return t.expireTime }

// AckTimeout returns the response wait of the transaction
func (t *Transaction) AckTimeout() time.Duration { return t.ackTimeout }

// Completed reports whether a response was received
func (t *Transaction) Completed() bool { return t.completed.Load() }

// Response returns the received response, nil if none arrived
func (t *Transaction) Response() *common.Message { return t.callReturn.Load() }

// Tid returns the server trace id of the response, 0 if none arrived
func (t *Transaction) Tid() uint64 {
	if resp := t.callReturn.Load(); resp != nil {
		return resp.Tid
	}
	return 0
}

// SignalSendComplete records the outcome of the current send attempt and
// wakes the send waiter
func (t *Transaction) SignalSendComplete(ok bool) {
	if t.destroyed.Load() {
		return
	}
	if ok {
		t.status.Store(int32(StatusOK))
	} else {
		t.status.Store(int32(StatusSendFail))
	}
	select {
	case t.sendDone <- struct{}{}:
	default:
	}
}

// SignalResponse stores the response and wakes the ack waiter. Only the first
// response is kept.
func (t *Transaction) SignalResponse(msg *common.Message) {
	if t.destroyed.Load() || !t.completed.CompareAndSwap(false, true) {
		return
	}
	t.callReturn.Store(msg)
	select {
	case t.ackDone <- struct{}{}:
	default:
	}
}

// Destroy releases the transaction. It is safe to call more than once.
func (t *Transaction) Destroy() {
	if !t.destroyed.CompareAndSwap(false, true) {
		return
	}
	t.registered.Store(false)
	select {
	case <-t.sendDone:
	default:
	}
	select {
	case <-t.ackDone:
	default:
	}
}

// Destroyed reports whether Destroy was called
func (t *Transaction) Destroyed() bool { return t.destroyed.Load() }

// --------------------------------------------------------------------------
// Internal helpers (used by the Communicator and the ObjectProxy)
// --------------------------------------------------------------------------

// beginAttempt resets the send state and returns the number of the new attempt
func (t *Transaction) beginAttempt() int32 {
	t.status.Store(int32(StatusReset))
	select {
	case <-t.sendDone:
	default:
	}
	return t.attempt.Add(1)
}

// waitSendComplete blocks until the current attempt completed or timeout passed
func (t *Transaction) waitSendComplete(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.sendDone:
		return true
	case <-timer.C:
		return false
	}
}

// waitResponse blocks until a response arrived or timeout passed
func (t *Transaction) waitResponse(timeout time.Duration) (*common.Message, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.ackDone:
		return t.callReturn.Load(), true
	case <-timer.C:
		return nil, false
	}
}

// swapConn stores conn as the lent connection and returns the previous one
func (t *Transaction) swapConn(conn transport.IConnection) transport.IConnection {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	prev := t.conn
	t.conn = conn
	return prev
}

// sendAttempt is the state handed to the transport with every send, so late
// completions of earlier attempts are ignored
type sendAttempt struct {
	tran *Transaction
	n    int32
}
