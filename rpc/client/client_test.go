package client

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/serializer"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Fake transport
// --------------------------------------------------------------------------

// sendFunc decides what happens with a frame handed to a fake connection. It
// returns the SendAsync result.
type sendFunc func(conn *fakeConn, data []byte, state any) bool

type fakeConn struct {
	pool   *fakePool
	closed atomic.Bool
	sends  atomic.Int32
}

func (c *fakeConn) Endpoint() string { return c.pool.endpoint }
func (c *fakeConn) Closed() bool     { return c.closed.Load() }
func (c *fakeConn) Close() error     { c.closed.Store(true); return nil }
func (c *fakeConn) SendAsync(data []byte, state any) bool {
	c.sends.Add(1)
	return c.pool.net.send(c, data, state)
}

type fakePool struct {
	endpoint       string
	net            *fakeNet
	conn           *fakeConn
	onReceive      transport.ReceiveFunc
	onSendComplete transport.SendCompleteFunc
	released       atomic.Int32
}

func (p *fakePool) Endpoint() string { return p.endpoint }
func (p *fakePool) Acquire(time.Duration) (transport.IConnection, error) {
	if p.net.acquireErr != nil {
		return nil, p.net.acquireErr
	}
	return p.conn, nil
}
func (p *fakePool) Release(transport.IConnection) { p.released.Add(1) }
func (p *fakePool) Close() error                  { return p.conn.Close() }

// fakeNet creates fake pools and counts all sends
type fakeNet struct {
	send       sendFunc
	acquireErr error

	mu    sync.Mutex
	pools map[string]*fakePool
}

func newFakeNet(send sendFunc) *fakeNet {
	return &fakeNet{send: send, pools: make(map[string]*fakePool)}
}

func (n *fakeNet) factory(endpoint string, _ common.CommunicatorConfig, onReceive transport.ReceiveFunc, onSendComplete transport.SendCompleteFunc) (transport.IConnectionPool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := &fakePool{endpoint: endpoint, net: n, onReceive: onReceive, onSendComplete: onSendComplete}
	p.conn = &fakeConn{pool: p}
	n.pools[endpoint] = p
	return p, nil
}

func (n *fakeNet) pool(endpoint string) *fakePool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pools[endpoint]
}

var testSerializer = serializer.NewBinarySerializer()

// reply decodes the request and answers with build(req) after confirming the send
func reply(build func(req *common.Message) *common.Message) sendFunc {
	return func(conn *fakeConn, data []byte, state any) bool {
		go func() {
			conn.pool.onSendComplete(conn, state, nil)
			req := &common.Message{}
			if err := testSerializer.Deserialize(data, req); err != nil {
				return
			}
			resp := build(req)
			if resp == nil {
				return
			}
			resp.Tid = 7
			out, _ := testSerializer.Serialize(*resp)
			conn.pool.onReceive(conn, out)
		}()
		return true
	}
}

var echo = reply(func(req *common.Message) *common.Message {
	if req.Signal == common.SignalPing {
		return common.NewPong(req)
	}
	return common.NewResponse(req, req.Payload)
})

// silent confirms every send but never answers
func silent(conn *fakeConn, _ []byte, state any) bool {
	go conn.pool.onSendComplete(conn, state, nil)
	return true
}

func testConfig() common.CommunicatorConfig {
	cfg := common.DefaultCommunicatorConfig()
	cfg.RequestTimeout = 200 * time.Millisecond
	cfg.RequestWaitingAckTimeout = time.Second
	return cfg
}

func newTestComm(t *testing.T, cfg common.CommunicatorConfig, net *fakeNet) *Communicator {
	t.Helper()
	comm := NewCommunicator(t.Name(), cfg, testSerializer, net.factory)
	t.Cleanup(func() { _ = comm.Close() })
	return comm
}

const endpoint = "node-a:7000"

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestCallRoundTrip(t *testing.T) {
	net := newFakeNet(echo)
	comm := newTestComm(t, testConfig(), net)
	proxy := NewObjectProxy(comm, endpoint, "Echo")

	resp, err := proxy.Call("say", []byte("hello"), ModeDefault)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), resp.Payload)
	assert.Equal(t, uint64(7), resp.Tid)
	assert.Equal(t, common.ResponseSignal("Echo", "say"), resp.Signal)

	assert.Equal(t, 0, comm.PendingTransactions())
	assert.Equal(t, int32(1), net.pool(endpoint).released.Load(), "connection released exactly once")
	assert.Equal(t, "Echo@node-a:7000", proxy.PhysicalName())
}

func TestFireAndForgetNeverRegisters(t *testing.T) {
	var pendingAtSend atomic.Int32
	pendingAtSend.Store(-1)

	var comm *Communicator
	net := newFakeNet(func(conn *fakeConn, _ []byte, _ any) bool {
		pendingAtSend.Store(int32(comm.PendingTransactions()))
		return true
	})
	comm = newTestComm(t, testConfig(), net)

	start := time.Now()
	resp, err := NewObjectProxy(comm, endpoint, "Echo").Call("say", nil, 0)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	assert.Equal(t, int32(0), pendingAtSend.Load())
	assert.Equal(t, int32(1), net.pool(endpoint).conn.sends.Load())
	assert.Equal(t, 0, comm.PendingTransactions())
}

func TestWaitingAckRegistersBeforeSend(t *testing.T) {
	var comm *Communicator
	var registered atomic.Bool
	net := newFakeNet(func(conn *fakeConn, data []byte, state any) bool {
		registered.Store(comm.PendingTransactions() == 1)
		return echo(conn, data, state)
	})
	comm = newTestComm(t, testConfig(), net)

	_, err := NewObjectProxy(comm, endpoint, "Echo").Call("say", nil, ModeWaitingAck)
	require.NoError(t, err)
	assert.True(t, registered.Load())
}

func TestAckTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RequestWaitingAckTimeout = 50 * time.Millisecond
	comm := newTestComm(t, cfg, newFakeNet(silent))

	start := time.Now()
	_, err := NewObjectProxy(comm, endpoint, "Echo").Call("say", nil, ModeDefault)
	elapsed := time.Since(start)

	assert.True(t, grid.IsCode(err, grid.CodeAckServerNoRespond), "got %v", err)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, 0, comm.PendingTransactions())
}

func TestRetryOnClosedConnection(t *testing.T) {
	cfg := testConfig()
	cfg.RetryTimes = 2
	net := newFakeNet(func(*fakeConn, []byte, any) bool { return false })
	comm := newTestComm(t, cfg, net)

	_, err := NewObjectProxy(comm, endpoint, "Echo").Call("say", nil, ModeDefault)
	assert.True(t, grid.IsCode(err, grid.CodeSendFailRetry), "got %v", err)
	assert.Equal(t, int32(3), net.pool(endpoint).conn.sends.Load())
	assert.Equal(t, 0, comm.PendingTransactions())
}

func TestRetryOnFailedSend(t *testing.T) {
	var attempts atomic.Int32
	net := newFakeNet(func(conn *fakeConn, data []byte, state any) bool {
		if attempts.Add(1) == 1 {
			go conn.pool.onSendComplete(conn, state, errors.New("broken pipe"))
			return true
		}
		return echo(conn, data, state)
	})
	comm := newTestComm(t, testConfig(), net)

	resp, err := NewObjectProxy(comm, endpoint, "Echo").Call("say", []byte("x"), ModeDefault)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), resp.Payload)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestNoClientFailsImmediately(t *testing.T) {
	net := newFakeNet(echo)
	net.acquireErr = errors.New("pool exhausted")
	comm := newTestComm(t, testConfig(), net)

	_, err := NewObjectProxy(comm, endpoint, "Echo").Call("say", nil, ModeDefault)
	assert.True(t, grid.IsCode(err, grid.CodeNoClient), "got %v", err)
	assert.Equal(t, int32(0), net.pool(endpoint).conn.sends.Load())
}

func TestInvalidResponse(t *testing.T) {
	net := newFakeNet(reply(func(req *common.Message) *common.Message {
		return common.NewInvalidResponse(req, "servant failed")
	}))
	comm := newTestComm(t, testConfig(), net)

	_, err := NewObjectProxy(comm, endpoint, "Echo").Call("say", nil, ModeDefault)
	assert.True(t, grid.IsCode(err, grid.CodeAckInvalidResponse), "got %v", err)
	assert.Contains(t, err.Error(), "servant failed")
	assert.Equal(t, grid.CategoryAck, grid.CodeOf(err).Category())
}

func TestUnregisterTwice(t *testing.T) {
	comm := newTestComm(t, testConfig(), newFakeNet(echo))
	tran := NewTransaction(ModeWaitingAck, 0)
	comm.registerTransaction(tran)

	assert.True(t, comm.UnregisterTransaction(tran.CbID()))
	assert.True(t, tran.Destroyed())
	assert.False(t, comm.UnregisterTransaction(tran.CbID()))
	tran.Destroy()
}

func TestLateResponseIsDropped(t *testing.T) {
	net := newFakeNet(silent)
	comm := newTestComm(t, testConfig(), net)

	tran := NewTransaction(ModeWaitingAck, 0)
	comm.registerTransaction(tran)
	comm.UnregisterTransaction(tran.CbID())

	req := common.NewRequest("Echo", "say", nil)
	req.CbID = tran.CbID()
	data, err := testSerializer.Serialize(*common.NewResponse(req, []byte("late")))
	require.NoError(t, err)

	_, err = comm.pool(endpoint)
	require.NoError(t, err)
	comm.OnReceivedServerData(net.pool(endpoint).conn, data)
	assert.Nil(t, tran.Response())
	assert.Equal(t, 0, comm.PendingTransactions())
}

func TestSweepRemovesExpiredTransactions(t *testing.T) {
	comm := newTestComm(t, testConfig(), newFakeNet(echo))

	expired := NewTransaction(ModeWaitingAck, time.Millisecond)
	fresh := NewTransaction(ModeWaitingAck, time.Hour)
	comm.registerTransaction(expired)
	comm.registerTransaction(fresh)

	now := time.Now().Add(common.DefaultSweepSlack + time.Second)
	assert.Equal(t, 1, comm.sweepOnce(now))
	assert.True(t, expired.Destroyed())
	assert.False(t, fresh.Destroyed())
	assert.Equal(t, 1, comm.PendingTransactions())
}

func TestSweepKeepsCompletedTransactions(t *testing.T) {
	comm := newTestComm(t, testConfig(), newFakeNet(echo))

	tran := NewTransaction(ModeWaitingAck, time.Millisecond)
	comm.registerTransaction(tran)
	tran.SignalResponse(&common.Message{Signal: common.SignalPong})

	assert.Equal(t, 0, comm.sweepOnce(time.Now().Add(time.Hour)))
	assert.Equal(t, 1, comm.PendingTransactions())
}

func TestTransactionSignals(t *testing.T) {
	t1 := NewTransaction(ModeDefault, 0)
	t2 := NewTransaction(ModeDefault, 0)
	assert.Greater(t, t2.CbID(), t1.CbID())
	assert.Equal(t, t1.CreateTime().Add(common.DefaultRequestWaitingAckTimeout), t1.ExpireTime())
	assert.Equal(t, "send-consistence|waiting-ack", t1.Mode().String())
	assert.Equal(t, "fire-and-forget", Mode(0).String())

	t1.beginAttempt()
	go t1.SignalSendComplete(true)
	assert.True(t, t1.waitSendComplete(time.Second))
	assert.Equal(t, StatusOK, t1.Status())

	first := &common.Message{Signal: common.SignalPong, Tid: 1}
	t1.SignalResponse(first)
	t1.SignalResponse(&common.Message{Signal: common.SignalPong, Tid: 2})
	resp, ok := t1.waitResponse(time.Second)
	require.True(t, ok)
	assert.Same(t, first, resp)
	assert.Equal(t, uint64(1), t1.Tid())

	t1.Destroy()
	t1.Destroy()
	t1.SignalSendComplete(false)
	assert.Equal(t, StatusOK, t1.Status())

	_, ok = t2.waitResponse(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestInvokeTyped(t *testing.T) {
	comm := newTestComm(t, testConfig(), newFakeNet(echo))
	proxy := NewObjectProxy(comm, endpoint, "Echo")

	type pair struct {
		Key   string `json:"key"`
		Value int    `json:"value"`
	}
	got, err := Invoke[pair](proxy, "say", pair{Key: "a", Value: 3})
	require.NoError(t, err)
	assert.Equal(t, pair{Key: "a", Value: 3}, got)

	_, err = Invoke[int](proxy, "say", "not a number")
	assert.True(t, grid.IsCode(err, grid.CodeDecodeFailed))
}

func TestPing(t *testing.T) {
	comm := newTestComm(t, testConfig(), newFakeNet(echo))
	rtt, err := comm.Ping(endpoint, time.Second)
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	silentComm := newTestComm(t, testConfig(), newFakeNet(silent))
	_, err = silentComm.Ping(endpoint, 20*time.Millisecond)
	assert.True(t, grid.IsCode(err, grid.CodeAckServerNoRespond))
	assert.Equal(t, 0, silentComm.PendingTransactions())
}

func TestCloseReleasesEverything(t *testing.T) {
	net := newFakeNet(silent)
	comm := NewCommunicator("close", testConfig(), testSerializer, net.factory)
	comm.Start()

	tran := NewTransaction(ModeWaitingAck, 0)
	comm.registerTransaction(tran)
	_, err := comm.pool(endpoint)
	require.NoError(t, err)

	require.NoError(t, comm.Close())
	require.NoError(t, comm.Close())
	assert.True(t, tran.Destroyed())
	assert.Equal(t, 0, comm.PendingTransactions())
	assert.True(t, net.pool(endpoint).conn.Closed())
}
