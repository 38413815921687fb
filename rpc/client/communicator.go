package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/serializer"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

var Logger = logger.GetLogger("rpc/client")

// Communicator is the client side transport engine. It owns the transaction
// table and one connection pool per endpoint, demultiplexes responses onto
// their transactions and sweeps transactions whose response never arrived.
type Communicator struct {
	name        string
	config      common.CommunicatorConfig
	serializer  serializer.IRPCSerializer
	poolFactory transport.PoolFactory

	transactions *xsync.MapOf[uint64, *Transaction]
	pools        *xsync.MapOf[string, transport.IConnectionPool]

	dropLog rate.Sometimes

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup

	// metrics
	sends       *metrics.Counter
	retries     *metrics.Counter
	ackTimeouts *metrics.Counter
	swept       *metrics.Counter
	dropped     *metrics.Counter
}

// NewCommunicator creates a communicator. Start must be called to run the
// expiry sweep.
func NewCommunicator(name string, config common.CommunicatorConfig, serializer serializer.IRPCSerializer, poolFactory transport.PoolFactory) *Communicator {
	label := fmt.Sprintf(`{communicator=%q}`, name)
	return &Communicator{
		name:         name,
		config:       config.WithDefaults(),
		serializer:   serializer,
		poolFactory:  poolFactory,
		transactions: xsync.NewMapOf[uint64, *Transaction](),
		pools:        xsync.NewMapOf[string, transport.IConnectionPool](),
		dropLog:      rate.Sometimes{First: 3, Interval: 10 * time.Second},
		stop:         make(chan struct{}),
		sends:        metrics.GetOrCreateCounter("grid_client_sends_total" + label),
		retries:      metrics.GetOrCreateCounter("grid_client_retries_total" + label),
		ackTimeouts:  metrics.GetOrCreateCounter("grid_client_ack_timeouts_total" + label),
		swept:        metrics.GetOrCreateCounter("grid_client_swept_transactions_total" + label),
		dropped:      metrics.GetOrCreateCounter("grid_client_dropped_responses_total" + label),
	}
}

// Name returns the name of the communicator
func (c *Communicator) Name() string { return c.name }

// Config returns the effective configuration
func (c *Communicator) Config() common.CommunicatorConfig { return c.config }

// Start runs the background expiry sweep
func (c *Communicator) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.sweepLoop()
	})
}

// Close stops the sweep, closes all pools and destroys the pending transactions
func (c *Communicator) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()

		c.pools.Range(func(endpoint string, pool transport.IConnectionPool) bool {
			if err := pool.Close(); err != nil {
				Logger.Warningf("[%s] failed to close pool for %s: %v", c.name, endpoint, err)
			}
			c.pools.Delete(endpoint)
			return true
		})
		c.transactions.Range(func(cbID uint64, _ *Transaction) bool {
			c.UnregisterTransaction(cbID)
			return true
		})
		Logger.Debugf("[%s] communicator closed", c.name)
	})
	return nil
}

// PendingTransactions returns the number of registered transactions
func (c *Communicator) PendingTransactions() int {
	return c.transactions.Size()
}

// --------------------------------------------------------------------------
// Send path
// --------------------------------------------------------------------------

// SendMessage sends req to endpoint on behalf of tran. It acquires a pooled
// connection (releasing the one of a previous attempt), stamps the correlation
// id, registers the transaction if it waits for a response and issues the
// asynchronous send. The connection stays lent until ReleaseConnection.
func (c *Communicator) SendMessage(endpoint string, req *common.Message, tran *Transaction) grid.Code {
	pool, err := c.pool(endpoint)
	if err != nil {
		Logger.Errorf("[%s] failed to obtain pool for %s: %v", c.name, endpoint, err)
		return grid.CodeObtainFailed
	}

	if prev := tran.swapConn(nil); prev != nil {
		pool.Release(prev)
	}
	attempt := &sendAttempt{tran: tran, n: tran.beginAttempt()}

	conn, err := pool.Acquire(c.config.ConnectTimeout)
	if err != nil || conn == nil {
		Logger.Warningf("[%s] no connection to %s: %v", c.name, endpoint, err)
		return grid.CodeNoClient
	}
	if conn.Closed() {
		pool.Release(conn)
		return grid.CodeClientClosed
	}
	tran.swapConn(conn)

	req.CbID = tran.CbID()
	data, err := c.serializer.Serialize(*req)
	if err != nil {
		Logger.Errorf("[%s] failed to serialize request %s: %v", c.name, req.Signal, err)
		return grid.CodeSendFail
	}

	// registration happens before the send so a response can always be matched
	if tran.Mode().Has(ModeWaitingAck) {
		c.registerTransaction(tran)
	}

	c.sends.Inc()
	if !conn.SendAsync(data, attempt) {
		return grid.CodeClientClosed
	}
	return grid.CodeSuccess
}

// ReleaseConnection returns the connection lent for tran to the pool of endpoint
func (c *Communicator) ReleaseConnection(endpoint string, tran *Transaction) {
	conn := tran.swapConn(nil)
	if conn == nil {
		return
	}
	if pool, ok := c.pools.Load(endpoint); ok {
		pool.Release(conn)
		return
	}
	_ = conn.Close()
}

// UnregisterTransaction removes the transaction from the table and destroys
// it. It returns false if the transaction was not (or no longer) registered.
func (c *Communicator) UnregisterTransaction(cbID uint64) bool {
	tran, ok := c.transactions.LoadAndDelete(cbID)
	if !ok {
		return false
	}
	tran.Destroy()
	return true
}

func (c *Communicator) registerTransaction(tran *Transaction) {
	if tran.registered.CompareAndSwap(false, true) {
		c.transactions.Store(tran.CbID(), tran)
	}
}

// pool returns the pool of endpoint, creating it on first use
func (c *Communicator) pool(endpoint string) (transport.IConnectionPool, error) {
	if endpoint == "" {
		return nil, grid.NewError(grid.CodeHostsInvalid, "no endpoint")
	}
	if pool, ok := c.pools.Load(endpoint); ok {
		return pool, nil
	}

	var createErr error
	pool, _ := c.pools.Compute(endpoint, func(old transport.IConnectionPool, loaded bool) (transport.IConnectionPool, bool) {
		if loaded {
			return old, false
		}
		p, err := c.poolFactory(endpoint, c.config, c.OnReceivedServerData, c.OnSendCompleted)
		if err != nil {
			createErr = err
			return nil, true
		}
		return p, false
	})
	if createErr != nil {
		return nil, createErr
	}
	return pool, nil
}

// --------------------------------------------------------------------------
// Transport callbacks
// --------------------------------------------------------------------------

// OnSendCompleted is invoked by the transport once a send finished
func (c *Communicator) OnSendCompleted(conn transport.IConnection, state any, err error) {
	attempt, ok := state.(*sendAttempt)
	if !ok {
		return
	}
	if err != nil {
		Logger.Debugf("[%s] send of transaction %d to %s failed: %v", c.name, attempt.tran.CbID(), conn.Endpoint(), err)
	}
	// completions of superseded attempts are ignored
	if attempt.tran.attempt.Load() != attempt.n {
		return
	}
	attempt.tran.SignalSendComplete(err == nil)
}

// OnReceivedServerData decodes an inbound frame and hands responses to the
// waiting transaction. Frames that match no transaction are dropped.
func (c *Communicator) OnReceivedServerData(conn transport.IConnection, data []byte) {
	msg := &common.Message{}
	if err := c.serializer.Deserialize(data, msg); err != nil {
		c.dropLog.Do(func() {
			Logger.Warningf("[%s] dropped undecodable frame from %s: %v", c.name, conn.Endpoint(), err)
		})
		return
	}
	if !msg.IsResponse() {
		c.dropLog.Do(func() {
			Logger.Warningf("[%s] dropped non response message %s from %s", c.name, msg.Signal, conn.Endpoint())
		})
		return
	}

	tran, ok := c.transactions.Load(msg.CbID)
	if !ok {
		c.dropped.Inc()
		c.dropLog.Do(func() {
			Logger.Debugf("[%s] dropped response %s for unknown transaction %d", c.name, msg.Signal, msg.CbID)
		})
		return
	}
	tran.SignalResponse(msg)
}

// --------------------------------------------------------------------------
// Expiry sweep
// --------------------------------------------------------------------------

func (c *Communicator) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			if n := c.sweepOnce(now); n > 0 {
				Logger.Infof("[%s] swept %d abandoned transactions", c.name, n)
			}
		}
	}
}

// sweepOnce scans up to SweepBatch transactions and removes those that expired
// (plus slack) without a response. It returns the number of removed transactions.
func (c *Communicator) sweepOnce(now time.Time) int {
	scanned, removed := 0, 0
	c.transactions.Range(func(cbID uint64, tran *Transaction) bool {
		scanned++
		if !tran.Completed() && now.After(tran.ExpireTime().Add(c.config.SweepSlack)) {
			if c.UnregisterTransaction(cbID) {
				removed++
			}
		}
		return scanned < c.config.SweepBatch
	})
	c.swept.Add(removed)
	return removed
}

// --------------------------------------------------------------------------
// Ping
// --------------------------------------------------------------------------

// Ping sends a ping to endpoint and waits up to timeout for the pong
func (c *Communicator) Ping(endpoint string, timeout time.Duration) (time.Duration, error) {
	tran := NewTransaction(ModeWaitingAck, timeout)
	defer func() {
		c.ReleaseConnection(endpoint, tran)
		if !c.UnregisterTransaction(tran.CbID()) {
			tran.Destroy()
		}
	}()

	start := time.Now()
	if code := c.SendMessage(endpoint, common.NewPing(), tran); code != grid.CodeSuccess {
		return 0, grid.Errorf(code, "ping to %s failed", endpoint)
	}
	resp, ok := tran.waitResponse(timeout)
	if !ok {
		return 0, grid.Errorf(grid.CodeAckServerNoRespond, "no pong from %s within %s", endpoint, timeout)
	}
	if resp.Signal != common.SignalPong {
		return 0, grid.Errorf(grid.CodeAckInvalidResponse, "unexpected answer %s to ping", resp.Signal)
	}
	return time.Since(start), nil
}
