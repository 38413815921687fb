package client

import (
	"encoding/json"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/rpc/common"
)

// ObjectProxy calls the methods of one servant on one endpoint
type ObjectProxy struct {
	comm     *Communicator
	endpoint string
	servant  string
}

// NewObjectProxy creates a proxy for servant on endpoint
func NewObjectProxy(comm *Communicator, endpoint, servant string) *ObjectProxy {
	return &ObjectProxy{
		comm:     comm,
		endpoint: endpoint,
		servant:  servant,
	}
}

// Servant returns the servant name
func (p *ObjectProxy) Servant() string { return p.servant }

// Endpoint returns the endpoint the proxy sends to
func (p *ObjectProxy) Endpoint() string { return p.endpoint }

// PhysicalName returns "servant@endpoint"
func (p *ObjectProxy) PhysicalName() string {
	return p.servant + "@" + p.endpoint
}

// Call invokes method with payload. For a mode without ModeWaitingAck the
// returned message is nil.
func (p *ObjectProxy) Call(method string, payload []byte, mode Mode) (*common.Message, error) {
	req := common.NewRequest(p.servant, method, payload)
	tran := NewTransaction(mode, p.comm.config.RequestWaitingAckTimeout)
	return p.BeginRpcTransaction(req, tran)
}

// BeginRpcTransaction sends req with the retry policy of the communicator and,
// if the transaction waits for an ack, returns the response. The transaction is
// always unregistered and its connection released before returning.
func (p *ObjectProxy) BeginRpcTransaction(req *common.Message, tran *Transaction) (*common.Message, error) {
	defer func() {
		p.comm.ReleaseConnection(p.endpoint, tran)
		if !p.comm.UnregisterTransaction(tran.CbID()) {
			tran.Destroy()
		}
	}()

	if err := p.send(req, tran); err != nil {
		return nil, err
	}
	if !tran.Mode().Has(ModeWaitingAck) {
		return nil, nil
	}

	resp, ok := tran.waitResponse(tran.AckTimeout())
	if !ok || resp == nil {
		p.comm.ackTimeouts.Inc()
		return nil, grid.Errorf(grid.CodeAckServerNoRespond, "%s.%s: no response within %s", p.PhysicalName(), req.Method, tran.AckTimeout())
	}
	if resp.Err {
		return nil, grid.Errorf(grid.CodeAckInvalidResponse, "%s.%s: %s", p.PhysicalName(), req.Method, resp.ErrMsg)
	}
	return resp, nil
}

// send runs the bounded retry loop: at most 1 + RetryTimes attempts. A missing
// connection fails at once, a closed connection or a failed send is retried.
func (p *ObjectProxy) send(req *common.Message, tran *Transaction) error {
	maxAttempts := 1 + p.comm.config.RetryTimes
	for {
		if tran.Attempts() >= maxAttempts {
			return grid.Errorf(grid.CodeSendFailRetry, "%s.%s: send failed after %d attempts", p.PhysicalName(), req.Method, tran.Attempts())
		}

		code := p.comm.SendMessage(p.endpoint, req, tran)
		switch code {
		case grid.CodeSuccess:
		case grid.CodeClientClosed:
			Logger.Debugf("%s: pooled connection closed, retrying", p.PhysicalName())
			p.comm.retries.Inc()
			continue
		default:
			return grid.Errorf(code, "%s.%s: send failed", p.PhysicalName(), req.Method)
		}

		if !tran.Mode().Has(ModeSendConsistence) {
			return nil
		}
		if tran.waitSendComplete(p.comm.config.RequestTimeout) && tran.Status() == StatusOK {
			return nil
		}
		Logger.Debugf("%s: send of transaction %d not confirmed (status %d), retrying", p.PhysicalName(), tran.CbID(), tran.Status())
		p.comm.retries.Inc()
	}
}

// Invoke calls method with args encoded as JSON and decodes the JSON result into T
func Invoke[T any](p *ObjectProxy, method string, args any) (T, error) {
	var result T

	var payload []byte
	if args != nil {
		var err error
		if payload, err = json.Marshal(args); err != nil {
			return result, grid.Errorf(grid.CodeDecodeFailed, "failed to encode arguments of %s: %v", method, err)
		}
	}

	resp, err := p.Call(method, payload, ModeDefault)
	if err != nil {
		return result, err
	}
	if len(resp.Payload) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(resp.Payload, &result); err != nil {
		return result, grid.Errorf(grid.CodeDecodeFailed, "failed to decode result of %s: %v", method, err)
	}
	return result, nil
}
