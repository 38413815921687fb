package tcp

import (
	"net"
	"time"

	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
	"github.com/ValentinKolb/gridRPC/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.TransportConfig) error {
	return upgradeConnection(conn, config)
}

// --------------------------------------------------------------------------
// Pool Factory Method
// --------------------------------------------------------------------------

// NewTCPPoolFactory creates a connection pool factory for TCP endpoints
func NewTCPPoolFactory(config common.TransportConfig) transport.PoolFactory {
	return base.NewPoolFactory(&clientConnector{}, config)
}
