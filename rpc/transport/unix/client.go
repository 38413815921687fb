package unix

import (
	"net"
	"time"

	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
	"github.com/ValentinKolb/gridRPC/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", endpoint, timeout)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.TransportConfig) error {
	return upgradeConnection(conn, config)
}

// --------------------------------------------------------------------------
// Pool Factory Method
// --------------------------------------------------------------------------

// NewUnixPoolFactory creates a connection pool factory for Unix socket endpoints
func NewUnixPoolFactory(config common.TransportConfig) transport.PoolFactory {
	return base.NewPoolFactory(&clientConnector{}, config)
}
