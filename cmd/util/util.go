package util

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/cluster"
	"github.com/ValentinKolb/gridRPC/lib/coord"
	"github.com/ValentinKolb/gridRPC/lib/coord/zk"
	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/rpc/client"
	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/serializer"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
	"github.com/ValentinKolb/gridRPC/rpc/transport/tcp"
	"github.com/ValentinKolb/gridRPC/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}
	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and binds environment variables with the GRID_ prefix
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("grid")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Shared flags
// --------------------------------------------------------------------------

// SetupTransportFlags adds the socket flags shared by client and server commands
func SetupTransportFlags(cmd *cobra.Command) {
	key := "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (tcp only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time in seconds, negative keeps the OS default (tcp only)"))
}

// SetupGridFlags adds the cluster mode and coordination service flags
func SetupGridFlags(cmd *cobra.Command) {
	key := "cluster-mode"
	cmd.PersistentFlags().String(key, "cluster-hash", WrapString("Cluster mode of the grid (none, master-slave, cluster, cluster-hash)"))

	key = "coord-servers"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated list of ZooKeeper servers. Empty uses the in-process coordinator (single process only)"))

	key = "coord-session-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultSessionTimeout, WrapString("Session timeout of the coordination service"))

	key = "coord-retry-backoff"
	cmd.PersistentFlags().Duration(key, common.DefaultRetryBackoff, WrapString("Backoff between connect and register retries"))

	key = "coord-keepalive"
	cmd.PersistentFlags().Duration(key, common.DefaultKeepAliveInterval, WrapString("Interval of the registration check"))
}

// SetupClientFlags adds the communicator flags of client commands
func SetupClientFlags(cmd *cobra.Command) {
	SetupTransportFlags(cmd)
	SetupGridFlags(cmd)

	key := "grid"
	cmd.PersistentFlags().String(key, "", WrapString("The grid uri to call (cluster.project.root)"))

	key = "pool-size"
	cmd.PersistentFlags().Int(key, common.DefaultConnectionPoolSize, WrapString("Connections per endpoint"))

	key = "connect-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultConnectTimeout, WrapString("Timeout to obtain a connection"))

	key = "request-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultRequestTimeout, WrapString("Timeout of the send confirmation"))

	key = "ack-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultRequestWaitingAckTimeout, WrapString("Timeout of the response"))

	key = "retries"
	cmd.PersistentFlags().Int(key, common.DefaultRetryTimes, WrapString("Additional send attempts after the first"))
}

// --------------------------------------------------------------------------
// Config from viper
// --------------------------------------------------------------------------

// GetTransportConfig reads the transport configuration
func GetTransportConfig() common.TransportConfig {
	return common.TransportConfig{
		Kind: viper.GetString("transport"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}
}

// GetCoordConfig reads the coordination service configuration
func GetCoordConfig() common.CoordConfig {
	var servers []string
	for _, s := range strings.Split(viper.GetString("coord-servers"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return common.CoordConfig{
		Servers:           servers,
		SessionTimeout:    viper.GetDuration("coord-session-timeout"),
		RetryBackoff:      viper.GetDuration("coord-retry-backoff"),
		KeepAliveInterval: viper.GetDuration("coord-keepalive"),
	}.WithDefaults()
}

// GetClientConfig reads the client configuration
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Grid:        viper.GetString("grid"),
		ClusterMode: viper.GetString("cluster-mode"),
		Serializer:  viper.GetString("serializer"),
		Coord:       GetCoordConfig(),
		Communicator: common.CommunicatorConfig{
			ConnectionPoolSize:       viper.GetInt("pool-size"),
			ConnectTimeout:           viper.GetDuration("connect-timeout"),
			RequestTimeout:           viper.GetDuration("request-timeout"),
			RequestWaitingAckTimeout: viper.GetDuration("ack-timeout"),
			RetryTimes:               viper.GetInt("retries"),
		}.WithDefaults(),
		Transport: GetTransportConfig(),
	}
}

// --------------------------------------------------------------------------
// Factories
// --------------------------------------------------------------------------

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport(bufferSize, workersPerConn int) (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPServerTransport(bufferSize, workersPerConn), nil
	case "unix":
		return unix.NewUnixServerTransport(bufferSize, workersPerConn), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetPoolFactory creates the client connection pool factory based on configuration
func GetPoolFactory(config common.TransportConfig) (transport.PoolFactory, error) {
	switch config.Kind {
	case "tcp":
		return tcp.NewTCPPoolFactory(config), nil
	case "unix":
		return unix.NewUnixPoolFactory(config), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", config.Kind)
	}
}

// NewCoordinator creates the coordination service client. Without servers the
// in-process coordinator is returned, which only sees nodes of this process.
func NewCoordinator(ctx context.Context, config common.CoordConfig) (coord.ICoordinator, error) {
	if len(config.Servers) == 0 {
		return coord.NewMemoryCoordinator(), nil
	}
	c, err := zk.NewCoordinator(config.Servers, config.SessionTimeout, config.RetryBackoff)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewInvoker connects to the grid of config and returns its invoker. closeFn
// releases all connections and the coordination session.
func NewInvoker(ctx context.Context, config *common.ClientConfig, startTimeout time.Duration) (inv *client.ClusterInvoker, closeFn func(), err error) {
	uri, err := grid.ParseGridUri(config.Grid)
	if err != nil {
		return nil, nil, err
	}
	mode, err := grid.ParseClusterMode(config.ClusterMode)
	if err != nil {
		return nil, nil, err
	}
	s, err := serializer.ByName(config.Serializer)
	if err != nil {
		return nil, nil, err
	}
	poolFactory, err := GetPoolFactory(config.Transport)
	if err != nil {
		return nil, nil, err
	}
	c, err := NewCoordinator(ctx, config.Coord)
	if err != nil {
		return nil, nil, err
	}

	opts := cluster.Options{
		RetryBackoff:      config.Coord.RetryBackoff,
		KeepAliveInterval: config.Coord.KeepAliveInterval,
	}
	registry := client.NewRegistry()
	closeFn = func() {
		_ = registry.Close()
		_ = c.Close()
	}

	inv, err = client.NewClusterInvoker(registry, uri, mode,
		client.NewClientFactory(c, opts, startTimeout),
		client.NewCommFactory(s, poolFactory))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return inv, closeFn, nil
}
