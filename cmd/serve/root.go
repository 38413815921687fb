package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/gridRPC/cmd/util"
	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	servantNames   []string

	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start a gridRPC server host",
		Long: `Start a server host with the specified configuration. Every server of the host
serves the selected built-in servants and is announced as node of its grid.
The configuration can be set via command line flags or environment variables.
The format of the environment variables is GRID_<flag> (e.g. GRID_ADVERTISE_HOST=10.0.0.1)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupTransportFlags(ServeCmd)
	cmdUtil.SetupGridFlags(ServeCmd)

	key := "servers"
	ServeCmd.PersistentFlags().String(key, "default=default.default.grid", cmdUtil.WrapString("Comma-separated list of servers to host. Format: NAME=GRID[@NODE] where GRID is cluster.project.root"))

	key = "servants"
	ServeCmd.PersistentFlags().String(key, "echo,kv", cmdUtil.WrapString("Built-in servants registered on every server (echo, kv)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:7001", cmdUtil.WrapString("The address on which the transport will listen (e.g. 0.0.0.0:7001, /tmp/grid.sock)"))

	key = "advertise-host"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Host published in the grid (default: os hostname)"))

	key = "advertise-port"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Port published in the grid (default: port of the endpoint)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Write timeout of responses in seconds"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Maximum concurrent requests per connection"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, 64*1024, cmdUtil.WrapString("Initial frame buffer size per connection in bytes"))

	key = "admin-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the admin HTTP endpoint (/metrics, /nodes), empty disables it"))

	key = "perf-interval"
	ServeCmd.PersistentFlags().Duration(key, server.DefaultPerfFlushInterval, cmdUtil.WrapString("Flush interval of the call statistics"))

	key = "perf-db"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Path of the bolt database the call statistics are stored in, empty disables it"))

	key = "comm-config"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString(`Communicator config published in the grids as JSON, durations in ms (e.g. {"retryTimes":3,"requestWaitingAckTimeout":5000})`))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	servers, err := parseServers(viper.GetString("servers"))
	if err != nil {
		return err
	}
	serveCmdConfig.Servers = servers

	servantNames = nil
	for _, name := range strings.Split(viper.GetString("servants"), ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			servantNames = append(servantNames, name)
		}
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport = cmdUtil.GetTransportConfig()
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.WorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.BufferSize = viper.GetInt("buffer-size")
	serveCmdConfig.ClusterMode = viper.GetString("cluster-mode")
	serveCmdConfig.Coord = cmdUtil.GetCoordConfig()
	serveCmdConfig.AdminEndpoint = viper.GetString("admin-endpoint")
	serveCmdConfig.PerfFlushInterval = viper.GetDuration("perf-interval")
	serveCmdConfig.PerfDBPath = viper.GetString("perf-db")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if raw := viper.GetString("comm-config"); raw != "" {
		var cc common.CommunicatorConfig
		if err := json.Unmarshal([]byte(raw), &cc); err != nil {
			return fmt.Errorf("invalid comm-config: %w", err)
		}
		serveCmdConfig.CommConfig = &cc
	}

	// advertised address
	serveCmdConfig.AdvertiseHost = viper.GetString("advertise-host")
	if serveCmdConfig.AdvertiseHost == "" {
		if serveCmdConfig.AdvertiseHost, err = os.Hostname(); err != nil {
			return fmt.Errorf("no advertise host given and hostname unknown: %w", err)
		}
	}
	serveCmdConfig.AdvertisePort = viper.GetInt("advertise-port")
	if serveCmdConfig.AdvertisePort == 0 && serveCmdConfig.Transport.Kind == "tcp" {
		_, port, err := net.SplitHostPort(serveCmdConfig.Endpoint)
		if err != nil {
			return fmt.Errorf("invalid endpoint %s: %w", serveCmdConfig.Endpoint, err)
		}
		if serveCmdConfig.AdvertisePort, err = strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid endpoint port %s: %w", port, err)
		}
	}

	return nil
}

// parseServers parses NAME=GRID[@NODE],...
func parseServers(raw string) ([]common.HostedServer, error) {
	var servers []common.HostedServer
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rest, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid server format: %s (expected NAME=GRID[@NODE])", entry)
		}
		gridStr, node, _ := strings.Cut(rest, "@")
		if _, err := grid.ParseGridUri(gridStr); err != nil {
			return nil, fmt.Errorf("server %s: %w", name, err)
		}
		servers = append(servers, common.HostedServer{Name: name, Grid: gridStr, NodeName: node})
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no servers configured")
	}
	return servers, nil
}

// run starts the server host and blocks until SIGINT / SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport(serveCmdConfig.BufferSize, serveCmdConfig.WorkersPerConn)
	if err != nil {
		return err
	}

	host, err := server.NewRPCServerHost(*serveCmdConfig, t, s)
	if err != nil {
		return err
	}

	advertised := fmt.Sprintf("%s:%d", serveCmdConfig.AdvertiseHost, serveCmdConfig.AdvertisePort)
	for _, hs := range serveCmdConfig.Servers {
		uri, err := grid.ParseGridUri(hs.Grid)
		if err != nil {
			return err
		}
		srv, err := server.NewRPCServer(hs.Name, uri, advertised, host.Recorder())
		if err != nil {
			return err
		}
		if err := registerServants(srv); err != nil {
			return err
		}
		if err := host.AddServer(srv); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, err := grid.ParseClusterMode(serveCmdConfig.ClusterMode)
	if err != nil {
		return err
	}
	if mode != grid.ModeNone {
		c, err := cmdUtil.NewCoordinator(ctx, serveCmdConfig.Coord)
		if err != nil {
			return err
		}
		defer c.Close()
		host.SetCoordinator(c)
	}

	go func() {
		<-ctx.Done()
		_ = host.Close()
	}()

	return host.Serve()
}

func registerServants(srv *server.RPCServer) error {
	for _, name := range servantNames {
		var servant server.IServant
		switch name {
		case common.EchoServantName:
			servant = server.NewEchoServant()
		case common.KVServantName:
			servant = server.NewKVServant(server.NewKVStore())
		default:
			return fmt.Errorf("unknown servant %s (expected echo or kv)", name)
		}
		if err := srv.RegisterServant(servant); err != nil {
			return err
		}
	}
	return nil
}
