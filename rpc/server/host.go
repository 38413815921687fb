package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/cluster"
	"github.com/ValentinKolb/gridRPC/lib/coord"
	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/serializer"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
	adminhttp "github.com/ValentinKolb/gridRPC/rpc/transport/http"
	"golang.org/x/time/rate"
)

// RPCServerHost binds one server transport to a set of RPCServers. Inbound
// calls are routed by servant name to the server hosting the servant.
//
// Usage:
//
//	host, _ := server.NewRPCServerHost(config, tcp.NewTCPDefaultServerTransport(), serializer.NewBinarySerializer())
//	orders, _ := server.NewRPCServer("orders", uri, config.Endpoint, host.Recorder())
//	_ = orders.RegisterServant(server.NewEchoServant())
//	_ = host.AddServer(orders)
//	host.SetCoordinator(coord.NewMemoryCoordinator())
//
//	if err := host.Serve(); err != nil {
//		panic(err)
//	}
type RPCServerHost struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	mode       grid.ClusterMode
	recorder   *PerformanceRecorder

	mu      sync.RWMutex
	servers []*RPCServer
	coord   coord.ICoordinator
	admin   *adminhttp.AdminServer

	dropLog   rate.Sometimes
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewRPCServerHost creates a host. The performance recorder always logs its
// flushes and additionally persists them if config.PerfDBPath is set.
func NewRPCServerHost(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) (*RPCServerHost, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	mode, err := grid.ParseClusterMode(config.ClusterMode)
	if err != nil {
		return nil, err
	}

	sinks := []IPerfSink{LogSink{}}
	if config.PerfDBPath != "" {
		bolt, err := OpenBoltSink(config.PerfDBPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, bolt)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RPCServerHost{
		config:     config,
		transport:  transport,
		serializer: serializer,
		mode:       mode,
		recorder:   NewPerformanceRecorder(config.PerfFlushInterval, sinks...),
		dropLog:    rate.Sometimes{First: 3, Interval: 10 * time.Second},
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Recorder returns the performance recorder shared by the hosted servers
func (h *RPCServerHost) Recorder() *PerformanceRecorder { return h.recorder }

// SetCoordinator sets the coordination service the servers register with. Without
// a coordinator (or in mode none) the servers are not announced.
func (h *RPCServerHost) SetCoordinator(c coord.ICoordinator) {
	h.mu.Lock()
	h.coord = c
	h.mu.Unlock()
}

// AddServer adds a server to the host. Server names must be unique.
func (h *RPCServerHost) AddServer(s *RPCServer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.servers {
		if strings.EqualFold(existing.Name(), s.Name()) {
			return fmt.Errorf("server %s already added", s.Name())
		}
	}
	h.servers = append(h.servers, s)
	return nil
}

// Servers returns the hosted servers
func (h *RPCServerHost) Servers() []*RPCServer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*RPCServer(nil), h.servers...)
}

// --------------------------------------------------------------------------
// Serve / Close
// --------------------------------------------------------------------------

// Serve starts the transport, the admin server and the performance recorder,
// announces the servers in their grids and blocks until the transport stops
func (h *RPCServerHost) Serve() error {
	if err := common.InitLoggers(h.config.LogLevel); err != nil {
		return err
	}
	Logger.Infof("Created RPC Server Host")
	Logger.Infof("%s", h.config.String())

	h.transport.RegisterHandler(h.handle)
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.transport.Listen(h.config)
	}()

	h.recorder.Start()

	if h.config.AdminEndpoint != "" {
		admin := adminhttp.NewAdminServer(h.config.AdminEndpoint, h.nodes, strings.EqualFold(h.config.LogLevel, "debug"))
		h.mu.Lock()
		h.admin = admin
		h.mu.Unlock()
		go func() {
			if err := admin.Listen(); err != nil {
				Logger.Errorf("admin server failed: %v", err)
			}
		}()
	}

	if err := h.announce(); err != nil {
		_ = h.Close()
		<-errCh
		return err
	}

	return <-errCh
}

// announce registers every server as node of its grid
func (h *RPCServerHost) announce() error {
	h.mu.RLock()
	c := h.coord
	h.mu.RUnlock()
	if c == nil || h.mode == grid.ModeNone {
		Logger.Infof("cluster mode %s, servers are not announced", h.mode)
		return nil
	}

	opts := cluster.Options{
		RetryBackoff:      h.config.Coord.RetryBackoff,
		KeepAliveInterval: h.config.Coord.KeepAliveInterval,
	}
	for _, s := range h.Servers() {
		node, err := grid.NewClusterNodeInfo(s.Grid(), h.nodeName(s), h.config.AdvertiseHost, h.config.AdvertisePort)
		if err != nil {
			return fmt.Errorf("server %s: %w", s.Name(), err)
		}
		if err := s.StartClusterNode(h.ctx, c, node, h.mode, opts); err != nil {
			return fmt.Errorf("server %s: %w", s.Name(), err)
		}
		Logger.Infof("server %s announced in %s as %s", s.Name(), s.Grid(), s.Agent().InstanceNodeID())

		if h.config.CommConfig != nil {
			data, err := json.Marshal(*h.config.CommConfig)
			if err != nil {
				return err
			}
			if err := s.Agent().PublishCommConfig(data); err != nil {
				return fmt.Errorf("server %s: failed to publish communicator config: %w", s.Name(), err)
			}
		}
	}
	return nil
}

func (h *RPCServerHost) nodeName(s *RPCServer) string {
	for _, hs := range h.config.Servers {
		if strings.EqualFold(hs.Name, s.Name()) && hs.NodeName != "" {
			return hs.NodeName
		}
	}
	return fmt.Sprintf("%s-%d", h.config.AdvertiseHost, h.config.AdvertisePort)
}

// nodes returns the membership of every hosted server (admin endpoint)
func (h *RPCServerHost) nodes() map[string][]*grid.ClusterNodeInfo {
	out := make(map[string][]*grid.ClusterNodeInfo)
	for _, s := range h.Servers() {
		out[s.Name()] = s.Nodes()
	}
	return out
}

// Close deregisters the servers and stops the transport, the admin server and
// the performance recorder
func (h *RPCServerHost) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.cancel()
		for _, s := range h.Servers() {
			s.Stop()
		}

		h.mu.RLock()
		admin := h.admin
		h.mu.RUnlock()
		if admin != nil {
			if cerr := admin.Close(); cerr != nil {
				Logger.Warningf("failed to close admin server: %v", cerr)
			}
		}

		err = h.transport.Close()
		h.recorder.Stop()
	})
	return err
}

// --------------------------------------------------------------------------
// Transport handler
// --------------------------------------------------------------------------

// handle decodes a frame, routes it and encodes the response. Frames that
// cannot be decoded cannot be correlated and are dropped.
func (h *RPCServerHost) handle(data []byte) []byte {
	req := &common.Message{}
	if err := h.serializer.Deserialize(data, req); err != nil {
		h.dropLog.Do(func() {
			Logger.Warningf("dropped undecodable request: %v", err)
		})
		return nil
	}

	var resp *common.Message
	switch {
	case req.Signal == common.SignalPing:
		resp = common.NewPong(req)
	case !req.IsRequest():
		h.dropLog.Do(func() {
			Logger.Warningf("dropped message with signal %s", req.Signal)
		})
		return nil
	default:
		resp = h.dispatch(req)
	}

	out, err := h.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response of %s.%s: %v", req.Servant, req.Method, err)
		out, err = h.serializer.Serialize(*common.NewInvalidResponse(req, "failed to serialize response"))
		if err != nil {
			return nil
		}
	}
	return out
}

// dispatch routes req to the server hosting its servant
func (h *RPCServerHost) dispatch(req *common.Message) *common.Message {
	for _, s := range h.Servers() {
		if _, ok := s.Lookup(req.Servant); ok {
			return s.CallServantMethod(req)
		}
	}
	Logger.Warningf("no server hosts servant %s", req.Servant)
	return common.NewInvalidResponse(req, fmt.Sprintf("servant %s not found", req.Servant))
}
