package server

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/cluster"
	"github.com/ValentinKolb/gridRPC/lib/coord"
	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc/server")

// RPCServer is one logical server: a set of servants bound to a grid. It
// dispatches calls to its servants and, once started as a cluster node,
// announces itself in the grid.
type RPCServer struct {
	name     string
	uri      grid.GridUri
	host     string
	servants *ServantRegistry
	recorder *PerformanceRecorder

	tid atomic.Uint64

	mu    sync.RWMutex
	agent *cluster.ClusterNodeAgent
}

// NewRPCServer creates a server for grid uri. host is the advertised endpoint
// used in the performance statistics; recorder may be nil.
func NewRPCServer(name string, uri grid.GridUri, host string, recorder *PerformanceRecorder) (*RPCServer, error) {
	if !uri.IsValid() {
		return nil, grid.Errorf(grid.CodeClusterInvalidParam, "server %s: invalid grid uri", name)
	}
	return &RPCServer{
		name:     name,
		uri:      uri,
		host:     host,
		servants: NewServantRegistry(),
		recorder: recorder,
	}, nil
}

// Name returns the server name
func (s *RPCServer) Name() string { return s.name }

// Grid returns the grid the server belongs to
func (s *RPCServer) Grid() grid.GridUri { return s.uri }

// RegisterServant adds a servant to the server
func (s *RPCServer) RegisterServant(servant IServant) error {
	if err := s.servants.Register(servant); err != nil {
		return fmt.Errorf("server %s: %w", s.name, err)
	}
	Logger.Debugf("[%s] registered servant %s", s.name, servant.Name())
	return nil
}

// Lookup returns the servant registered under name (case-insensitive)
func (s *RPCServer) Lookup(name string) (IServant, bool) {
	return s.servants.Lookup(name)
}

// Servants returns the names of all servants
func (s *RPCServer) Servants() []string {
	return s.servants.Names()
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

// CallServantMethod dispatches req to its servant and returns the response. A
// missing servant, a failing servant or an empty result produce an invalid
// response stamped with the correlation id of the request, so the caller
// never waits for its timeout.
func (s *RPCServer) CallServantMethod(req *common.Message) *common.Message {
	req.Tid = s.tid.Add(1)

	servant, ok := s.servants.Lookup(req.Servant)
	if !ok {
		Logger.Warningf("[%s] servant %s not found (tid %d)", s.name, req.Servant, req.Tid)
		s.record(req, 0, true)
		return common.NewInvalidResponse(req, fmt.Sprintf("servant %s not found", req.Servant))
	}

	start := time.Now()
	payload, err := s.invoke(servant, req)
	elapsed := time.Since(start)
	if err == nil && payload == nil {
		err = grid.Errorf(grid.CodeServantFailed, "servant %s returned no response", servant.Name())
	}

	if err != nil {
		Logger.Warningf("[%s] %s.%s failed (tid %d): %v", s.name, req.Servant, req.Method, req.Tid, err)
		s.record(req, elapsed, true)
		return common.NewInvalidResponse(req, err.Error())
	}

	s.record(req, elapsed, false)
	return common.NewResponse(req, payload)
}

// invoke runs the servant and turns panics into errors
func (s *RPCServer) invoke(servant IServant, req *common.Message) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("[%s] servant %s panicked: %v\n%s", s.name, servant.Name(), r, debug.Stack())
			err = grid.Errorf(grid.CodeServantFailed, "servant %s panicked: %v", servant.Name(), r)
		}
	}()
	return servant.Handle(req)
}

func (s *RPCServer) record(req *common.Message, elapsed time.Duration, failed bool) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(s.uri.String(), s.host, req.Servant, req.Method, elapsed, failed)
}

// --------------------------------------------------------------------------
// Cluster node
// --------------------------------------------------------------------------

// StartClusterNode announces node in the grid of the server. It blocks until
// the node is registered or ctx is done.
func (s *RPCServer) StartClusterNode(ctx context.Context, c coord.ICoordinator, node *grid.ClusterNodeInfo, mode grid.ClusterMode, opts cluster.Options) error {
	if node.Grid() != s.uri {
		return grid.Errorf(grid.CodeClusterInvalidParam, "node %s does not belong to grid %s", node.NodeName, s.uri)
	}
	agent, err := cluster.NewClusterNodeAgent(c, node, mode, opts)
	if err != nil {
		return err
	}
	if err := agent.Start(ctx); err != nil {
		agent.Stop()
		return err
	}

	s.mu.Lock()
	s.agent = agent
	s.mu.Unlock()
	return nil
}

// Agent returns the cluster agent, nil before StartClusterNode
func (s *RPCServer) Agent() *cluster.ClusterNodeAgent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agent
}

// Nodes returns the members of the grid as seen by the agent
func (s *RPCServer) Nodes() []*grid.ClusterNodeInfo {
	if a := s.Agent(); a != nil {
		return a.Nodes()
	}
	return nil
}

// Stop removes the node from the grid
func (s *RPCServer) Stop() {
	s.mu.Lock()
	agent := s.agent
	s.agent = nil
	s.mu.Unlock()
	if agent != nil {
		agent.Stop()
	}
}

// --------------------------------------------------------------------------
// Server side node selection (over the agent's view)
// --------------------------------------------------------------------------

var errNotClustered = grid.NewError(grid.CodeClusterFail, "server is not started as cluster node")

func (s *RPCServer) members() (*cluster.ClusterNodeAgent, error) {
	a := s.Agent()
	if a == nil {
		return nil, errNotClustered
	}
	return a, nil
}

// Master returns the master node of the grid (MasterSlave only)
func (s *RPCServer) Master() (*grid.ClusterNodeInfo, error) {
	a, err := s.members()
	if err != nil {
		return nil, err
	}
	return a.Membership().Master()
}

// Slave returns a random slave node of the grid (MasterSlave only)
func (s *RPCServer) Slave() (*grid.ClusterNodeInfo, error) {
	a, err := s.members()
	if err != nil {
		return nil, err
	}
	return a.Membership().Slave()
}

// IsMaster reports whether the local node is the master of the grid
func (s *RPCServer) IsMaster() bool {
	master, err := s.Master()
	return err == nil && master.IsOwner
}

// Random returns a random node of the grid
func (s *RPCServer) Random() (*grid.ClusterNodeInfo, error) {
	a, err := s.members()
	if err != nil {
		return nil, err
	}
	return a.Membership().Random()
}

// ByMod returns nodes[|val| mod n]
func (s *RPCServer) ByMod(val int64) (*grid.ClusterNodeInfo, error) {
	a, err := s.members()
	if err != nil {
		return nil, err
	}
	return a.Membership().ByMod(val)
}

// ByHash returns the owner of the bucket of key (ClusterWithHash only)
func (s *RPCServer) ByHash(key int64) (*grid.ClusterNodeInfo, error) {
	a, err := s.members()
	if err != nil {
		return nil, err
	}
	return a.Membership().ByHash(key)
}

// ByHashKey returns the owner of the bucket of a string key (ClusterWithHash only)
func (s *RPCServer) ByHashKey(key string) (*grid.ClusterNodeInfo, error) {
	a, err := s.members()
	if err != nil {
		return nil, err
	}
	return a.Membership().ByHashKey(key)
}

// ByInstanceID returns the node with the given instance id
func (s *RPCServer) ByInstanceID(id string) (*grid.ClusterNodeInfo, error) {
	a, err := s.members()
	if err != nil {
		return nil, err
	}
	return a.Membership().ByInstanceID(id)
}
