package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/cluster"
	"github.com/ValentinKolb/gridRPC/lib/coord"
	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/serializer"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
)

// ClientFactory creates and starts the cluster client of a grid
type ClientFactory func(uri grid.GridUri, mode grid.ClusterMode) (*cluster.ClusterClient, error)

// CommFactory creates and starts the communicator of a node
type CommFactory func(node *grid.ClusterNodeInfo, config common.CommunicatorConfig) (*Communicator, error)

// NewClientFactory returns a ClientFactory starting clients on c. Start is
// bounded by startTimeout (0 waits forever).
func NewClientFactory(c coord.ICoordinator, opts cluster.Options, startTimeout time.Duration) ClientFactory {
	return func(uri grid.GridUri, mode grid.ClusterMode) (*cluster.ClusterClient, error) {
		cl, err := cluster.NewClusterClient(c, uri, mode, opts)
		if err != nil {
			return nil, err
		}
		ctx := context.Background()
		if startTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, startTimeout)
			defer cancel()
		}
		if err := cl.Start(ctx); err != nil {
			cl.Stop()
			return nil, err
		}
		return cl, nil
	}
}

// NewCommFactory returns a CommFactory creating communicators with the given
// serializer and transport
func NewCommFactory(s serializer.IRPCSerializer, poolFactory transport.PoolFactory) CommFactory {
	return func(node *grid.ClusterNodeInfo, config common.CommunicatorConfig) (*Communicator, error) {
		comm := NewCommunicator(node.Grid().String()+"/"+node.InstanceNodeID, config, s, poolFactory)
		comm.Start()
		return comm, nil
	}
}

// ClusterInvoker resolves a grid to its cluster client and a selected node to
// an ObjectProxy on the cached communicator of that node
type ClusterInvoker struct {
	registry    *Registry
	uri         grid.GridUri
	client      *cluster.ClusterClient
	config      common.CommunicatorConfig
	commFactory CommFactory
}

// NewClusterInvoker creates the invoker of uri. The communicator configuration
// stored in the grid overrides the defaults.
func NewClusterInvoker(registry *Registry, uri grid.GridUri, mode grid.ClusterMode, clientFactory ClientFactory, commFactory CommFactory) (*ClusterInvoker, error) {
	if !uri.IsValid() {
		return nil, grid.NewError(grid.CodeClusterInvalidParam, "invalid grid uri")
	}
	if registry == nil || clientFactory == nil || commFactory == nil {
		return nil, grid.NewError(grid.CodeClusterInvalidParam, "registry and factories must be supplied")
	}

	cl, err := registry.ClusterClient(uri, func() (*cluster.ClusterClient, error) {
		return clientFactory(uri, mode)
	})
	if err != nil {
		return nil, err
	}
	if cl.Membership().Mode() != mode {
		return nil, grid.Errorf(grid.CodeClusterInvalidMode, "grid %s is already used in mode %s", uri, cl.Membership().Mode())
	}

	inv := &ClusterInvoker{
		registry:    registry,
		uri:         uri,
		client:      cl,
		config:      parseCommConfig(uri, cl.CommConfigData()),
		commFactory: commFactory,
	}
	cl.RegisterNodeChangedHandler(func(nodes []*grid.ClusterNodeInfo) {
		registry.RetainCommunicators(uri, nodes)
	})
	return inv, nil
}

func parseCommConfig(uri grid.GridUri, data []byte) common.CommunicatorConfig {
	if len(data) == 0 {
		return common.DefaultCommunicatorConfig()
	}
	var config common.CommunicatorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		Logger.Warningf("invalid communicator config stored for %s, using defaults: %v", uri, err)
		return common.DefaultCommunicatorConfig()
	}
	return config
}

// Grid returns the grid uri
func (i *ClusterInvoker) Grid() grid.GridUri { return i.uri }

// Mode returns the cluster mode of the grid
func (i *ClusterInvoker) Mode() grid.ClusterMode { return i.client.Membership().Mode() }

// Config returns the communicator configuration used for the grid
func (i *ClusterInvoker) Config() common.CommunicatorConfig { return i.config }

// Nodes returns the current members of the grid
func (i *ClusterInvoker) Nodes() []*grid.ClusterNodeInfo { return i.client.Nodes() }

// --------------------------------------------------------------------------
// Selection
// --------------------------------------------------------------------------

// ByMod returns a proxy on nodes[|key| mod n]
func (i *ClusterInvoker) ByMod(servant string, key int64) (*ObjectProxy, error) {
	return i.proxy(servant)(i.client.Membership().ByMod(key))
}

// ByHash returns a proxy on the owner of the bucket of key (ClusterWithHash only)
func (i *ClusterInvoker) ByHash(servant string, key int64) (*ObjectProxy, error) {
	return i.proxy(servant)(i.client.Membership().ByHash(key))
}

// ByHashKey returns a proxy on the owner of the bucket of a string key (ClusterWithHash only)
func (i *ClusterInvoker) ByHashKey(servant string, key string) (*ObjectProxy, error) {
	return i.proxy(servant)(i.client.Membership().ByHashKey(key))
}

// ByRandom returns a proxy on a random node
func (i *ClusterInvoker) ByRandom(servant string) (*ObjectProxy, error) {
	return i.proxy(servant)(i.client.Membership().Random())
}

// Master returns a proxy on the master (MasterSlave only)
func (i *ClusterInvoker) Master(servant string) (*ObjectProxy, error) {
	return i.proxy(servant)(i.client.Membership().Master())
}

// Slave returns a proxy on a random slave (MasterSlave only)
func (i *ClusterInvoker) Slave(servant string) (*ObjectProxy, error) {
	return i.proxy(servant)(i.client.Membership().Slave())
}

// ByInstanceID returns a proxy on the node with the given instance id
func (i *ClusterInvoker) ByInstanceID(servant string, instanceID string) (*ObjectProxy, error) {
	return i.proxy(servant)(i.client.Membership().ByInstanceID(instanceID))
}

// proxy returns a function turning a selection result into a proxy
func (i *ClusterInvoker) proxy(servant string) func(*grid.ClusterNodeInfo, error) (*ObjectProxy, error) {
	return func(node *grid.ClusterNodeInfo, err error) (*ObjectProxy, error) {
		if err != nil {
			return nil, err
		}
		comm, err := i.registry.Communicator(node, func() (*Communicator, error) {
			return i.commFactory(node, i.config)
		})
		if err != nil {
			return nil, grid.Errorf(grid.CodeObtainFailed, "no communicator for %s: %v", node, err)
		}
		return NewObjectProxy(comm, node.Endpoint(), servant), nil
	}
}
