package cluster

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/coord"
	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOpts = Options{RetryBackoff: 10 * time.Millisecond, KeepAliveInterval: 20 * time.Millisecond}

func testNode(t *testing.T, uri grid.GridUri, name string, port int) *grid.ClusterNodeInfo {
	t.Helper()
	n, err := grid.NewClusterNodeInfo(uri, name, "127.0.0.1", port)
	require.NoError(t, err)
	return n
}

func startAgent(t *testing.T, c coord.ICoordinator, node *grid.ClusterNodeInfo) *ClusterNodeAgent {
	t.Helper()
	a, err := NewClusterNodeAgent(c, node, grid.ModeClusterWithHash, testOpts)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func startClient(t *testing.T, c coord.ICoordinator, uri grid.GridUri) *ClusterClient {
	t.Helper()
	cl, err := NewClusterClient(c, uri, grid.ModeClusterWithHash, testOpts)
	require.NoError(t, err)
	require.NoError(t, cl.Start(context.Background()))
	t.Cleanup(cl.Stop)
	return cl
}

func instanceIDs(nodes []*grid.ClusterNodeInfo) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.InstanceNodeID)
	}
	return ids
}

func TestAgentRegistersAndMarksOwner(t *testing.T) {
	mem := coord.NewMemoryCoordinator()
	uri := grid.MustGridUri("root", "shop", "orders")

	a := startAgent(t, mem.NewSession(), testNode(t, uri, "n1", 7001))
	defer a.Stop()

	id := a.InstanceNodeID()
	assert.Equal(t, "s0000000000", id)

	nodes := a.Nodes()
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].IsOwner)
	assert.Equal(t, id, nodes[0].InstanceNodeID)
	assert.Equal(t, "127.0.0.1:7001", nodes[0].Endpoint())

	owner, err := a.Membership().ByHash(42)
	require.NoError(t, err)
	assert.Equal(t, id, owner.InstanceNodeID)

	cl := startClient(t, mem.NewSession(), uri)
	clientNodes := cl.Nodes()
	require.Len(t, clientNodes, 1)
	assert.False(t, clientNodes[0].IsOwner)
}

func TestClientFollowsMembership(t *testing.T) {
	mem := coord.NewMemoryCoordinator()
	uri := grid.MustGridUri("root", "shop", "orders")

	cl := startClient(t, mem.NewSession(), uri)
	assert.Empty(t, cl.Nodes())

	var changes atomic.Int32
	cl.RegisterNodeChangedHandler(func(nodes []*grid.ClusterNodeInfo) {
		changes.Add(1)
	})

	a1 := startAgent(t, mem.NewSession(), testNode(t, uri, "n1", 7001))
	a2 := startAgent(t, mem.NewSession(), testNode(t, uri, "n2", 7002))
	defer a2.Stop()

	require.Eventually(t, func() bool { return len(cl.Nodes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{a1.InstanceNodeID(), a2.InstanceNodeID()}, instanceIDs(cl.Nodes()))
	assert.GreaterOrEqual(t, changes.Load(), int32(1))

	// every bucket is owned by a live node
	view := cl.Membership().Snapshot()
	for b := 0; b < 1000; b++ {
		assert.Contains(t, []string{a1.InstanceNodeID(), a2.InstanceNodeID()}, view.Owner(b))
	}

	a1.Stop()
	require.Eventually(t, func() bool { return len(cl.Nodes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, a2.InstanceNodeID(), cl.Nodes()[0].InstanceNodeID)

	view = cl.Membership().Snapshot()
	for b := 0; b < 1000; b++ {
		assert.Equal(t, a2.InstanceNodeID(), view.Owner(b))
	}
}

func TestAgentReplaysRegistrationAfterSessionLoss(t *testing.T) {
	mem := coord.NewMemoryCoordinator()
	uri := grid.MustGridUri("root", "shop", "orders")

	session := mem.NewSession()
	a := startAgent(t, session, testNode(t, uri, "n1", 7001))
	defer a.Stop()
	cl := startClient(t, mem.NewSession(), uri)

	before := a.InstanceNodeID()
	session.ExpireSession()

	require.Eventually(t, func() bool {
		id := a.InstanceNodeID()
		nodes := cl.Nodes()
		return id != before && len(nodes) == 1 && nodes[0].InstanceNodeID == id
	}, 2*time.Second, 5*time.Millisecond)

	nodes := a.Nodes()
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].IsOwner)
}

func TestClientReadsCommConfig(t *testing.T) {
	mem := coord.NewMemoryCoordinator()
	uri := grid.MustGridUri("root", "shop", "orders")

	a := startAgent(t, mem.NewSession(), testNode(t, uri, "n1", 7001))
	defer a.Stop()
	require.NoError(t, a.PublishCommConfig([]byte(`{"retryTimes":5}`)))

	cl := startClient(t, mem.NewSession(), uri)
	assert.JSONEq(t, `{"retryTimes":5}`, string(cl.CommConfigData()))
}

func TestInvalidParameters(t *testing.T) {
	mem := coord.NewMemoryCoordinator()

	_, err := NewClusterClient(mem, grid.GridUri{}, grid.ModeCluster, Options{})
	assert.True(t, grid.IsCode(err, grid.CodeClusterInvalidParam))

	_, err = NewClusterNodeAgent(mem, nil, grid.ModeCluster, Options{})
	assert.True(t, grid.IsCode(err, grid.CodeClusterInvalidParam))

	_, err = NewClusterClient(nil, grid.MustGridUri("a", "b", "c"), grid.ModeCluster, Options{})
	assert.True(t, grid.IsCode(err, grid.CodeClusterInvalidParam))
}

func TestStartFailsOnClosedCoordinator(t *testing.T) {
	mem := coord.NewMemoryCoordinator()
	require.NoError(t, mem.Close())

	cl, err := NewClusterClient(mem, grid.MustGridUri("a", "b", "c"), grid.ModeCluster, testOpts)
	require.NoError(t, err)
	err = cl.Start(context.Background())
	assert.True(t, grid.IsCode(err, grid.CodeClusterConnectFailed))
}
