package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridUriRoundTrip(t *testing.T) {
	uris := []GridUri{
		MustGridUri("root", "proj", "cluster"),
		MustGridUri("  Root ", "PROJ", "Cluster"),
		MustGridUri("grid", "shop", "orders.eu.west"),
	}

	for _, u := range uris {
		t.Run(u.String(), func(t *testing.T) {
			parsed, err := ParseGridUri(u.String())
			require.NoError(t, err)
			assert.Equal(t, u, parsed)

			parsed, err = ParseGridUri(u.URI())
			require.NoError(t, err)
			assert.Equal(t, u, parsed)
		})
	}
}

func TestGridUriLowerCase(t *testing.T) {
	u, err := ParseGridUri("TCP://Cluster.Proj.Root")
	require.NoError(t, err)
	assert.Equal(t, "tcp", u.Scheme)
	assert.Equal(t, "cluster.proj.root", u.String())
	assert.Equal(t, "tcp://cluster.proj.root", u.URI())
	assert.Equal(t, "/proj-cpc/proj/cluster/register", u.RegisterPath())
	assert.Equal(t, "/proj-cpc/proj/cluster/register/s", u.NodePrefix())
}

func TestGridUriInvalid(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"root",
		"proj.root",
		"rpc://proj.root",
		".proj.root",
		"cluster..root",
		"cluster.proj.",
		"://cluster.proj.root",
	}

	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			_, err := ParseGridUri(s)
			require.Error(t, err)
			assert.Equal(t, CodeClusterInvalidParam, CodeOf(err))
		})
	}

	_, err := NewGridUri("root", "", "cluster")
	assert.Error(t, err)
	assert.False(t, GridUri{}.IsValid())
	assert.Equal(t, "", GridUri{}.String())
}

func TestClusterNodeInfo(t *testing.T) {
	u := MustGridUri("root", "proj", "cluster")

	_, err := NewClusterNodeInfo(u, "", "localhost", 80)
	assert.Error(t, err)
	_, err = NewClusterNodeInfo(u, "node", "", 80)
	assert.Error(t, err)
	_, err = NewClusterNodeInfo(u, "node", "localhost", 0)
	assert.Error(t, err)

	n, err := NewClusterNodeInfo(u, "Node-1", "127.0.0.1", 7000)
	require.NoError(t, err)
	n.InstanceNodeID = "s0000000001"
	n.IsOwner = true
	assert.Equal(t, "127.0.0.1:7000", n.Endpoint())
	assert.Equal(t, u, n.Grid())

	data, err := n.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s0000000001")

	decoded, err := UnmarshalClusterNodeInfo(data, "s0000000002")
	require.NoError(t, err)
	assert.Equal(t, "node-1", decoded.NodeName)
	assert.Equal(t, "s0000000002", decoded.InstanceNodeID)
	assert.False(t, decoded.IsOwner)

	_, err = UnmarshalClusterNodeInfo(nil, "s1")
	assert.Equal(t, CodeClusterReadFailed, CodeOf(err))
}

func TestCodes(t *testing.T) {
	tests := []struct {
		code     Code
		category Category
	}{
		{CodeSuccess, CategorySuccess},
		{CodeNoClient, CategoryTransport},
		{CodeClientClosed, CategoryTransport},
		{CodeSendFailRetry, CategorySend},
		{CodeAckServerNoRespond, CategoryAck},
		{CodeAckInvalidResponse, CategoryAck},
		{CodeServantNotFound, CategoryDispatch},
		{CodeClusterNoNode, CategoryMembership},
		{CodeUnknown, CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.category, tt.code.Category())
		})
	}

	// exact values are part of the wire contract
	assert.Equal(t, 1001, int(CodeNoClient))
	assert.Equal(t, 2002, int(CodeSendFailRetry))
	assert.Equal(t, 3001, int(CodeAckServerNoRespond))

	err := NewError(CodeSendFailRetry, "exhausted")
	assert.Equal(t, CodeSendFailRetry, CodeOf(err))
	assert.True(t, IsCode(err, CodeSendFailRetry))
	assert.Equal(t, CodeSuccess, CodeOf(nil))
	assert.Contains(t, err.Error(), "SendFailRetry")
}

func TestParseClusterMode(t *testing.T) {
	for _, m := range []ClusterMode{ModeNone, ModeMasterSlave, ModeCluster, ModeClusterWithHash} {
		parsed, err := ParseClusterMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseClusterMode("ring")
	assert.Error(t, err)
}
