package grid

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ClusterNodeInfo describes one registered server process.
//
// The serialized form (stored as data of the ephemeral member node) only carries
// the naming and address fields. InstanceNodeID is the name of the member node
// and IsOwner is a local flag, so neither is part of the payload.
type ClusterNodeInfo struct {
	RootName    string `json:"rootName"`
	ProjName    string `json:"projName"`
	ClusterName string `json:"clusterName"`
	NodeName    string `json:"nodeName"`
	Host        string `json:"host"`
	Port        int    `json:"port"`

	InstanceNodeID string `json:"-"`
	IsOwner        bool   `json:"-"`
}

// NewClusterNodeInfo creates the node info a server announces for grid uri.
// Host and port are validated since clients will dial them.
func NewClusterNodeInfo(uri GridUri, nodeName, host string, port int) (*ClusterNodeInfo, error) {
	if !uri.IsValid() {
		return nil, NewError(CodeClusterInvalidParam, "invalid grid uri")
	}
	nodeName = normalize(nodeName)
	if nodeName == "" {
		return nil, NewError(CodeClusterInvalidParam, "node name must not be empty")
	}
	host = strings.TrimSpace(host)
	if host == "" || port < 1 || port > 65535 {
		return nil, Errorf(CodeClusterInvalidParam, "invalid host or port: %q:%d", host, port)
	}
	return &ClusterNodeInfo{
		RootName:    uri.Root,
		ProjName:    uri.Proj,
		ClusterName: uri.Cluster,
		NodeName:    nodeName,
		Host:        host,
		Port:        port,
	}, nil
}

// UnmarshalClusterNodeInfo decodes a member node payload and assigns the instance id
func UnmarshalClusterNodeInfo(data []byte, instanceNodeID string) (*ClusterNodeInfo, error) {
	if len(data) == 0 {
		return nil, Errorf(CodeClusterReadFailed, "empty node data for %s", instanceNodeID)
	}
	var n ClusterNodeInfo
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, Errorf(CodeClusterReadFailed, "invalid node data for %s: %v", instanceNodeID, err)
	}
	n.InstanceNodeID = instanceNodeID
	return &n, nil
}

// Marshal encodes the node payload
func (n *ClusterNodeInfo) Marshal() ([]byte, error) {
	return json.Marshal(n)
}

// Endpoint returns "host:port"
func (n *ClusterNodeInfo) Endpoint() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Grid returns the grid uri the node belongs to
func (n *ClusterNodeInfo) Grid() GridUri {
	return GridUri{Scheme: DefaultScheme, Root: n.RootName, Proj: n.ProjName, Cluster: n.ClusterName}
}

// Clone returns a copy of the node info
func (n *ClusterNodeInfo) Clone() *ClusterNodeInfo {
	c := *n
	return &c
}

func (n *ClusterNodeInfo) String() string {
	owner := ""
	if n.IsOwner {
		owner = " (owner)"
	}
	return fmt.Sprintf("%s[%s]@%s%s", n.NodeName, n.InstanceNodeID, n.Endpoint(), owner)
}
