package client

import (
	"time"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/lib/membership"
	"github.com/ValentinKolb/gridRPC/rpc/common"
)

// KVClient calls the built-in kv servant of a grid. The node serving a key is
// chosen by the cluster mode of the grid: the bucket owner in cluster-hash mode,
// the master in master-slave mode and hash(key) mod n otherwise.
type KVClient struct {
	invoker *ClusterInvoker
}

// NewKVClient creates a kv client on top of invoker
func NewKVClient(invoker *ClusterInvoker) *KVClient {
	return &KVClient{invoker: invoker}
}

func (c *KVClient) proxy(key string) (*ObjectProxy, error) {
	switch c.invoker.Mode() {
	case grid.ModeClusterWithHash:
		return c.invoker.ByHashKey(common.KVServantName, key)
	case grid.ModeMasterSlave:
		return c.invoker.Master(common.KVServantName)
	default:
		return c.invoker.ByMod(common.KVServantName, membership.HashKey(key))
	}
}

func (c *KVClient) call(method string, args common.KVArgs) (common.KVResult, error) {
	p, err := c.proxy(args.Key)
	if err != nil {
		return common.KVResult{}, err
	}
	return Invoke[common.KVResult](p, method, args)
}

// Set stores value under key. A ttl of 0 means the key never expires.
func (c *KVClient) Set(key string, value []byte, ttl time.Duration) error {
	_, err := c.call(common.KVMethodSet, common.KVArgs{Key: key, Value: value, TTLMillis: ttl.Milliseconds()})
	return err
}

// Get returns the value of key and whether it was found
func (c *KVClient) Get(key string) ([]byte, bool, error) {
	res, err := c.call(common.KVMethodGet, common.KVArgs{Key: key})
	return res.Value, res.Ok, err
}

// Has reports whether key exists
func (c *KVClient) Has(key string) (bool, error) {
	res, err := c.call(common.KVMethodHas, common.KVArgs{Key: key})
	return res.Ok, err
}

// Delete removes key and reports whether it existed
func (c *KVClient) Delete(key string) (bool, error) {
	res, err := c.call(common.KVMethodDel, common.KVArgs{Key: key})
	return res.Ok, err
}
