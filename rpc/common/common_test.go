package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommunicatorConfigJSON(t *testing.T) {
	var c CommunicatorConfig
	require.NoError(t, json.Unmarshal([]byte(`{"retryTimes":5,"requestTimeout":250}`), &c))

	assert.Equal(t, 5, c.RetryTimes)
	assert.Equal(t, 250*time.Millisecond, c.RequestTimeout)
	// missing fields keep their defaults
	assert.Equal(t, DefaultConnectionPoolSize, c.ConnectionPoolSize)
	assert.Equal(t, DefaultRequestWaitingAckTimeout, c.RequestWaitingAckTimeout)
	assert.Equal(t, DefaultSweepInterval, c.SweepInterval)

	out, err := json.Marshal(c)
	require.NoError(t, err)
	var back CommunicatorConfig
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, c, back)
}

func TestCommunicatorConfigWithDefaults(t *testing.T) {
	c := CommunicatorConfig{RetryTimes: -1, ConnectTimeout: time.Second}.WithDefaults()
	assert.Equal(t, 0, c.RetryTimes)
	assert.Equal(t, time.Second, c.ConnectTimeout)
	assert.Equal(t, DefaultRequestTimeout, c.RequestTimeout)
	assert.Equal(t, DefaultSweepBatch, c.SweepBatch)
}

func TestSignals(t *testing.T) {
	req := NewRequest("kv", "get", []byte("x"))
	req.CbID = 3
	assert.True(t, req.IsRequest())
	assert.Equal(t, "__rpccall:kv.get", req.Signal)

	resp := NewResponse(req, nil)
	assert.True(t, resp.IsResponse())
	assert.Equal(t, uint64(3), resp.CbID)

	inv := NewInvalidResponse(req, "boom")
	assert.True(t, inv.IsResponse())
	assert.True(t, inv.Err)
	assert.Equal(t, "boom", inv.ErrMsg)

	assert.True(t, NewPing().IsRequest())
	assert.True(t, NewPong(NewPing()).IsResponse())
}

func TestParseLogLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "INFO"} {
		_, err := ParseLogLevel(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestConfigString(t *testing.T) {
	c := &ServerConfig{Endpoint: "0.0.0.0:7001", Servers: []HostedServer{{Name: "orders", Grid: "orders.shop.root"}}}
	s := c.String()
	assert.Contains(t, s, "0.0.0.0:7001")
	assert.Contains(t, s, "orders.shop.root")
	assert.Contains(t, s, "in-process")
}
