package common

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Formatting helpers
// --------------------------------------------------------------------------

// configWriter collects sections and fields for the String() methods
type configWriter struct {
	sb strings.Builder
}

func (w *configWriter) addSection(title string) {
	w.sb.WriteString("\n")
	w.sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func (w *configWriter) addField(name, value string) {
	w.sb.WriteString(fmt.Sprintf("  %-26s: %s\n", name, value))
}

func (w *configWriter) String() string {
	return w.sb.String()
}

// --------------------------------------------------------------------------
// Communicator configuration
// --------------------------------------------------------------------------

const (
	DefaultConnectionPoolSize       = 50
	DefaultConnectTimeout           = 200 * time.Millisecond
	DefaultRequestTimeout           = 3000 * time.Millisecond
	DefaultRequestWaitingAckTimeout = 9000 * time.Millisecond
	DefaultRetryTimes               = 2
	DefaultSweepInterval            = 5 * time.Second
	DefaultSweepBatch               = 1024
	DefaultSweepSlack               = 60 * time.Second
)

// CommunicatorConfig holds the per-cluster transport policy of a Communicator.
// The cluster wide override is stored as JSON (durations in milliseconds) in the
// data of the cluster register node.
type CommunicatorConfig struct {
	ConnectionPoolSize       int
	ConnectTimeout           time.Duration
	RequestTimeout           time.Duration // send confirmation wait
	RequestWaitingAckTimeout time.Duration // response wait, also the transaction expiry
	RetryTimes               int           // additional attempts after the first

	SweepInterval time.Duration
	SweepBatch    int
	SweepSlack    time.Duration
}

// DefaultCommunicatorConfig returns the default communicator configuration
func DefaultCommunicatorConfig() CommunicatorConfig {
	return CommunicatorConfig{
		ConnectionPoolSize:       DefaultConnectionPoolSize,
		ConnectTimeout:           DefaultConnectTimeout,
		RequestTimeout:           DefaultRequestTimeout,
		RequestWaitingAckTimeout: DefaultRequestWaitingAckTimeout,
		RetryTimes:               DefaultRetryTimes,
		SweepInterval:            DefaultSweepInterval,
		SweepBatch:               DefaultSweepBatch,
		SweepSlack:               DefaultSweepSlack,
	}
}

// WithDefaults replaces unset (non-positive) values with the defaults
func (c CommunicatorConfig) WithDefaults() CommunicatorConfig {
	d := DefaultCommunicatorConfig()
	if c.ConnectionPoolSize <= 0 {
		c.ConnectionPoolSize = d.ConnectionPoolSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.RequestWaitingAckTimeout <= 0 {
		c.RequestWaitingAckTimeout = d.RequestWaitingAckTimeout
	}
	if c.RetryTimes < 0 {
		c.RetryTimes = 0
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = d.SweepBatch
	}
	if c.SweepSlack < 0 {
		c.SweepSlack = d.SweepSlack
	}
	return c
}

// communicatorConfigJSON is the stored form of CommunicatorConfig
type communicatorConfigJSON struct {
	ConnectionPoolSize       *int   `json:"connectionPoolSize,omitempty"`
	ConnectTimeout           *int64 `json:"connectTimeout,omitempty"`
	RequestTimeout           *int64 `json:"requestTimeout,omitempty"`
	RequestWaitingAckTimeout *int64 `json:"requestWaitingAckTimeout,omitempty"`
	RetryTimes               *int   `json:"retryTimes,omitempty"`
}

func ms(d time.Duration) *int64 {
	v := d.Milliseconds()
	return &v
}

// MarshalJSON implements json.Marshaler
func (c CommunicatorConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(communicatorConfigJSON{
		ConnectionPoolSize:       &c.ConnectionPoolSize,
		ConnectTimeout:           ms(c.ConnectTimeout),
		RequestTimeout:           ms(c.RequestTimeout),
		RequestWaitingAckTimeout: ms(c.RequestWaitingAckTimeout),
		RetryTimes:               &c.RetryTimes,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Fields missing from the JSON keep
// their default value, sweep settings are never stored.
func (c *CommunicatorConfig) UnmarshalJSON(data []byte) error {
	var raw communicatorConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = DefaultCommunicatorConfig()
	if raw.ConnectionPoolSize != nil {
		c.ConnectionPoolSize = *raw.ConnectionPoolSize
	}
	if raw.ConnectTimeout != nil {
		c.ConnectTimeout = time.Duration(*raw.ConnectTimeout) * time.Millisecond
	}
	if raw.RequestTimeout != nil {
		c.RequestTimeout = time.Duration(*raw.RequestTimeout) * time.Millisecond
	}
	if raw.RequestWaitingAckTimeout != nil {
		c.RequestWaitingAckTimeout = time.Duration(*raw.RequestWaitingAckTimeout) * time.Millisecond
	}
	if raw.RetryTimes != nil {
		c.RetryTimes = *raw.RetryTimes
	}
	*c = c.WithDefaults()
	return nil
}

// String returns a formatted string representation of the configuration
func (c *CommunicatorConfig) String() string {
	w := &configWriter{}
	w.addSection("Communicator")
	c.writeFields(w)
	return w.String()
}

func (c *CommunicatorConfig) writeFields(w *configWriter) {
	w.addField("Connection Pool Size", strconv.Itoa(c.ConnectionPoolSize))
	w.addField("Connect Timeout", c.ConnectTimeout.String())
	w.addField("Request Timeout", c.RequestTimeout.String())
	w.addField("Waiting Ack Timeout", c.RequestWaitingAckTimeout.String())
	w.addField("Retry Times", strconv.Itoa(c.RetryTimes))
	w.addField("Sweep", fmt.Sprintf("every %s, %d keys, slack %s", c.SweepInterval, c.SweepBatch, c.SweepSlack))
}

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf holds socket buffer settings (bytes, 0 = OS default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds tcp specific socket settings
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative = OS default
}

// TransportConfig selects and tunes the stream transport
type TransportConfig struct {
	// Kind is "tcp" or "unix"
	Kind string
	SocketConf
	TCPConf
}

// DefaultTransportConfig returns a tcp transport with no-delay enabled
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Kind:    "tcp",
		TCPConf: TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
	}
}

func (c *TransportConfig) writeFields(w *configWriter) {
	w.addField("Transport", c.Kind)
	if c.WriteBufferSize > 0 || c.ReadBufferSize > 0 {
		w.addField("Socket Buffers (w/r)", fmt.Sprintf("%d / %d bytes", c.WriteBufferSize, c.ReadBufferSize))
	}
	if c.Kind == "tcp" {
		w.addField("TCP NoDelay", strconv.FormatBool(c.TCPNoDelay))
		w.addField("TCP KeepAlive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
		w.addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPLingerSec))
	}
}

// --------------------------------------------------------------------------
// Coordination service configuration
// --------------------------------------------------------------------------

const (
	DefaultSessionTimeout    = 10 * time.Second
	DefaultRetryBackoff      = 500 * time.Millisecond
	DefaultKeepAliveInterval = 1500 * time.Millisecond
)

// CoordConfig configures the coordination service connection. An empty server
// list selects the in-process coordinator.
type CoordConfig struct {
	Servers           []string
	SessionTimeout    time.Duration
	RetryBackoff      time.Duration // fixed backoff of the connect / register retry loop
	KeepAliveInterval time.Duration // session check interval
}

// DefaultCoordConfig returns the default coordination configuration
func DefaultCoordConfig() CoordConfig {
	return CoordConfig{
		SessionTimeout:    DefaultSessionTimeout,
		RetryBackoff:      DefaultRetryBackoff,
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}

// WithDefaults replaces unset values with the defaults
func (c CoordConfig) WithDefaults() CoordConfig {
	d := DefaultCoordConfig()
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = d.SessionTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = d.KeepAliveInterval
	}
	return c
}

func (c *CoordConfig) writeFields(w *configWriter) {
	if len(c.Servers) == 0 {
		w.addField("Coordinator", "in-process")
		return
	}
	w.addField("Coordinator", strings.Join(c.Servers, ","))
	w.addField("Session Timeout", c.SessionTimeout.String())
	w.addField("Retry Backoff", c.RetryBackoff.String())
	w.addField("Keep Alive Interval", c.KeepAliveInterval.String())
}

// --------------------------------------------------------------------------
// RPC server configuration
// --------------------------------------------------------------------------

// HostedServer is one logical server (a set of servants bound to a grid uri)
// hosted by a process
type HostedServer struct {
	Name     string
	Grid     string // grid uri string, "cluster.proj.root"
	NodeName string
}

// ServerConfig holds all configuration parameters of a server process
type ServerConfig struct {
	// Endpoint the transport listens on (host:port or socket path)
	Endpoint string
	// AdvertiseHost and AdvertisePort are published in the membership
	AdvertiseHost string
	AdvertisePort int

	Transport      TransportConfig
	TimeoutSecond  int64 // write deadline for responses
	WorkersPerConn int
	BufferSize     int

	Servers     []HostedServer
	ClusterMode string
	Coord       CoordConfig
	// CommConfig is published in the grids of all servers, nil keeps the stored one
	CommConfig *CommunicatorConfig

	// Admin HTTP endpoint (metrics, nodes), empty disables it
	AdminEndpoint string

	// Performance recorder
	PerfFlushInterval time.Duration
	PerfDBPath        string // empty disables the bolt sink

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	w := &configWriter{}

	w.addSection("RPC Server")
	w.addField("Endpoint", c.Endpoint)
	w.addField("Advertise", fmt.Sprintf("%s:%d", c.AdvertiseHost, c.AdvertisePort))
	w.addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	w.addField("Workers Per Connection", strconv.Itoa(c.WorkersPerConn))
	c.Transport.writeFields(w)

	w.addSection("Grid")
	w.addField("Cluster Mode", c.ClusterMode)
	for _, s := range c.Servers {
		w.addField(s.Name, fmt.Sprintf("%s (node %s)", s.Grid, s.NodeName))
	}
	c.Coord.writeFields(w)
	if c.CommConfig != nil {
		c.CommConfig.writeFields(w)
	}

	w.addSection("Admin")
	if c.AdminEndpoint == "" {
		w.addField("Admin Endpoint", "disabled")
	} else {
		w.addField("Admin Endpoint", c.AdminEndpoint)
	}
	w.addField("Perf Flush Interval", c.PerfFlushInterval.String())
	if c.PerfDBPath != "" {
		w.addField("Perf DB", c.PerfDBPath)
	}

	w.addSection("Logging")
	w.addField("Log Level", c.LogLevel)

	return w.String()
}

// --------------------------------------------------------------------------
// RPC client configuration
// --------------------------------------------------------------------------

// ClientConfig holds the configuration of a cluster client process
type ClientConfig struct {
	Grid         string
	ClusterMode  string
	Serializer   string // json, gob or binary
	Coord        CoordConfig
	Communicator CommunicatorConfig
	Transport    TransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	w := &configWriter{}

	w.addSection("Client Configuration")
	w.addField("Grid", c.Grid)
	w.addField("Cluster Mode", c.ClusterMode)
	w.addField("Serializer", c.Serializer)
	c.Coord.writeFields(w)
	c.Transport.writeFields(w)

	w.addSection("Communicator")
	c.Communicator.writeFields(w)

	return w.String()
}
