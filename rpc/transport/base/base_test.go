package base

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/gridRPC/rpc/common"
	"github.com/ValentinKolb/gridRPC/rpc/transport"
)

// testConnector dials and listens on loopback TCP and reports the listen address
type testConnector struct {
	addrCh chan string
}

func (c *testConnector) GetName() string { return "test" }

func (c *testConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

func (c *testConnector) Listen(_ common.ServerConfig) (net.Listener, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err == nil {
		c.addrCh <- l.Addr().String()
	}
	return l, err
}

func (c *testConnector) UpgradeConnection(net.Conn, common.TransportConfig) error { return nil }

// startEchoServer starts a server transport that echoes every frame
func startEchoServer(t *testing.T) (string, transport.IRPCServerTransport) {
	t.Helper()
	connector := &testConnector{addrCh: make(chan string, 1)}
	srv := NewBaseServerTransport(connector, 1024, 4)
	srv.RegisterHandler(func(req []byte) []byte {
		if bytes.Equal(req, []byte("silent")) {
			return nil
		}
		return append([]byte("echo:"), req...)
	})

	go func() {
		_ = srv.Listen(common.ServerConfig{Endpoint: "127.0.0.1:0", TimeoutSecond: 1})
	}()

	select {
	case addr := <-connector.addrCh:
		t.Cleanup(func() { _ = srv.Close() })
		return addr, srv
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
		return "", nil
	}
}

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payloads := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{1}, 4096)}

	go func() {
		for _, p := range payloads {
			if err := writeFrame(client, p); err != nil {
				t.Errorf("write failed: %v", err)
			}
		}
	}()

	buf := make([]byte, 16)
	for _, p := range payloads {
		data, err := readFrame(server, buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if !bytes.Equal(p, data) {
			t.Errorf("expected %d bytes, got %d", len(p), len(data))
		}
	}
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	data := []byte{0, 0, 0, 0, 0, 1, 'x'}
	if _, err := readFrame(bytes.NewReader(data), nil); err == nil {
		t.Errorf("expected error for invalid magic")
	}
}

func TestPoolSendAndReceive(t *testing.T) {
	addr, _ := startEchoServer(t)

	received := make(chan []byte, 4)
	completed := make(chan any, 4)

	factory := NewPoolFactory(&testConnector{}, common.TransportConfig{})
	pool, err := factory(addr, common.CommunicatorConfig{ConnectionPoolSize: 2},
		func(_ transport.IConnection, data []byte) { received <- data },
		func(_ transport.IConnection, state any, err error) {
			if err != nil {
				t.Errorf("send failed: %v", err)
			}
			completed <- state
		})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if conn.Endpoint() != addr {
		t.Errorf("expected endpoint %s, got %s", addr, conn.Endpoint())
	}

	if !conn.SendAsync([]byte("ping"), 42) {
		t.Fatal("send rejected")
	}

	select {
	case state := <-completed:
		if state != 42 {
			t.Errorf("expected state 42, got %v", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no send completion")
	}

	select {
	case data := <-received:
		if string(data) != "echo:ping" {
			t.Errorf("unexpected response %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response")
	}

	pool.Release(conn)
}

func TestPoolExhaustion(t *testing.T) {
	addr, _ := startEchoServer(t)

	factory := NewPoolFactory(&testConnector{}, common.TransportConfig{})
	pool, err := factory(addr, common.CommunicatorConfig{ConnectionPoolSize: 1}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	first, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if _, err := pool.Acquire(50 * time.Millisecond); err == nil {
		t.Fatal("expected exhausted pool")
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Errorf("acquire returned before the timeout")
	}

	// a released connection is handed out again
	var wg sync.WaitGroup
	wg.Add(1)
	var second transport.IConnection
	go func() {
		defer wg.Done()
		second, err = pool.Acquire(time.Second)
	}()
	time.Sleep(20 * time.Millisecond)
	pool.Release(first)
	wg.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("expected the released connection")
	}

	// a closed connection frees its slot
	_ = second.Close()
	if second.SendAsync([]byte("x"), nil) {
		t.Errorf("closed connection accepted a send")
	}
	pool.Release(second)

	third, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("expected a fresh connection, got %v", err)
	}
	if third == second || third.Closed() {
		t.Errorf("expected a new open connection")
	}
	pool.Release(third)
}

func TestPoolDialFailure(t *testing.T) {
	// reserve a port and close it again so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	factory := NewPoolFactory(&testConnector{}, common.TransportConfig{})
	pool, err := factory(addr, common.CommunicatorConfig{ConnectionPoolSize: 1, ConnectTimeout: 100 * time.Millisecond}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Acquire(100 * time.Millisecond); err == nil {
		t.Fatal("expected dial error")
	}
	// the failed dial released its slot
	if _, err := pool.Acquire(100 * time.Millisecond); err == nil {
		t.Fatal("expected dial error")
	} else if bytes.Contains([]byte(err.Error()), []byte("available within")) {
		t.Errorf("slot leaked after failed dial: %v", err)
	}
}
