package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/admin")

// NodesFunc returns the current membership per hosted server name
type NodesFunc func() map[string][]*grid.ClusterNodeInfo

// NewAdminServer creates the admin HTTP server. With debug set every request is logged.
func NewAdminServer(endpoint string, nodes NodesFunc, debug bool) *AdminServer {
	s := &AdminServer{
		endpoint: endpoint,
		nodes:    nodes,
	}

	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return h }
	if debug {
		wrap = loggerMiddleware
	}
	mux.HandleFunc("GET /metrics", wrap(s.handleMetrics))
	mux.HandleFunc("GET /nodes", wrap(s.handleNodes))
	mux.HandleFunc("GET /nodes/{server}", wrap(s.handleServerNodes))
	mux.HandleFunc("GET /healthz", wrap(s.handleHealth))
	s.handler = mux

	return s
}

// AdminServer exposes metrics (VictoriaMetrics format), the membership of the
// hosted servers and a health endpoint
type AdminServer struct {
	endpoint string
	nodes    NodesFunc
	handler  http.Handler

	mu     sync.Mutex
	server *http.Server
}

// Handler returns the http handler of the admin server
func (s *AdminServer) Handler() http.Handler {
	return s.handler
}

// Listen serves the admin endpoints and blocks until Close is called
func (s *AdminServer) Listen() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.endpoint,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	Logger.Infof("Starting admin HTTP server on %s", s.endpoint)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts the admin server down
func (s *AdminServer) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (s *AdminServer) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics.WritePrometheus(w, true)
}

func (s *AdminServer) handleNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, toNodeViews(s.currentNodes()))
}

func (s *AdminServer) handleServerNodes(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("server")
	nodes, ok := s.currentNodes()[name]
	if !ok {
		http.Error(w, "unknown server", http.StatusNotFound)
		return
	}
	writeJSON(w, toNodeViews(map[string][]*grid.ClusterNodeInfo{name: nodes})[name])
}

func (s *AdminServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *AdminServer) currentNodes() map[string][]*grid.ClusterNodeInfo {
	if s.nodes == nil {
		return map[string][]*grid.ClusterNodeInfo{}
	}
	return s.nodes()
}

// nodeView is the JSON form of a node, including the fields the stored payload omits
type nodeView struct {
	InstanceNodeID string `json:"instanceNodeId"`
	NodeName       string `json:"nodeName"`
	Grid           string `json:"grid"`
	Endpoint       string `json:"endpoint"`
	IsOwner        bool   `json:"isOwner"`
}

func toNodeViews(in map[string][]*grid.ClusterNodeInfo) map[string][]nodeView {
	out := make(map[string][]nodeView, len(in))
	for name, nodes := range in {
		views := make([]nodeView, 0, len(nodes))
		for _, n := range nodes {
			views = append(views, nodeView{
				InstanceNodeID: n.InstanceNodeID,
				NodeName:       n.NodeName,
				Grid:           n.Grid().String(),
				Endpoint:       n.Endpoint(),
				IsOwner:        n.IsOwner,
			})
		}
		out[name] = views
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
