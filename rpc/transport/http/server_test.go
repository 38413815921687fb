package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodes() map[string][]*grid.ClusterNodeInfo {
	return map[string][]*grid.ClusterNodeInfo{
		"orders": {
			{RootName: "root", ProjName: "shop", ClusterName: "orders", NodeName: "n1", Host: "10.0.0.1", Port: 7000, InstanceNodeID: "s0000000001", IsOwner: true},
			{RootName: "root", ProjName: "shop", ClusterName: "orders", NodeName: "n2", Host: "10.0.0.2", Port: 7000, InstanceNodeID: "s0000000002"},
		},
	}
}

func TestAdminNodes(t *testing.T) {
	srv := NewAdminServer("", testNodes, true)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]nodeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["orders"], 2)
	assert.Equal(t, "s0000000001", body["orders"][0].InstanceNodeID)
	assert.Equal(t, "orders.shop.root", body["orders"][0].Grid)
	assert.Equal(t, "10.0.0.1:7000", body["orders"][0].Endpoint)
	assert.True(t, body["orders"][0].IsOwner)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes/orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var single []nodeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))
	assert.Len(t, single, 2)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminMetricsAndHealth(t *testing.T) {
	metrics.GetOrCreateCounter(`grid_admin_test_total`).Inc()
	srv := NewAdminServer("", nil, false)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "grid_admin_test_total 1")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "{}", rec.Body.String())
}
