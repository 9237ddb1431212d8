package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittomds/pkg/datanode"
	"github.com/marmos91/dittomds/pkg/datanode/store/memory"
	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/namespace"
)

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, map[string]any{"service": "dittomds"}, resp.Data)
}

func TestReadiness_NoAuthority_Returns503(t *testing.T) {
	handler := NewHealthHandler(nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadiness_RequiresStorageNodes(t *testing.T) {
	authority := mds.New(mds.DefaultConfig(), namespace.New(namespace.Config{}))
	handler := NewHealthHandler(authority)

	w := httptest.NewRecorder()
	handler.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	authority.RegisterNode(datanode.New("dn-0", memory.New()))

	w = httptest.NewRecorder()
	handler.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, float64(1), resp.Data.(map[string]any)["storage_nodes"])
}
