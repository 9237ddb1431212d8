package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittomds/pkg/api/handlers"
	"github.com/marmos91/dittomds/pkg/datanode"
	"github.com/marmos91/dittomds/pkg/datanode/store/memory"
	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/namespace"
)

type routerFixture struct {
	authority *mds.Authority
	tree      *namespace.Tree
	node      *datanode.Node
	handler   http.Handler
}

func newRouterFixture(t *testing.T, withNamespace bool) *routerFixture {
	t.Helper()
	f := &routerFixture{tree: namespace.New(namespace.Config{})}
	f.authority = mds.New(mds.DefaultConfig(), f.tree)
	f.node = datanode.New("dn-0", memory.New(), datanode.WithReporter(f.authority))
	f.authority.RegisterNode(f.node)

	deps := Dependencies{Authority: f.authority}
	if withNamespace {
		deps.Namespace = f.tree
	}
	f.handler = NewRouter(deps)
	return f
}

func (f *routerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) handlers.Problem {
	t.Helper()
	assert.Equal(t, handlers.ContentTypeProblemJSON, w.Header().Get("Content-Type"))
	var p handlers.Problem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	return p
}

func TestRouterHealth(t *testing.T) {
	f := newRouterFixture(t, false)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/ready", nil).Code)

	w := f.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/health", w.Header().Get("Location"))
}

func TestRouterInvalidFileID(t *testing.T) {
	f := newRouterFixture(t, false)

	w := f.do(t, http.MethodGet, "/api/v1/files/abc/lease", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, http.StatusBadRequest, decodeProblem(t, w).Status)

	w = f.do(t, http.MethodGet, "/api/v1/files/0/lease", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouterMissingLeaseIsNotFound(t *testing.T) {
	f := newRouterFixture(t, false)

	w := f.do(t, http.MethodGet, "/api/v1/files/42/lease", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	p := decodeProblem(t, w)
	assert.Equal(t, "NotFound", p.Code)
	assert.Equal(t, uint64(42), p.FileID)
}

func TestRouterOpenRequiresHolder(t *testing.T) {
	f := newRouterFixture(t, false)
	id, err := f.tree.Create("/f")
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/v1/files/"+id.String()+"/open", handlers.HolderRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/files/"+id.String()+"/open", handlers.HolderRequest{Holder: "c1"})
	require.Equal(t, http.StatusOK, w.Code)
	var lb mds.LocatedBlock
	require.NoError(t, json.NewDecoder(w.Body).Decode(&lb))
	assert.Equal(t, []block.NodeID{"dn-0"}, lb.Nodes())

	w = f.do(t, http.MethodPost, "/api/v1/files/"+id.String()+"/open", handlers.HolderRequest{Holder: "c2"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyLeased", decodeProblem(t, w).Code)
}

func TestRouterBlockReportUsesPathNode(t *testing.T) {
	f := newRouterFixture(t, false)
	ctx := context.Background()

	id, err := f.tree.Create("/f")
	require.NoError(t, err)
	lb, err := f.authority.OpenForWrite(ctx, "c1", id)
	require.NoError(t, err)
	_, err = f.node.Write(ctx, lb.Block.ID, lb.Block.GenStamp, 8)
	require.NoError(t, err)

	report := block.Report{
		Node:  "somebody-else",
		Block: block.Identity{ID: lb.Block.ID, GenStamp: lb.Block.GenStamp, Length: 8},
		State: block.ReplicaBeingWritten,
	}
	w := f.do(t, http.MethodPost, "/api/v1/nodes/dn-0/blocks", report)
	require.Equal(t, http.StatusNoContent, w.Code)

	blocks, err := f.authority.BlockLocations(id)
	require.NoError(t, err)
	require.Len(t, blocks[0].Locations, 1)
	assert.Equal(t, block.NodeID("dn-0"), blocks[0].Locations[0].Node)
}

func TestRouterRemoteRegistrationNeedsDialer(t *testing.T) {
	f := newRouterFixture(t, false)

	w := f.do(t, http.MethodPost, "/api/v1/nodes", handlers.RegisterNodeRequest{ID: "dn-9", URL: "http://dn-9:9870"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/nodes/dn-0", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.authority.Nodes())
}

func TestRouterNamespaceIsOptional(t *testing.T) {
	without := newRouterFixture(t, false)
	assert.Equal(t, http.StatusNotFound, without.do(t, http.MethodGet, "/api/v1/namespace/", nil).Code)

	with := newRouterFixture(t, true)
	w := with.do(t, http.MethodGet, "/api/v1/namespace/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
