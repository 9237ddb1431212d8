package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/mds/replica"
)

// NodeDialer builds the authority's handle on a remote storage node.
type NodeDialer func(id block.NodeID, url string) replica.StorageNode

// RegisterNodeRequest is the body of POST /nodes.
type RegisterNodeRequest struct {
	ID  block.NodeID `json:"id"`
	URL string       `json:"url"`
}

// NodeHandler serves storage node registration and block reports.
type NodeHandler struct {
	authority *mds.Authority
	dial      NodeDialer
}

// NewNodeHandler creates a node handler. dial may be nil, in which case
// remote registration is refused.
func NewNodeHandler(authority *mds.Authority, dial NodeDialer) *NodeHandler {
	return &NodeHandler{authority: authority, dial: dial}
}

// List handles GET /nodes.
func (h *NodeHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.authority.Nodes())
}

// Register handles POST /nodes.
func (h *NodeHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h.dial == nil {
		WriteProblem(w, http.StatusNotImplemented, "Not Implemented", "remote storage nodes are not supported")
		return
	}
	var req RegisterNodeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" || req.URL == "" {
		BadRequest(w, "id and url are required")
		return
	}
	h.authority.RegisterNode(h.dial(req.ID, req.URL))
	logger.InfoCtx(r.Context(), "Remote storage node registered", logger.KeyNodeID, req.ID, "url", req.URL)
	WriteNoContent(w)
}

// Unregister handles DELETE /nodes/{node}.
func (h *NodeHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	h.authority.UnregisterNode(block.NodeID(chi.URLParam(r, "node")))
	WriteNoContent(w)
}

// BlockReceived handles POST /nodes/{node}/blocks: an incremental block
// report. The node in the path wins over the one in the body.
func (h *NodeHandler) BlockReceived(w http.ResponseWriter, r *http.Request) {
	var rep block.Report
	if !DecodeJSON(w, r, &rep) {
		return
	}
	rep.Node = block.NodeID(chi.URLParam(r, "node"))
	if err := h.authority.BlockReceived(r.Context(), rep); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}
