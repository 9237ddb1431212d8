// Package transport exposes a datanode over HTTP and provides the client
// the authority uses to reach it.
//
// Routes:
//   - GET  /health
//   - GET  /replicas
//   - GET  /replicas/{blockID}
//   - POST /replicas/{blockID}/write   {"gen_stamp", "size"}
//   - POST /replicas/{blockID}/commit  {"length", "gen_stamp", "finalize"}
//
// Errors are RFC 7807 problems carrying the authority error code, so the
// client rebuilds the same typed error the node returned.
package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittomds/pkg/api"
	"github.com/marmos91/dittomds/pkg/api/handlers"
	"github.com/marmos91/dittomds/pkg/datanode"
	"github.com/marmos91/dittomds/pkg/mds/block"
)

// WriteRequest is the body of a write call.
type WriteRequest struct {
	GenStamp block.GenStamp `json:"gen_stamp"`
	Size     int64          `json:"size"`
}

// CommitRequest is the body of a commit call.
type CommitRequest struct {
	Length   int64          `json:"length"`
	GenStamp block.GenStamp `json:"gen_stamp"`
	Finalize bool           `json:"finalize"`
}

type handler struct {
	node *datanode.Node
}

// NewRouter returns the HTTP handler of node.
func NewRouter(node *datanode.Node) http.Handler {
	h := &handler{node: node}

	r := chi.NewRouter()
	api.UseMiddleware(r)

	r.Get("/health", h.health)
	r.Route("/replicas", func(r chi.Router) {
		r.Get("/", h.list)
		r.Route("/{blockID}", func(r chi.Router) {
			r.Get("/", h.report)
			r.Post("/write", h.write)
			r.Post("/commit", h.commit)
		})
	})
	return r
}

func blockIDParam(w http.ResponseWriter, r *http.Request) (block.ID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "blockID"), 10, 64)
	if err != nil {
		handlers.BadRequest(w, "invalid block id")
		return 0, false
	}
	return block.ID(id), true
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSONOK(w, map[string]string{"status": "healthy", "node": string(h.node.ID())})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	replicas, err := h.node.Replicas(r.Context())
	if err != nil {
		handlers.WriteError(w, err)
		return
	}
	handlers.WriteJSONOK(w, replicas)
}

func (h *handler) report(w http.ResponseWriter, r *http.Request) {
	id, ok := blockIDParam(w, r)
	if !ok {
		return
	}
	rep, err := h.node.ReportReplica(r.Context(), id)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}
	handlers.WriteJSONOK(w, rep)
}

func (h *handler) write(w http.ResponseWriter, r *http.Request) {
	id, ok := blockIDParam(w, r)
	if !ok {
		return
	}
	var req WriteRequest
	if !handlers.DecodeJSON(w, r, &req) {
		return
	}
	rep, err := h.node.Write(r.Context(), id, req.GenStamp, req.Size)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}
	handlers.WriteJSONOK(w, rep)
}

func (h *handler) commit(w http.ResponseWriter, r *http.Request) {
	id, ok := blockIDParam(w, r)
	if !ok {
		return
	}
	var req CommitRequest
	if !handlers.DecodeJSON(w, r, &req) {
		return
	}
	rep, err := h.node.CommitReplica(r.Context(), id, req.Length, req.GenStamp, req.Finalize)
	if err != nil {
		handlers.WriteError(w, err)
		return
	}
	handlers.WriteJSONOK(w, rep)
}
