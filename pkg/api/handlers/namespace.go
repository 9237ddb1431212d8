package handlers

import (
	"net/http"

	"github.com/marmos91/dittomds/pkg/mds/block"
	"github.com/marmos91/dittomds/pkg/namespace"
)

// PathRequest names a namespace path.
type PathRequest struct {
	Path string `json:"path"`
}

// RenameRequest is the body of POST /namespace/rename.
type RenameRequest struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// FileResponse binds a path to its file identity.
type FileResponse struct {
	Path   string       `json:"path"`
	FileID block.FileID `json:"file_id"`
}

// NamespaceHandler serves the reference namespace.
type NamespaceHandler struct {
	tree *namespace.Tree
}

// NewNamespaceHandler creates a namespace handler.
func NewNamespaceHandler(tree *namespace.Tree) *NamespaceHandler {
	return &NamespaceHandler{tree: tree}
}

// List handles GET /namespace.
func (h *NamespaceHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.tree.List())
}

// Create handles POST /namespace/files.
func (h *NamespaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	id, err := h.tree.Create(req.Path)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONCreated(w, FileResponse{Path: req.Path, FileID: id})
}

// Resolve handles GET /namespace/files?path=...
func (h *NamespaceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	id, err := h.tree.Resolve(p)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, FileResponse{Path: p, FileID: id})
}

// Delete handles DELETE /namespace/files?path=...
func (h *NamespaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.tree.Delete(r.URL.Query().Get("path")); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}

// Rename handles POST /namespace/rename.
func (h *NamespaceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.tree.Rename(req.Src, req.Dst); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}
