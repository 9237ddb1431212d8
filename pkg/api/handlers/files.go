package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/mds/block"
)

// HolderRequest names the client performing a write operation.
type HolderRequest struct {
	Holder block.HolderID `json:"holder"`
}

// SyncRequest is the body of POST /files/{id}/sync.
type SyncRequest struct {
	Holder block.HolderID `json:"holder"`
	Length int64          `json:"length"`
}

// RenewResponse is the result of POST /leases/renew.
type RenewResponse struct {
	Renewed int `json:"renewed"`
}

// FileHandler serves the client write path and the per-file admin queries.
type FileHandler struct {
	authority *mds.Authority
}

// NewFileHandler creates a file handler.
func NewFileHandler(authority *mds.Authority) *FileHandler {
	return &FileHandler{authority: authority}
}

// FileIDParam parses the {id} URL parameter, writing a 400 on failure.
func FileIDParam(w http.ResponseWriter, r *http.Request) (block.FileID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(w, "invalid file id")
		return 0, false
	}
	return block.FileID(id), true
}

func decodeHolder(w http.ResponseWriter, r *http.Request) (block.HolderID, bool) {
	var req HolderRequest
	if !DecodeJSON(w, r, &req) {
		return "", false
	}
	if req.Holder == "" {
		BadRequest(w, "holder is required")
		return "", false
	}
	return req.Holder, true
}

// Open handles POST /files/{id}/open.
func (h *FileHandler) Open(w http.ResponseWriter, r *http.Request) {
	id, ok := FileIDParam(w, r)
	if !ok {
		return
	}
	holder, ok := decodeHolder(w, r)
	if !ok {
		return
	}
	lb, err := h.authority.OpenForWrite(r.Context(), holder, id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, lb)
}

// Sync handles POST /files/{id}/sync.
func (h *FileHandler) Sync(w http.ResponseWriter, r *http.Request) {
	id, ok := FileIDParam(w, r)
	if !ok {
		return
	}
	var req SyncRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.authority.Sync(r.Context(), req.Holder, id, req.Length); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}

// AddBlock handles POST /files/{id}/addblock.
func (h *FileHandler) AddBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := FileIDParam(w, r)
	if !ok {
		return
	}
	holder, ok := decodeHolder(w, r)
	if !ok {
		return
	}
	lb, err := h.authority.AddBlock(r.Context(), holder, id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, lb)
}

// Close handles POST /files/{id}/close.
func (h *FileHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := FileIDParam(w, r)
	if !ok {
		return
	}
	holder, ok := decodeHolder(w, r)
	if !ok {
		return
	}
	if err := h.authority.Close(r.Context(), holder, id); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}

// Blocks handles GET /files/{id}/blocks.
func (h *FileHandler) Blocks(w http.ResponseWriter, r *http.Request) {
	id, ok := FileIDParam(w, r)
	if !ok {
		return
	}
	blocks, err := h.authority.BlockLocations(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, blocks)
}

// Session handles GET /files/{id}/session.
func (h *FileHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := FileIDParam(w, r)
	if !ok {
		return
	}
	s, found := h.authority.Session(id)
	if !found {
		NotFound(w, "write session not found")
		return
	}
	WriteJSONOK(w, s)
}

// Lease handles GET /files/{id}/lease.
func (h *FileHandler) Lease(w http.ResponseWriter, r *http.Request) {
	id, ok := FileIDParam(w, r)
	if !ok {
		return
	}
	st, err := h.authority.LeaseStatus(id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, st)
}

// Recover handles POST /files/{id}/recover. It waits for the attempt and
// returns its result; a failed attempt is reported as a problem.
func (h *FileHandler) Recover(w http.ResponseWriter, r *http.Request) {
	id, ok := FileIDParam(w, r)
	if !ok {
		return
	}
	res, err := h.authority.TriggerRecovery(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, res)
}

// RenewLeases handles POST /leases/renew.
func (h *FileHandler) RenewLeases(w http.ResponseWriter, r *http.Request) {
	holder, ok := decodeHolder(w, r)
	if !ok {
		return
	}
	WriteJSONOK(w, RenewResponse{Renewed: h.authority.RenewLease(holder)})
}

// Recoveries handles GET /recoveries.
func (h *FileHandler) Recoveries(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.authority.RecoveryStatus())
}
