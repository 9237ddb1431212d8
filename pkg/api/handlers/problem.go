// Package handlers provides HTTP handlers for the dittomds API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
)

// Problem represents an RFC 7807 "problem details" response.
// https://tools.ietf.org/html/rfc7807
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	// If not set, defaults to "about:blank".
	Type string `json:"type,omitempty"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Code is the authority error code name (e.g. "CloseConflict"), so that
	// clients can rebuild the typed error.
	Code string `json:"code,omitempty"`

	// FileID is the file the error refers to, if any.
	FileID uint64 `json:"file_id,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// WriteProblem writes an RFC 7807 problem response.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeProblem(w http.ResponseWriter, p *Problem) {
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// StatusOf maps an authority error code to an HTTP status.
func StatusOf(code mdserrors.ErrorCode) int {
	switch code {
	case mdserrors.ErrAlreadyLeased, mdserrors.ErrNotLeaseHolder, mdserrors.ErrNoActiveSession,
		mdserrors.ErrCloseConflict, mdserrors.ErrStaleGenStamp, mdserrors.ErrAlreadyExists:
		return http.StatusConflict
	case mdserrors.ErrNotFound:
		return http.StatusNotFound
	case mdserrors.ErrInvalidArgument:
		return http.StatusBadRequest
	case mdserrors.ErrNoViableReplica, mdserrors.ErrRecoveryFailed, mdserrors.ErrUnrecoverable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a problem response. Authority errors keep their
// code; anything else is a 500.
func WriteError(w http.ResponseWriter, err error) {
	var mdsErr *mdserrors.MDSError
	if !errors.As(err, &mdsErr) {
		if code := mdserrors.CodeOf(err); code != 0 {
			mdsErr = &mdserrors.MDSError{Code: code, Message: err.Error()}
		} else {
			InternalServerError(w, err.Error())
			return
		}
	}

	status := StatusOf(mdsErr.Code)
	writeProblem(w, &Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: mdsErr.Message,
		Code:   mdsErr.Code.String(),
		FileID: mdsErr.FileID,
	})
}

// Err rebuilds the error carried by a problem response.
func (p *Problem) Err() error {
	if code := mdserrors.ParseCode(p.Code); code != 0 {
		return &mdserrors.MDSError{Code: code, Message: p.Detail, FileID: p.FileID}
	}
	if p.Detail != "" {
		return errors.New(p.Title + ": " + p.Detail)
	}
	return errors.New(p.Title)
}

// Common problem helper functions for standard HTTP errors.

// BadRequest writes a 400 Bad Request problem response.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

// NotFound writes a 404 Not Found problem response.
func NotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, "Not Found", detail)
}

// InternalServerError writes a 500 Internal Server Error problem response.
func InternalServerError(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteJSONOK writes a 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteJSONCreated writes a 201 Created JSON response.
func WriteJSONCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// DecodeJSON decodes the request body into v, writing a 400 on failure.
// It reports whether decoding succeeded.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
