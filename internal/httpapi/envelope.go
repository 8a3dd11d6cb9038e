// Package httpapi exposes the sync core over a JSON HTTP surface. Every
// response uses the {code, msg, data} envelope; error kinds map onto HTTP
// status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/ingest"
	"github.com/pxh52013145/ragvideo/internal/objstore"
	"github.com/pxh52013145/ragvideo/internal/profile"
	"github.com/pxh52013145/ragvideo/internal/store"
	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

// envelope is the uniform response shape.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// writeOK emits a success envelope.
func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: http.StatusOK, Msg: "success", Data: data})
}

// writeErr emits an error envelope with matching HTTP status.
func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Code: code, Msg: msg})
}

// writeError classifies err and emits the mapped envelope.
func writeError(w http.ResponseWriter, err error) {
	writeErr(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps error kinds to HTTP statuses:
// validation 400, not-found 404, local conflict 409, tombstone 410,
// queue saturation 503, everything remote/config/integrity 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, syncpkg.ErrValidation),
		errors.Is(err, profile.ErrEmptyName),
		errors.Is(err, profile.ErrDeleteDefault),
		errors.Is(err, profile.ErrDeleteLast),
		errors.Is(err, store.ErrNoTaskID):
		return http.StatusBadRequest

	case errors.Is(err, syncpkg.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, profile.ErrProfileNotFound),
		errors.Is(err, profile.ErrSchemeNotFound):
		return http.StatusNotFound

	case errors.Is(err, syncpkg.ErrLocalExists):
		return http.StatusConflict

	case errors.Is(err, syncpkg.ErrTombstoned):
		return http.StatusGone

	case errors.Is(err, ingest.ErrQueueFull):
		return http.StatusServiceUnavailable

	case errors.Is(err, objstore.ErrNotConfigured),
		errors.Is(err, dify.ErrMissingCredentials),
		errors.Is(err, dify.ErrMissingDataset),
		errors.Is(err, syncpkg.ErrIntegrity):
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

// decodeBody parses the request JSON into v; an empty body is tolerated.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	return err
}
