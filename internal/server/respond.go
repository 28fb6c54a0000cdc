package server

import (
	"encoding/json"
	"errors"
	"net/http"

	webrunerrors "github.com/webrunhq/webrun/internal/errors"
)

// maxBodyBytes bounds request bodies. Workflow definitions are small; a
// megabyte leaves generous headroom.
const maxBodyBytes = 1 << 20

// detail is the error and acknowledgement body shape.
type detail struct {
	Detail string `json:"detail"`
}

// writeJSON renders v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail renders the {"detail": ...} message shape.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, detail{Detail: msg})
}

// writeError maps known sentinels onto HTTP statuses and renders the error
// as a detail body. Unrecognized errors become 500s and are logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case webrunerrors.IsAny(err,
		webrunerrors.ErrWorkflowNotFound,
		webrunerrors.ErrRunNotFound,
		webrunerrors.ErrStepNotFound):
		status = http.StatusNotFound
	case webrunerrors.IsAny(err,
		webrunerrors.ErrInvalidWorkflow,
		webrunerrors.ErrInvalidAction,
		webrunerrors.ErrInvalidDecision,
		webrunerrors.ErrInvalidCron,
		webrunerrors.ErrInvalidID,
		webrunerrors.ErrEmptyValue,
		webrunerrors.ErrWorkflowNoSteps):
		status = http.StatusBadRequest
	case errors.Is(err, webrunerrors.ErrRunNotActive):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeDetail(w, status, err.Error())
}

// decodeBody reads the request body as JSON into v, bounding its size.
// Decode failures are answered with a 400 and reported as false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
