package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/loomworks/loom/pkg/schema"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeLoomError maps a LoomError code to an HTTP status and writes the
// structured error as the response body.
func writeLoomError(w http.ResponseWriter, err error) {
	var lerr *schema.LoomError
	if !errors.As(err, &lerr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch lerr.Code {
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeConflict:
		status = http.StatusConflict
	case schema.ErrCodeValidation, schema.ErrCodeDuplicateID, schema.ErrCodeDuplicateOutputKey,
		schema.ErrCodeDanglingReference, schema.ErrCodeCycleDetected,
		schema.ErrCodeMalformedPayload, schema.ErrCodeCodecMismatch:
		status = http.StatusUnprocessableEntity
	case schema.ErrCodeEngine, schema.ErrCodeCatalog:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, lerr)
}
