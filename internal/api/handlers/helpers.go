package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"tow-dispatch-service/internal/domain"

	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("encode failed")
	}
}

// Machine-readable error codes carried next to the message in every error body.
const (
	CodeNotFound               = "not_found"
	CodeInvalidInput           = "invalid_input"
	CodeInvalidState           = "invalid_state"
	CodeConcurrentModification = "concurrent_modification"
	CodeNoTowTruckAvailable    = "no_tow_truck_available"
	CodeInternal               = "internal"
)

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeErrorCode(w, r, status, codeForStatus(status), msg)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg, "code": code})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest:
		return CodeInvalidInput
	case http.StatusConflict:
		return CodeInvalidState
	default:
		return CodeInternal
	}
}

// writeEngineError maps the domain error taxonomy to an HTTP status and code.
// Unclassified errors are logged and reported as a generic 500.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeErrorCode(w, r, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeErrorCode(w, r, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, domain.ErrConcurrentModification):
		writeErrorCode(w, r, http.StatusConflict, CodeConcurrentModification, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeErrorCode(w, r, http.StatusConflict, CodeInvalidState, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeErrorCode(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// decodeJSON reads exactly one JSON object with no unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return errors.New("invalid json body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must contain only one JSON object")
	}
	return nil
}

// queryInt parses an optional integer query parameter. ok is false when it is absent.
func queryInt(r *http.Request, name string) (v int, ok bool, err error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer", name)
	}
	return v, true, nil
}

// pageParams reads page and page_size. Both default when absent; size is capped.
func pageParams(r *http.Request) (page, size int, err error) {
	page, ok, err := queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		page = 1
	}
	if page < 1 {
		return 0, 0, errors.New("page must be >= 1")
	}

	size, ok, err = queryInt(r, "page_size")
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		size = 50
	}
	if size < 1 || size > 500 {
		return 0, 0, errors.New("page_size must be between 1 and 500")
	}
	return page, size, nil
}

func optionalArea(r *http.Request) (*int, error) {
	area, ok, err := queryInt(r, "area_id")
	if err != nil || !ok {
		return nil, err
	}
	return &area, nil
}
