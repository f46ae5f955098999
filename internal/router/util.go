package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josidbobo/IDConcordiumDEX/internal/exchange"
	"github.com/josidbobo/IDConcordiumDEX/internal/host"
)

const maxBody = int64(1 << 20) // 1 MiB

// decodeJSON reads and unmarshals the request body into T with sane limits and timeouts.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req T
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return zero, errors.New("empty body")
		}
		return zero, err
	}

	// Ensure there’s no trailing garbage
	if dec.More() {
		return zero, errors.New("multiple JSON values in body")
	}

	return req, nil
}

// writeJSON marshals v and writes it with status and proper headers.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

type errorResp struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Code    *int32 `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Intent  string `json:"intent,omitempty"`
}

// writeJSONError writes a simple error response as JSON.
func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResp{
		Error:   http.StatusText(status),
		Status:  status,
		Message: err.Error(),
	})
}

// writeDecodeError rejects a body that is not a valid parameter.
func writeDecodeError(w http.ResponseWriter, err error) {
	writeReject(w, fmt.Errorf("%w: %v", exchange.ErrParameterDecode, err), uuid.Nil)
}

// rejectStatus maps an entry point error to an HTTP status.
func rejectStatus(err error) int {
	switch {
	case errors.Is(err, exchange.ErrParameterDecode):
		return http.StatusBadRequest
	case errors.Is(err, exchange.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, exchange.ErrLedgerCommunication):
		return http.StatusBadGateway
	case errors.Is(err, host.ErrAttachedExceedsBalance):
		return http.StatusUnprocessableEntity
	}
	if _, ok := exchange.RejectCode(err); ok {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeReject writes the rejection of an entry point together with its
// reject code. intent names a settlement intent the rejection left behind.
func writeReject(w http.ResponseWriter, err error, intent uuid.UUID) {
	status := rejectStatus(err)
	resp := errorResp{
		Error:   http.StatusText(status),
		Status:  status,
		Message: err.Error(),
	}
	if code, ok := exchange.RejectCode(err); ok {
		resp.Code = &code
	}
	if intent != uuid.Nil {
		resp.Intent = intent.String()
	}
	writeJSON(w, status, resp)
}
