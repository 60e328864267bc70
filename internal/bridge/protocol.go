package bridge

import (
	"encoding/json"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/store"
)

// Methods understood by the server.
const (
	MethodList   = "list"
	MethodRead   = "read"
	MethodWrite  = "write"
	MethodDelete = "delete"
)

// Error codes returned in Response.Error.
const (
	CodeNotFound       = "not_found"
	CodeInvalidRequest = "invalid_request"
	CodeUnknownMethod  = "unknown_method"
	CodeInternal       = "internal"
)

// Request is one call from the host.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Params carries the arguments of read, write and delete.
type Params struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID     int64          `json:"id"`
	Result any            `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed call.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return e.Code + ": " + e.Message
}

// Unwrap maps wire codes back onto the error sentinels.
func (e *ResponseError) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return errors.ErrInstanceNotFound
	case CodeInvalidRequest:
		return errors.ErrInvalidInput
	}
	return nil
}

// RecordJSON is the wire form of a store.Record.
type RecordJSON struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

func toRecordJSON(records []store.Record) []RecordJSON {
	out := make([]RecordJSON, len(records))
	for i, r := range records {
		out[i] = RecordJSON{ID: r.ID, Data: r.Data}
	}
	return out
}

func responseError(err error) *ResponseError {
	code := CodeInternal
	switch {
	case errors.Is(err, errors.ErrInstanceNotFound):
		code = CodeNotFound
	case errors.Is(err, errors.ErrInvalidInput):
		code = CodeInvalidRequest
	}
	return &ResponseError{Code: code, Message: err.Error()}
}
