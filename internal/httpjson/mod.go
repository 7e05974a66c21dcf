// Package httpjson gathers the helpers shared by the JSON HTTP services of the
// local development network and their clients.
package httpjson

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/xerrors"
)

// MaxBodySize is the default limit of a request body.
const MaxBodySize = 16 * 1024 * 1024

// ErrorBody is the payload of an error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusError is returned by a client when the server answers with an error
// status. The body is truncated.
type StatusError struct {
	Code int
	Body string
}

// Error implements error.
func (e StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Write writes the value as JSON with the status code.
func Write(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(v)
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, kind string, err error) {
	Write(w, status, ErrorBody{Error: kind, Message: err.Error()})
}

// Decode decodes the JSON body of the request into the value.
func Decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize)).Decode(v)
	if err != nil {
		return xerrors.Errorf("failed to decode body: %v", err)
	}

	return nil
}

// ReadError returns the error of a response with an error status. At most
// limit bytes of the body are kept.
func ReadError(resp *http.Response, limit int) StatusError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, int64(limit)))

	return StatusError{Code: resp.StatusCode, Body: string(data)}
}

// ReadErrorBody returns the decoded error of a response, or false if the body
// is not an error payload.
func ReadErrorBody(resp *http.Response) (ErrorBody, bool) {
	var body ErrorBody

	err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	if err != nil || body.Error == "" {
		return body, false
	}

	return body, true
}
