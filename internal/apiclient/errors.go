package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Common client errors
var (
	ErrNetwork      = errors.New("claims api unreachable")
	ErrUnauthorized = errors.New("not authenticated")
)

// FieldError is one validation message reported by the claims API
type FieldError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// APIError is a non 2xx response from the claims API
type APIError struct {
	StatusCode int
	Detail     string
	Fields     map[string][]FieldError
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("claims api: %d %s", e.StatusCode, e.Detail)
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("claims api: %d validation failed on %s", e.StatusCode, strings.Join(e.FieldNames(), ", "))
	}
	return fmt.Sprintf("claims api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// FieldNames returns the fields with errors in sorted order
func (e *APIError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Structured reports whether the response carried field level errors
func (e *APIError) Structured() bool {
	return len(e.Fields) > 0
}

// IsStatus reports whether err is an *APIError with the given status code
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// parseError builds an APIError from a failed response body. Bodies that
// are not JSON objects leave only the status code.
func parseError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return apiErr
	}

	for field, raw := range doc {
		if field == "detail" {
			var detail string
			if json.Unmarshal(raw, &detail) == nil {
				apiErr.Detail = detail
				continue
			}
		}
		if msgs := decodeFieldErrors(raw); len(msgs) > 0 {
			if apiErr.Fields == nil {
				apiErr.Fields = map[string][]FieldError{}
			}
			apiErr.Fields[field] = append(apiErr.Fields[field], msgs...)
		}
	}
	return apiErr
}

// decodeFieldErrors accepts the shapes the claims API uses for a field: a
// plain string, a list of strings, a list of {message, code} objects, or a
// single such object.
func decodeFieldErrors(raw json.RawMessage) []FieldError {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return []FieldError{{Message: s}}
	}

	var one FieldError
	if json.Unmarshal(raw, &one) == nil && one.Message != "" {
		return []FieldError{one}
	}

	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]FieldError, 0, len(items))
	for _, item := range items {
		if json.Unmarshal(item, &s) == nil {
			out = append(out, FieldError{Message: s})
			continue
		}
		var fe FieldError
		if json.Unmarshal(item, &fe) == nil && fe.Message != "" {
			out = append(out, fe)
		}
	}
	return out
}
