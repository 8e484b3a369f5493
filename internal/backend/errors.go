package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTimeout is returned when the request deadline elapsed.
	ErrTimeout = errors.New("backend request timed out")
	// ErrNetwork is returned when the request could not be completed.
	ErrNetwork = errors.New("backend unreachable")
	// ErrMalformedResponse is returned for 2xx responses missing required fields.
	ErrMalformedResponse = errors.New("backend response malformed")
)

// StatusError is a non-2xx response together with the message the server
// reported, if any.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// AsStatusError unwraps err into a *StatusError.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ExtractMessage pulls the human readable error out of a response body.
// Keys are tried in order: error, detail, non_field_errors, message, then the
// first field error in key order. Values may be strings or string lists.
func ExtractMessage(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}

	for _, key := range []string{"error", "detail", "non_field_errors", "message"} {
		if msg := firstString(fields[key]); msg != "" {
			return msg
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "success" {
			continue
		}
		if msg := firstString(fields[k]); msg != "" {
			return k + ": " + msg
		}
	}
	return ""
}

func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				return item
			}
		}
	}
	return ""
}
