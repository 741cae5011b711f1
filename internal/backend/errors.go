package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is a well-formed error response from the backend: a 4xx/5xx status
// with a JSON body carrying a detail string and, for 422, validation messages.
// HasBody is false when the backend sent no parseable JSON at all, which the
// contract treats as its own failure condition.
type APIError struct {
	StatusCode       int
	Detail           string
	ValidationErrors []string
	HasBody          bool
}

func (e *APIError) Error() string {
	if !e.HasBody {
		return fmt.Sprintf("backend returned status %d with no error body", e.StatusCode)
	}
	msg := e.Detail
	if msg == "" {
		msg = fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	if len(e.ValidationErrors) > 0 {
		return msg + " (" + strings.Join(e.ValidationErrors, ", ") + ")"
	}
	return msg
}

// errorBody mirrors the backend's error shape. detail is usually a string but
// some endpoints nest an object, so it is kept raw and unwrapped leniently.
type errorBody struct {
	Detail           json.RawMessage `json:"detail"`
	ValidationErrors []struct {
		Msg string `json:"msg"`
	} `json:"validation_errors"`
}

const maxErrorBody = 64 << 10

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return apiErr
	}
	apiErr.HasBody = true

	if len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			apiErr.Detail = s
		} else {
			apiErr.Detail = string(body.Detail)
		}
	}
	for _, v := range body.ValidationErrors {
		if v.Msg != "" {
			apiErr.ValidationErrors = append(apiErr.ValidationErrors, v.Msg)
		}
	}
	return apiErr
}
