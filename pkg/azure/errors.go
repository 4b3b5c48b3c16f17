package azure

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the service
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("vision service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("vision service returned status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// errorBody covers both the nested and the flat error envelopes
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Code, apiErr.Message, apiErr.RequestID = eb.Code, eb.Message, eb.RequestID
	if eb.Error != nil {
		apiErr.Code, apiErr.Message = eb.Error.Code, eb.Error.Message
	}
	return apiErr
}
