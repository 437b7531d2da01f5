// Package providers holds what the plugged-in provider clients share: the
// outbound payload, delivery receipts and the API error type the classifier
// understands.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const maxResponseBody = 1 << 20

// Payload is the business content of an outbound notification.
type Payload struct {
	Subject string            `json:"subject,omitempty"`
	Text    string            `json:"text"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Receipt describes an accepted delivery.
type Receipt struct {
	Provider    string    `json:"provider"`
	Target      string    `json:"target"`
	MessageID   string    `json:"message_id,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// APIError is a non-success answer from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s api error: status %d: %s", e.Provider, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s api error: status %d: %s: %s", e.Provider, e.StatusCode, e.Code, e.Message)
}

func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

func (e *APIError) ErrorCode() string {
	return e.Code
}

// ErrorDecoder turns a non-2xx response into an APIError.
type ErrorDecoder func(status int, header http.Header, body []byte) *APIError

// DoJSON sends body (if any) as JSON with a bearer token and returns the raw
// response body. Non-2xx responses are returned as *APIError.
func DoJSON(ctx context.Context, client *http.Client, method, url, accessToken string, body any, decodeErr ErrorDecoder) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeErr(resp.StatusCode, resp.Header, respBytes)
		if apiErr.RetryAfter == 0 {
			apiErr.RetryAfter = RetryAfter(resp.Header)
		}
		return nil, apiErr
	}
	return respBytes, nil
}

// RetryAfter parses a Retry-After header given in seconds.
func RetryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
