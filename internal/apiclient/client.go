// Package apiclient talks to the attendance API on behalf of a scanner.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qrattendance/internal/attendance"
)

// NonceHeader must match the server's nonce header.
const NonceHeader = "X-Attendance-Nonce"

// ErrConfigMissing is returned before any request when no API URL is configured.
var ErrConfigMissing = errors.New("API configuration is missing.")

// NetworkError wraps a request that never produced a response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// RejectedError is a non-2xx response. Message is the server's message verbatim.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string { return e.Message }

// MarkResult is a successful mark response.
type MarkResult struct {
	StatusCode       int
	Message          string
	AttendanceStatus attendance.Status
}

// Session is the configuration a scanner needs to start.
type Session struct {
	APIURL    string `json:"apiUrl"`
	Nonce     string `json:"nonce"`
	IsAdmin   bool   `json:"isAdmin"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Client posts scans to the attendance API.
type Client struct {
	APIURL        string
	Nonce         string
	HTTP          *http.Client
	RetryAttempts int
	RetryBackoff  time.Duration
}

// New creates a client. attempts is the total number of tries for network
// failures; server responses are never retried.
func New(apiURL, nonce string, attempts int, backoff time.Duration) *Client {
	if attempts <= 0 {
		attempts = 1
	}
	return &Client{
		APIURL:        apiURL,
		Nonce:         nonce,
		RetryAttempts: attempts,
		RetryBackoff:  backoff,
		HTTP:          &http.Client{Timeout: 30 * time.Second},
	}
}

// Mark submits one decoded payload.
func (c *Client) Mark(ctx context.Context, qrData string, mode attendance.Mode) (*MarkResult, error) {
	if c.APIURL == "" {
		return nil, ErrConfigMissing
	}
	body, err := json.Marshal(map[string]string{"qrData": qrData, "mode": string(mode)})
	if err != nil {
		return nil, err
	}

	var lastErr error
	delay := c.RetryBackoff
	for attempt := 1; attempt <= c.RetryAttempts; attempt++ {
		res, err := c.post(ctx, body)
		if err == nil {
			return res, nil
		}
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			return nil, err
		}
		lastErr = err
		if attempt == c.RetryAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &NetworkError{Err: ctx.Err()}
		}
		delay *= 2
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (*MarkResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(NonceHeader, c.Nonce)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("Failed to connect to server: %w", err)}
	}
	defer resp.Body.Close()

	var out struct {
		Message          string            `json:"message"`
		AttendanceStatus attendance.Status `json:"attendanceStatus"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Message
		if decodeErr != nil || msg == "" {
			msg = "An unknown error occurred."
		}
		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: "Unexpected response from server."}
	}
	return &MarkResult{StatusCode: resp.StatusCode, Message: out.Message, AttendanceStatus: out.AttendanceStatus}, nil
}

// OpenSession exchanges operator credentials for a nonce. baseURL is the API
// root, for example http://host:8081.
func OpenSession(ctx context.Context, httpClient *http.Client, baseURL, operatorID, operatorKey string) (*Session, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	body, _ := json.Marshal(map[string]string{"operator_id": operatorID, "operator_key": operatorKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/v1/session", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("session request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Message == "" {
			e.Message = resp.Status
		}
		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: e.Message}
	}
	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}
