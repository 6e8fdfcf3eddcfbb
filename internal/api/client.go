package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Client is the transport adapter for the budgeting server. It performs the
// network call and nothing else: no retries, no cache access.
type Client interface {
	// Send issues a JSON request and returns the raw JSON response body.
	Send(ctx context.Context, method, path string, body any) (json.RawMessage, error)
	// SendBinary issues a request negotiating a binary response (e.g. a
	// document export). No JSON content header is set.
	SendBinary(ctx context.Context, method, path string) ([]byte, error)
}

// sessionTokenHeader carries the per-session security token.
const sessionTokenHeader = "X-Session-Token"

type httpAPIClient struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a transport adapter for the server at baseURL.
func NewClient(baseURL string, tokens TokenSource) Client {
	return &httpAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *httpAPIClient) Send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := c.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(respBody), nil
}

func (c *httpAPIClient) SendBinary(ctx context.Context, method, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *httpAPIClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token, ok := c.tokens.Token(); ok {
		req.Header.Set(sessionTokenHeader, token)
	} else {
		// Degraded mode: the request still goes out and the server decides.
		log.Printf("Warning: no session token available for %s %s", method, path)
	}
	return req, nil
}

func (c *httpAPIClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "failed to read response body", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, &Error{
			Kind:    KindInsufficientAuthority,
			Status:  resp.StatusCode,
			Message: serverMessage(respBody),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &Error{
			Kind:    KindServer,
			Status:  resp.StatusCode,
			Message: serverMessage(respBody),
		}
	}
	return respBody, nil
}

// serverMessage extracts the error field the server puts in rejection
// bodies, falling back to the raw body.
func serverMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
