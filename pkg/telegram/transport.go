package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sietchlabs/scraper-go/pkg/request"
	"github.com/sirupsen/logrus"
)

// HTTPTransport performs single request attempts over HTTP. The underlying
// http.Client is the transport resource: it is created by Start, released
// by Stop, and never shared between engines.
type HTTPTransport struct {
	timeout time.Duration
	logger  *logrus.Logger

	mu     sync.Mutex
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport with the given per-request
// timeout.
func NewHTTPTransport(timeout time.Duration, logger *logrus.Logger) *HTTPTransport {
	return &HTTPTransport{
		timeout: timeout,
		logger:  logger,
	}
}

// Start acquires the HTTP client.
func (t *HTTPTransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return nil
	}
	t.client = &http.Client{Timeout: t.timeout}
	return nil
}

// Stop releases the HTTP client and its idle connections.
func (t *HTTPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	t.client.CloseIdleConnections()
	t.client = nil
	return nil
}

// Do performs one attempt. The body is read fully even for non-success
// statuses so the engine can account for the transferred bytes.
func (t *HTTPTransport) Do(ctx context.Context, req *request.Request) (*request.Response, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return nil, request.ErrNotStarted
	}

	var bodyReader io.Reader
	if req.Payload != nil {
		jsonBody, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("telegram: marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("telegram: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("telegram: reading response body: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"bytes":       len(body),
	}).Debug("Received HTTP response")

	return &request.Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
