// Package request implements the networked request engine shared by the
// scrape and distribution paths. It layers retries, exponential backoff,
// stealth timing jitter, and identity rotation over a pluggable Transport,
// and tracks the bytes transferred across all attempts.
package request

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultMaxRetries defines the default number of attempts per operation
	DefaultMaxRetries = 3
	// DefaultBaseDelay defines the default base for stealth and retry jitter
	DefaultBaseDelay = 500 * time.Millisecond
	// DefaultBackoffBase defines the unit of the 2^attempt backoff curve
	DefaultBackoffBase = time.Second
)

// DefaultUserAgents is the identity pool drawn from when rotation is enabled.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 14_7_1 like Mac OS X) AppleWebKit/605.1.15",
	"Mozilla/5.0 (iPad; CPU OS 14_7_1 like Mac OS X) AppleWebKit/605.1.15",
}

// Request describes one logical operation handed to a Transport.
type Request struct {
	// Target is the operation endpoint (a URL for HTTP transports)
	Target string
	// Method is the operation verb, e.g. GET or POST
	Method string
	// Payload is an optional body, marshaled by the transport
	Payload any
	// Headers carries per-request headers such as the rotated identity
	Headers map[string]string
}

// Response is the raw outcome of a single attempt.
type Response struct {
	// StatusCode follows HTTP semantics: 2xx indicates success
	StatusCode int
	// Body is the fully read response body
	Body []byte
}

// Transport performs exactly one attempt of a Request. Implementations carry
// the underlying network resource; the engine owns retry policy.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// lifecycle is implemented by transports that hold a connection resource
// which must be acquired before use and released afterwards.
type lifecycle interface {
	Start() error
	Stop() error
}

// Config holds the request engine settings.
type Config struct {
	// BaseDelay is the base duration for stealth and inter-attempt jitter
	BaseDelay time.Duration
	// MaxRetries is the maximum number of attempts per operation
	MaxRetries int
	// Stealth enables a randomized delay before every attempt
	Stealth bool
	// RotateIdentity enables per-request User-Agent rotation
	RotateIdentity bool
	// UserAgents is the identity pool; defaults to DefaultUserAgents.
	// Read-only after construction.
	UserAgents []string
	// BackoffBase is the unit of the 2^attempt backoff curve
	BackoffBase time.Duration
	// Logger is the configured logrus logger instance
	Logger *logrus.Logger
}

// Validate checks the configuration and fills in defaults for zero values.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("request: logger is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("request: max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = DefaultUserAgents
	}
	return nil
}

// Engine executes logical operations with retry, backoff, and stealth
// measures. It owns its transport exclusively between Start and Stop.
type Engine struct {
	config    *Config
	transport Transport
	logger    *logrus.Logger

	bytes atomic.Int64

	mu      sync.Mutex
	started bool
}

// NewEngine creates a request engine over the given transport.
func NewEngine(config *Config, transport Transport) (*Engine, error) {
	if transport == nil {
		return nil, fmt.Errorf("request: transport is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		config:    config,
		transport: transport,
		logger:    config.Logger,
	}, nil
}

// Start acquires the transport resource. Calling Start on a started engine
// is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if l, ok := e.transport.(lifecycle); ok {
		if err := l.Start(); err != nil {
			return fmt.Errorf("request: acquiring transport: %w", err)
		}
	}
	e.started = true
	e.logger.Debug("Request engine started")
	return nil
}

// Stop releases the transport resource. The engine must not be used after
// Stop without a new Start.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false
	if l, ok := e.transport.(lifecycle); ok {
		if err := l.Stop(); err != nil {
			return fmt.Errorf("request: releasing transport: %w", err)
		}
	}
	e.logger.Debug("Request engine stopped")
	return nil
}

// BytesTransferred reports the cumulative size of all response bodies read,
// including those of non-success attempts.
func (e *Engine) BytesTransferred() int64 {
	return e.bytes.Load()
}

// Execute performs one logical operation, retrying up to the configured
// maximum attempt count. A 2xx response short-circuits remaining attempts
// and returns the body. Once all attempts are exhausted it returns
// ErrNoResponse; callers decide whether that is fatal. Calling Execute
// before Start returns ErrNotStarted.
//
// Both timeouts and transport errors follow the same backoff curve: a
// jittered base delay plus 2^attempt backoff units between attempts.
func (e *Engine) Execute(ctx context.Context, target, method string, payload any) ([]byte, error) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}

	req := &Request{
		Target:  target,
		Method:  method,
		Payload: payload,
		Headers: make(map[string]string),
	}
	if e.config.RotateIdentity {
		req.Headers["User-Agent"] = e.config.UserAgents[rand.Intn(len(e.config.UserAgents))]
	}

	log := e.logger.WithFields(logrus.Fields{
		"target": target,
		"method": method,
	})

	lastStatus := 0
	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		if e.config.Stealth {
			if err := e.sleep(ctx, e.jitter()); err != nil {
				return nil, err
			}
		}

		resp, err := e.transport.Do(ctx, req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				log.WithFields(logrus.Fields{
					"attempt":     attempt + 1,
					"max_retries": e.config.MaxRetries,
				}).Warn("Request timeout")
			} else {
				log.WithError(err).Error("Request error")
			}
		default:
			e.bytes.Add(int64(len(resp.Body)))
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp.Body, nil
			}
			lastStatus = resp.StatusCode
			log.WithField("status_code", resp.StatusCode).Warn("Request failed with non-success status")
		}

		if attempt+1 < e.config.MaxRetries {
			if err := e.sleep(ctx, e.jitter()); err != nil {
				return nil, err
			}
			if err := e.sleep(ctx, e.config.BackoffBase*time.Duration(1<<attempt)); err != nil {
				return nil, err
			}
		}
	}

	log.WithField("attempts", e.config.MaxRetries).Warn("All attempts exhausted")
	if lastStatus != 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoResponse, &StatusError{StatusCode: lastStatus})
	}
	return nil, ErrNoResponse
}

// jitter returns base_delay * (1 + U(0,1)).
func (e *Engine) jitter() time.Duration {
	return time.Duration(float64(e.config.BaseDelay) * (1 + rand.Float64()))
}

// sleep waits for d or until the context is canceled.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
