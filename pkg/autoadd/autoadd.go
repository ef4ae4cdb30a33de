// Package autoadd implements the distribution step: accepted records are
// forwarded to a target channel through rate-limited invite operations.
package autoadd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sietchlabs/scraper-go/pkg/stats"
	"github.com/sietchlabs/scraper-go/pkg/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Default configuration values
const (
	// DefaultInviteDelay is the default pause enforced between invites
	DefaultInviteDelay = time.Second
	// DefaultBatchSize is the default progress-reporting interval for
	// batch operations
	DefaultBatchSize = 50
)

// Inviter performs a single invite operation. The platform client
// implements it; tests substitute deterministic stubs.
type Inviter interface {
	Invite(ctx context.Context, channel string, uid int64) error
}

// lifecycle is implemented by inviters that own a transport resource which
// the engine must acquire on start and release on stop.
type lifecycle interface {
	Start() error
	Stop() error
}

// Config holds the distribution engine settings.
type Config struct {
	// TargetChannel is the destination for invites
	TargetChannel string
	// InviteDelay is the fixed pause between consecutive invites
	InviteDelay time.Duration
	// BatchSize is how many invites to process between batch progress logs
	BatchSize int
	// Logger is the configured logrus logger instance
	Logger *logrus.Logger
}

// Validate checks the configuration and fills in defaults for zero values.
func (c *Config) Validate() error {
	if c.TargetChannel == "" {
		return fmt.Errorf("autoadd: target channel is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("autoadd: logger is required")
	}
	if c.InviteDelay < 0 {
		return fmt.Errorf("autoadd: invite delay must not be negative, got %v", c.InviteDelay)
	}
	if c.InviteDelay == 0 {
		c.InviteDelay = DefaultInviteDelay
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return nil
}

// BatchResult summarizes one AddBatch call.
type BatchResult struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Engine forwards records to the target channel at a fixed rate and keeps
// lifetime success/failure counters. Safe for concurrent use.
type Engine struct {
	config  *Config
	inviter Inviter
	logger  *logrus.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	started bool
	success int
	failure int
}

// NewEngine creates a distribution engine over the given inviter.
func NewEngine(config *Config, inviter Inviter) (*Engine, error) {
	if inviter == nil {
		return nil, fmt.Errorf("autoadd: inviter is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		config:  config,
		inviter: inviter,
		logger:  config.Logger,
		// Fixed pacing, not adaptive: one invite per delay, burst of one.
		limiter: rate.NewLimiter(rate.Every(config.InviteDelay), 1),
	}, nil
}

// Start marks the engine ready. Add and AddBatch start the engine lazily,
// so calling Start first is optional.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if l, ok := e.inviter.(lifecycle); ok {
		if err := l.Start(); err != nil {
			return fmt.Errorf("autoadd: acquiring inviter transport: %w", err)
		}
	}
	e.started = true
	e.logger.WithField("target_channel", e.config.TargetChannel).Info("Auto-adder started")
	return nil
}

// Stop marks the engine stopped. Lifetime counters survive Stop.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false
	if l, ok := e.inviter.(lifecycle); ok {
		if err := l.Stop(); err != nil {
			return fmt.Errorf("autoadd: releasing inviter transport: %w", err)
		}
	}
	e.logger.Info("Auto-adder stopped")
	return nil
}

// Add attempts one invite for the record and reports whether it was
// accepted. Invites are paced by the configured delay regardless of
// outcome. A stopped or never-started engine starts lazily.
func (e *Engine) Add(ctx context.Context, rec *types.Record) bool {
	if err := e.Start(); err != nil {
		return false
	}

	if err := e.limiter.Wait(ctx); err != nil {
		e.recordFailure(rec, err)
		return false
	}

	if err := e.inviter.Invite(ctx, e.config.TargetChannel, rec.UID); err != nil {
		e.recordFailure(rec, err)
		return false
	}

	e.mu.Lock()
	e.success++
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"uid":            rec.UID,
		"target_channel": e.config.TargetChannel,
	}).Info("Added user to target channel")
	return true
}

// AddBatch applies Add to each record in order, pacing every item, and
// returns the per-call summary. The engine's lifetime counters reflect the
// batch as well.
func (e *Engine) AddBatch(ctx context.Context, recs []*types.Record) BatchResult {
	result := BatchResult{Total: len(recs)}

	for i, rec := range recs {
		if e.Add(ctx, rec) {
			result.Successful++
		} else {
			result.Failed++
		}

		if (i+1)%e.config.BatchSize == 0 {
			e.logger.WithFields(logrus.Fields{
				"processed":  i + 1,
				"total":      result.Total,
				"successful": result.Successful,
				"failed":     result.Failed,
			}).Info("Batch add progress")
		}
	}
	return result
}

// Snapshot returns a read-only copy of the lifetime counters.
func (e *Engine) Snapshot() stats.DistributionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stats.DistributionSnapshot{
		SuccessCount:  e.success,
		FailureCount:  e.failure,
		TotalAttempts: e.success + e.failure,
	}
}

func (e *Engine) recordFailure(rec *types.Record, err error) {
	e.mu.Lock()
	e.failure++
	e.mu.Unlock()

	e.logger.WithError(err).WithFields(logrus.Fields{
		"uid":            rec.UID,
		"target_channel": e.config.TargetChannel,
	}).Error("Failed to add user to target channel")
}
