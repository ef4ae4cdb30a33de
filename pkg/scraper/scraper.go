// Package scraper drives the fetch–filter–distribute pipeline: it pulls
// member pages from a source group by group, applies the filter, updates
// the running statistics, optionally forwards accepted records to the
// distribution engine, and streams accepted records to the caller as a
// lazy, single-pass sequence.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sietchlabs/scraper-go/pkg/filter"
	"github.com/sietchlabs/scraper-go/pkg/stats"
	"github.com/sietchlabs/scraper-go/pkg/types"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultConcurrency is the default number of group workers
	DefaultConcurrency = 1
	// DefaultMembersPerRequest is the default member page size
	DefaultMembersPerRequest = 10
)

// Source supplies member pages and owns the transport resource behind
// them. The platform client implements it; tests substitute stubs.
type Source interface {
	// Start acquires the transport resource
	Start() error
	// Stop releases the transport resource
	Stop() error
	// FetchMembers retrieves one page of members for a group
	FetchMembers(ctx context.Context, group, cursor string, limit int) (*types.MemberPage, error)
	// BytesTransferred reports cumulative response bytes read
	BytesTransferred() int64
}

// Distributor consumes accepted records. The auto-add engine implements
// it; tests substitute stubs.
type Distributor interface {
	Start() error
	Stop() error
	Add(ctx context.Context, rec *types.Record) bool
	Snapshot() stats.DistributionSnapshot
}

// Config holds the orchestrator settings and collaborators.
type Config struct {
	// Groups lists the source groups to scrape, in order
	Groups []string
	// Concurrency bounds how many groups are scraped in parallel.
	// With 1 worker, groups are processed strictly in order.
	Concurrency int
	// MembersPerRequest is the member page size
	MembersPerRequest int

	// Source supplies member pages (required)
	Source Source
	// Filter is the acceptance criteria; nil accepts everything
	Filter *filter.Spec
	// Distributor receives accepted records; nil disables distribution
	Distributor Distributor
	// Logger is the configured logrus logger instance
	Logger *logrus.Logger
}

func validateConfig(config *Config) error {
	if len(config.Groups) == 0 {
		return fmt.Errorf("scraper: at least one group is required")
	}
	if config.Source == nil {
		return fmt.Errorf("scraper: source is required")
	}
	if config.Logger == nil {
		return fmt.Errorf("scraper: logger is required")
	}
	if config.Concurrency < 0 {
		return fmt.Errorf("scraper: concurrency must not be negative, got %d", config.Concurrency)
	}
	if config.Concurrency == 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.MembersPerRequest <= 0 {
		config.MembersPerRequest = DefaultMembersPerRequest
	}
	return nil
}

// Scraper is the orchestrator for one run. A Scraper is single-use: the
// record sequence it produces is ordered per group and not restartable.
type Scraper struct {
	config *Config
	logger *logrus.Logger
	agg    *stats.Aggregator
	runID  string

	running atomic.Bool
	mu      sync.Mutex
}

// New creates a Scraper for the configured groups.
func New(config *Config) (*Scraper, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &Scraper{
		config: config,
		logger: config.Logger,
		agg:    stats.NewAggregator(len(config.Groups)),
		runID:  uuid.New().String(),
	}, nil
}

// Start acquires the source's transport resource and, when distribution is
// configured, starts the distribution engine. A setup failure here is
// fatal: nothing downstream is attempted.
func (s *Scraper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return nil
	}

	if err := s.config.Source.Start(); err != nil {
		return fmt.Errorf("scraper: starting source: %w", err)
	}
	if s.config.Distributor != nil {
		if err := s.config.Distributor.Start(); err != nil {
			_ = s.config.Source.Stop()
			return fmt.Errorf("scraper: starting distributor: %w", err)
		}
	}

	s.running.Store(true)
	s.logger.WithField("run_id", s.runID).Info("Scraper initialized successfully")
	return nil
}

// Stop releases the transport resource and stops the distribution engine,
// folding its final snapshot into the run statistics. In-flight fetches
// complete; workers observe the cleared running flag before their next
// fetch. Stop is idempotent.
func (s *Scraper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return
	}
	s.running.Store(false)

	if s.config.Distributor != nil {
		_ = s.config.Distributor.Stop()
		s.agg.AttachDistribution(s.config.Distributor.Snapshot())
	}
	if err := s.config.Source.Stop(); err != nil {
		s.logger.WithError(err).Warn("Error releasing source transport")
	}
	s.logger.WithField("run_id", s.runID).Info("Scraper stopped and cleaned up")
}

// Stats returns an immutable snapshot of the run statistics, including
// the bandwidth counter owned by the source's request engine.
func (s *Scraper) Stats() stats.Snapshot {
	s.agg.SetBandwidth(s.config.Source.BytesTransferred())
	return s.agg.Snapshot()
}

// ScrapeAll streams accepted records from all configured groups. The
// sequence is lazy and single-pass: workers block on the unbuffered record
// channel, so the caller controls pacing by how fast it consumes. Groups
// are dispatched in order to a bounded worker pool of the configured
// concurrency; records within a group are always emitted in fetch order.
//
// The error channel carries only fatal setup failures. Group-level fetch
// failures are logged, counted, and skipped. Both channels are closed when
// the run drains or the context is canceled.
func (s *Scraper) ScrapeAll(ctx context.Context) (<-chan *types.Record, <-chan error) {
	records := make(chan *types.Record)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		if !s.running.Load() {
			if err := s.Start(); err != nil {
				errs <- err
				return
			}
		}

		groups := make(chan string, len(s.config.Groups))
		for _, g := range s.config.Groups {
			groups <- g
		}
		close(groups)

		var wg sync.WaitGroup
		for i := 0; i < s.config.Concurrency; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for group := range groups {
					if ctx.Err() != nil || !s.running.Load() {
						return
					}
					s.scrapeGroup(ctx, id, group, records)
				}
			}(i)
		}
		wg.Wait()

		s.Stop()
	}()

	return records, errs
}

// scrapeGroup walks one group's member pages, classifying every member and
// emitting the accepted ones. A page fetch failure ends the group but not
// the run.
func (s *Scraper) scrapeGroup(ctx context.Context, workerID int, group string, out chan<- *types.Record) {
	log := s.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"group":     group,
		"run_id":    s.runID,
		"task_id":   uuid.New().String(),
	})
	log.Info("Starting scrape of group")

	cursor := ""
	seq := 0
	for {
		if !s.running.Load() {
			log.Debug("Stop requested, ending group scrape")
			return
		}

		page, err := s.config.Source.FetchMembers(ctx, group, cursor, s.config.MembersPerRequest)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("Error extracting members from group")
			s.agg.RecordFailure()
			return
		}

		for i := range page.Members {
			rec := page.Members[i]
			rec.Group = group
			rec.Seq = seq
			seq++

			if !s.config.Filter.Matches(&rec) {
				s.agg.RecordFiltered()
				continue
			}
			s.agg.RecordSuccess()

			// Synchronous hand-off: slow invites throttle the scrape.
			if s.config.Distributor != nil {
				s.config.Distributor.Add(ctx, &rec)
				s.agg.AttachDistribution(s.config.Distributor.Snapshot())
			}

			select {
			case out <- &rec:
			case <-ctx.Done():
				return
			}
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	log.WithField("members", seq).Info("Completed scrape of group")
}
