package scraper_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/sietchlabs/scraper-go/pkg/filter"
	"github.com/sietchlabs/scraper-go/pkg/scraper"
	"github.com/sietchlabs/scraper-go/pkg/stats"
	"github.com/sietchlabs/scraper-go/pkg/types"
)

// stubSource serves one fixed member page per group.
type stubSource struct {
	mu       sync.Mutex
	pages    map[string][]types.Record
	fetchErr map[string]error
	startErr error

	startCalls int
	stopCalls  int
	fetches    []string
}

func (s *stubSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	return s.startErr
}

func (s *stubSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	return nil
}

func (s *stubSource) BytesTransferred() int64 { return 512 }

func (s *stubSource) FetchMembers(_ context.Context, group, _ string, _ int) (*types.MemberPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, group)

	if err := s.fetchErr[group]; err != nil {
		return nil, err
	}
	return &types.MemberPage{Members: s.pages[group]}, nil
}

type stubDistributor struct {
	mu      sync.Mutex
	added   []int64
	started bool
	stopped bool
}

func (d *stubDistributor) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return nil
}

func (d *stubDistributor) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

func (d *stubDistributor) Add(_ context.Context, rec *types.Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.added = append(d.added, rec.UID)
	return true
}

func (d *stubDistributor) Snapshot() stats.DistributionSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return stats.DistributionSnapshot{
		SuccessCount:  len(d.added),
		TotalAttempts: len(d.added),
	}
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func member(uid int64, status types.Status) types.Record {
	return types.Record{
		UID:           uid,
		Username:      "member",
		Status:        status,
		ActivityLevel: 5,
		JoinDate:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func collect(records <-chan *types.Record) []*types.Record {
	var out []*types.Record
	for rec := range records {
		out = append(out, rec)
	}
	return out
}

var _ = Describe("Scraper", func() {
	It("filters, counts, and emits accepted records in fetch order", func() {
		source := &stubSource{pages: map[string][]types.Record{
			"alpha": {
				member(1, types.StatusActive),
				member(2, types.StatusBanned),
				member(3, types.StatusActive),
			},
		}}
		scr, err := scraper.New(&scraper.Config{
			Groups:      []string{"alpha"},
			Concurrency: 1,
			Source:      source,
			Filter:      &filter.Spec{ExcludeBanned: true},
			Logger:      newTestLogger(),
		})
		Expect(err).NotTo(HaveOccurred())

		records, errs := scr.ScrapeAll(context.Background())
		out := collect(records)
		Expect(<-errs).NotTo(HaveOccurred())

		Expect(out).To(HaveLen(2))
		Expect(out[0].UID).To(Equal(int64(1)))
		Expect(out[1].UID).To(Equal(int64(3)))

		snap := scr.Stats()
		Expect(snap.TotalProcessed).To(Equal(3))
		Expect(snap.SuccessfulScrapes).To(Equal(2))
		Expect(snap.FailedScrapes).To(Equal(1))
		Expect(snap.FilteredOut).To(Equal(1))
	})

	It("tags emitted records with their group and fetch sequence", func() {
		source := &stubSource{pages: map[string][]types.Record{
			"alpha": {
				member(1, types.StatusActive),
				member(2, types.StatusBanned),
				member(3, types.StatusActive),
			},
		}}
		scr, err := scraper.New(&scraper.Config{
			Groups:      []string{"alpha"},
			Concurrency: 1,
			Source:      source,
			Filter:      &filter.Spec{ExcludeBanned: true},
			Logger:      newTestLogger(),
		})
		Expect(err).NotTo(HaveOccurred())

		records, _ := scr.ScrapeAll(context.Background())
		out := collect(records)

		Expect(out[0].Group).To(Equal("alpha"))
		Expect(out[0].Seq).To(Equal(0))
		Expect(out[1].Seq).To(Equal(2))
	})

	It("processes groups in configured order with a single worker", func() {
		source := &stubSource{pages: map[string][]types.Record{
			"alpha": {member(1, types.StatusActive)},
			"beta":  {member(2, types.StatusActive)},
			"gamma": {member(3, types.StatusActive)},
		}}
		scr, err := scraper.New(&scraper.Config{
			Groups:      []string{"alpha", "beta", "gamma"},
			Concurrency: 1,
			Source:      source,
			Logger:      newTestLogger(),
		})
		Expect(err).NotTo(HaveOccurred())

		records, _ := scr.ScrapeAll(context.Background())
		out := collect(records)

		Expect(out).To(HaveLen(3))
		Expect(out[0].Group).To(Equal("alpha"))
		Expect(out[1].Group).To(Equal("beta"))
		Expect(out[2].Group).To(Equal("gamma"))
	})

	It("skips a group whose fetch fails and continues the run", func() {
		source := &stubSource{
			pages: map[string][]types.Record{
				"beta": {member(9, types.StatusActive)},
			},
			fetchErr: map[string]error{
				"alpha": errors.New("no response after all attempts"),
			},
		}
		scr, err := scraper.New(&scraper.Config{
			Groups:      []string{"alpha", "beta"},
			Concurrency: 1,
			Source:      source,
			Logger:      newTestLogger(),
		})
		Expect(err).NotTo(HaveOccurred())

		records, errs := scr.ScrapeAll(context.Background())
		out := collect(records)
		Expect(<-errs).NotTo(HaveOccurred())

		Expect(out).To(HaveLen(1))
		Expect(out[0].UID).To(Equal(int64(9)))

		snap := scr.Stats()
		Expect(snap.FailedScrapes).To(Equal(1))
		Expect(snap.SuccessfulScrapes).To(Equal(1))
	})

	It("scrapes every group exactly once under parallel workers", func() {
		pages := map[string][]types.Record{}
		groups := []string{"g1", "g2", "g3", "g4", "g5"}
		for i, g := range groups {
			pages[g] = []types.Record{member(int64(i+1), types.StatusActive)}
		}
		source := &stubSource{pages: pages}

		scr, err := scraper.New(&scraper.Config{
			Groups:      groups,
			Concurrency: 3,
			Source:      source,
			Logger:      newTestLogger(),
		})
		Expect(err).NotTo(HaveOccurred())

		records, _ := scr.ScrapeAll(context.Background())
		out := collect(records)

		Expect(out).To(HaveLen(5))
		seen := map[string]bool{}
		for _, rec := range out {
			seen[rec.Group] = true
		}
		Expect(seen).To(HaveLen(5))
		Expect(source.fetches).To(HaveLen(5))
	})

	It("hands accepted records to the distributor and folds its snapshot into the stats", func() {
		source := &stubSource{pages: map[string][]types.Record{
			"alpha": {
				member(1, types.StatusActive),
				member(2, types.StatusBanned),
			},
		}}
		dist := &stubDistributor{}
		scr, err := scraper.New(&scraper.Config{
			Groups:      []string{"alpha"},
			Concurrency: 1,
			Source:      source,
			Filter:      &filter.Spec{ExcludeBanned: true},
			Distributor: dist,
			Logger:      newTestLogger(),
		})
		Expect(err).NotTo(HaveOccurred())

		records, _ := scr.ScrapeAll(context.Background())
		collect(records)

		Expect(dist.started).To(BeTrue())
		Expect(dist.stopped).To(BeTrue())
		Expect(dist.added).To(Equal([]int64{1}))

		snap := scr.Stats()
		Expect(snap.AutoAdd).NotTo(BeNil())
		Expect(snap.AutoAdd.SuccessCount).To(Equal(1))
	})

	It("starts lazily and releases the source when the run drains", func() {
		source := &stubSource{pages: map[string][]types.Record{
			"alpha": {member(1, types.StatusActive)},
		}}
		scr, err := scraper.New(&scraper.Config{
			Groups:      []string{"alpha"},
			Concurrency: 1,
			Source:      source,
			Logger:      newTestLogger(),
		})
		Expect(err).NotTo(HaveOccurred())

		records, _ := scr.ScrapeAll(context.Background())
		collect(records)

		Expect(source.startCalls).To(Equal(1))
		Expect(source.stopCalls).To(Equal(1))
	})

	It("propagates a fatal setup failure and emits nothing", func() {
		source := &stubSource{startErr: errors.New("cannot acquire transport")}
		scr, err := scraper.New(&scraper.Config{
			Groups:      []string{"alpha"},
			Concurrency: 1,
			Source:      source,
			Logger:      newTestLogger(),
		})
		Expect(err).NotTo(HaveOccurred())

		records, errs := scr.ScrapeAll(context.Background())
		out := collect(records)

		Expect(out).To(BeEmpty())
		Expect(<-errs).To(MatchError(ContainSubstring("cannot acquire transport")))
	})

	It("surfaces the bandwidth counter in stats snapshots", func() {
		source := &stubSource{pages: map[string][]types.Record{
			"alpha": {member(1, types.StatusActive)},
		}}
		scr, err := scraper.New(&scraper.Config{
			Groups:      []string{"alpha"},
			Concurrency: 1,
			Source:      source,
			Logger:      newTestLogger(),
		})
		Expect(err).NotTo(HaveOccurred())

		records, _ := scr.ScrapeAll(context.Background())
		collect(records)

		Expect(scr.Stats().BandwidthUsed).To(Equal(int64(512)))
	})

	It("rejects a config without groups or source", func() {
		_, err := scraper.New(&scraper.Config{Logger: newTestLogger()})
		Expect(err).To(HaveOccurred())

		_, err = scraper.New(&scraper.Config{Groups: []string{"a"}, Logger: newTestLogger()})
		Expect(err).To(HaveOccurred())
	})
})
