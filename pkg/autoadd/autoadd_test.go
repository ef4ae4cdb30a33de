package autoadd_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/sietchlabs/scraper-go/pkg/autoadd"
	"github.com/sietchlabs/scraper-go/pkg/types"
)

type stubInviter struct {
	mu       sync.Mutex
	invited  []int64
	channels []string
	err      error

	startCalls int
	stopCalls  int
}

func (s *stubInviter) Invite(_ context.Context, channel string, uid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invited = append(s.invited, uid)
	s.channels = append(s.channels, channel)
	return s.err
}

func (s *stubInviter) Start() error { s.startCalls++; return nil }
func (s *stubInviter) Stop() error  { s.stopCalls++; return nil }

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newEngine(inviter autoadd.Inviter) *autoadd.Engine {
	engine, err := autoadd.NewEngine(&autoadd.Config{
		TargetChannel: "@target",
		InviteDelay:   time.Millisecond,
		BatchSize:     2,
		Logger:        newTestLogger(),
	}, inviter)
	Expect(err).NotTo(HaveOccurred())
	return engine
}

func makeRecords(n int) []*types.Record {
	recs := make([]*types.Record, n)
	for i := range recs {
		recs[i] = &types.Record{UID: int64(100 + i), Status: types.StatusActive}
	}
	return recs
}

var _ = Describe("Engine", func() {
	It("reports a full batch summary with an always-succeeding inviter", func() {
		inviter := &stubInviter{}
		engine := newEngine(inviter)

		result := engine.AddBatch(context.Background(), makeRecords(5))

		Expect(result).To(Equal(autoadd.BatchResult{Total: 5, Successful: 5, Failed: 0}))

		snap := engine.Snapshot()
		Expect(snap.SuccessCount).To(Equal(5))
		Expect(snap.FailureCount).To(BeZero())
		Expect(snap.TotalAttempts).To(Equal(5))
	})

	It("invites each record against the configured channel in order", func() {
		inviter := &stubInviter{}
		engine := newEngine(inviter)

		engine.AddBatch(context.Background(), makeRecords(3))

		Expect(inviter.invited).To(Equal([]int64{100, 101, 102}))
		Expect(inviter.channels).To(HaveEach("@target"))
	})

	It("counts failures without aborting the batch", func() {
		inviter := &stubInviter{err: errors.New("flood wait")}
		engine := newEngine(inviter)

		result := engine.AddBatch(context.Background(), makeRecords(4))

		Expect(result).To(Equal(autoadd.BatchResult{Total: 4, Successful: 0, Failed: 4}))
		Expect(engine.Snapshot().FailureCount).To(Equal(4))
	})

	It("accumulates lifetime counters across calls", func() {
		inviter := &stubInviter{}
		engine := newEngine(inviter)

		Expect(engine.Add(context.Background(), &types.Record{UID: 1})).To(BeTrue())
		engine.AddBatch(context.Background(), makeRecords(2))

		snap := engine.Snapshot()
		Expect(snap.TotalAttempts).To(Equal(3))
		Expect(snap.SuccessCount).To(Equal(3))
	})

	It("starts lazily when Add is called before Start", func() {
		inviter := &stubInviter{}
		engine := newEngine(inviter)

		Expect(engine.Add(context.Background(), &types.Record{UID: 7})).To(BeTrue())
		Expect(inviter.startCalls).To(Equal(1))
	})

	It("acquires and releases the inviter transport across the lifecycle", func() {
		inviter := &stubInviter{}
		engine := newEngine(inviter)

		Expect(engine.Start()).To(Succeed())
		Expect(engine.Start()).To(Succeed())
		Expect(inviter.startCalls).To(Equal(1))

		Expect(engine.Stop()).To(Succeed())
		Expect(inviter.stopCalls).To(Equal(1))
	})

	It("keeps counters after Stop", func() {
		inviter := &stubInviter{}
		engine := newEngine(inviter)

		engine.AddBatch(context.Background(), makeRecords(2))
		Expect(engine.Stop()).To(Succeed())

		Expect(engine.Snapshot().SuccessCount).To(Equal(2))
	})
})
