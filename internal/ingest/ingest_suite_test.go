package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ragchat/internal/domain"
)

func TestIngestSuite(t *testing.T) {
	RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "ingest suite")
}

var _ = ginkgo.Describe("Orchestrator", func() {
	var (
		ctx    context.Context
		emb    *fakeEmbedder
		store  *flakyStore
		sleeps *sleepRecorder
		cfg    Config
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		emb = newFakeEmbedder(4)
		store = newStore(0, 4)
		sleeps = &sleepRecorder{}
		cfg = Config{ChunkSize: 500, Overlap: 50, BatchSize: 3, MaxAttempts: 3, BaseDelay: 2 * time.Second, Cooldown: time.Second}
	})

	run := func(n int) (*Report, error) {
		o := NewOrchestrator(emb, store, cfg, WithSleep(sleeps.Sleep))
		return o.Ingest(ctx, corpusOf(n))
	}

	ginkgo.Context("with an empty collection", func() {
		ginkgo.It("stores every chunk in order", func() {
			rep, err := run(8)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Status).To(Equal(StatusSuccess))
			Expect(rep.BatchesProcessed).To(Equal(3))
			Expect(rep.FinalCount).To(Equal(8))
			Expect(emb.Calls()).To(HaveLen(3))
			Expect(emb.Calls()[2]).To(Equal([]string{"chunk 7", "chunk 8"}))
		})

		ginkgo.It("waits the cooldown only between batches", func() {
			_, err := run(7)
			Expect(err).NotTo(HaveOccurred())
			Expect(sleeps.Waits()).To(Equal([]time.Duration{time.Second, time.Second}))
		})
	})

	ginkgo.Context("when a batch keeps failing", func() {
		ginkgo.BeforeEach(func() {
			for i := 1; i <= 3; i++ {
				emb.failAt[i] = transientErr{}
			}
		})

		ginkgo.It("backs off linearly, skips it and carries on", func() {
			rep, err := run(6)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Status).To(Equal(StatusPartial))
			Expect(rep.Skipped).To(ConsistOf(HaveField("Start", 0)))
			Expect(rep.FinalCount).To(Equal(3))
			// two retry waits, then the cooldown before the second batch
			Expect(sleeps.Waits()).To(Equal([]time.Duration{2 * time.Second, 4 * time.Second, time.Second}))
		})

		ginkgo.It("resumes by position rather than by content", func() {
			_, err := run(6)
			Expect(err).NotTo(HaveOccurred())
			rep, err := run(6)
			Expect(err).NotTo(HaveOccurred())
			// 3 points stored, so the rerun re-sends chunks 4-6 and never the skipped 1-3
			Expect(rep.ResumedFrom).To(Equal(3))
			Expect(emb.Calls()[len(emb.Calls())-1]).To(Equal([]string{"chunk 4", "chunk 5", "chunk 6"}))
		})
	})

	ginkgo.Context("when the provider rejects the configuration", func() {
		ginkgo.It("aborts without retrying", func() {
			emb.always = domain.ErrMissingCredential
			rep, err := run(9)
			Expect(err).To(MatchError(domain.ErrMissingCredential))
			Expect(emb.Calls()).To(HaveLen(1))
			Expect(rep.BatchesSkipped).To(BeZero())
			Expect(sleeps.Waits()).To(BeEmpty())
		})
	})

	ginkgo.Context("when the context is cancelled during a wait", func() {
		ginkgo.It("stops the run", func() {
			cctx, cancel := context.WithCancel(ctx)
			ctx = cctx
			emb.failAt[1] = transientErr{}
			o := NewOrchestrator(emb, store, cfg, WithSleep(func(c context.Context, d time.Duration) error {
				cancel()
				return c.Err()
			}))
			_, err := o.Ingest(ctx, corpusOf(3))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})
})
