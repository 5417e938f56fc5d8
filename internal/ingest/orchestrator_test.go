package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/journal"
	"ragchat/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() Config {
	return Config{ChunkSize: 500, Overlap: 50, BatchSize: 3, MaxAttempts: 5, BaseDelay: 5 * time.Second, Cooldown: 3 * time.Second}
}

func TestIngest_ResumesFromPointsCount(t *testing.T) {
	emb := newFakeEmbedder(2)
	store := newStore(3, 2)
	sleeps := &sleepRecorder{}
	o := NewOrchestrator(emb, store, testConfig(), WithSleep(sleeps.Sleep))

	rep, err := o.Ingest(context.Background(), corpusOf(9))
	if err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	want := [][]string{
		{"chunk 4", "chunk 5", "chunk 6"},
		{"chunk 7", "chunk 8", "chunk 9"},
	}
	if got := emb.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("embedded batches = %v, want %v", got, want)
	}
	if rep.ResumedFrom != 3 || rep.BatchesProcessed != 2 || rep.BatchesSkipped != 0 {
		t.Errorf("unexpected report %+v", rep)
	}
	if rep.Status != StatusSuccess || rep.FinalCount != 9 || rep.ExpectedCount != 9 {
		t.Errorf("unexpected report %+v", rep)
	}
	// one cooldown between the two batches, none after the last
	if got := sleeps.Waits(); !reflect.DeepEqual(got, []time.Duration{3 * time.Second}) {
		t.Errorf("waits = %v", got)
	}
}

func TestIngest_SecondRunIsNoop(t *testing.T) {
	emb := newFakeEmbedder(2)
	store := newStore(0, 2)
	o := NewOrchestrator(emb, store, testConfig(), WithSleep((&sleepRecorder{}).Sleep))
	ctx := context.Background()

	if _, err := o.Ingest(ctx, corpusOf(7)); err != nil {
		t.Fatal(err)
	}
	calls := len(emb.Calls())
	rep, err := o.Ingest(ctx, corpusOf(7))
	if err != nil {
		t.Fatal(err)
	}
	if len(emb.Calls()) != calls {
		t.Errorf("second run embedded %d more batches", len(emb.Calls())-calls)
	}
	if n, _ := store.PointsCount(ctx); n != 7 || rep.FinalCount != 7 || rep.BatchesProcessed != 0 {
		t.Errorf("points = %d, report %+v", n, rep)
	}
}

func TestIngest_RetriesWholeBatchWithLinearBackoff(t *testing.T) {
	emb := newFakeEmbedder(2)
	store := newStore(0, 2)
	// first batch: embedding fails once, then the upsert fails once
	emb.failAt[1] = transientErr{}
	store.failUpsert[1] = errors.New("write timeout")
	sleeps := &sleepRecorder{}
	metrics := telemetry.NewMetrics()
	o := NewOrchestrator(emb, store, testConfig(), WithSleep(sleeps.Sleep), WithMetrics(metrics))

	rep, err := o.Ingest(context.Background(), corpusOf(3))
	if err != nil {
		t.Fatal(err)
	}
	if rep.BatchesProcessed != 1 || rep.FinalCount != 3 {
		t.Errorf("unexpected report %+v", rep)
	}
	if got := emb.Calls(); len(got) != 3 {
		t.Errorf("embed calls = %d, want 3 (whole batch retried)", len(got))
	}
	if got := sleeps.Waits(); !reflect.DeepEqual(got, []time.Duration{5 * time.Second, 10 * time.Second}) {
		t.Errorf("waits = %v", got)
	}
	if got := testutil.ToFloat64(metrics.BatchAttempts); got != 3 {
		t.Errorf("attempts metric = %v, want 3", got)
	}
}

func TestIngest_SkipsExhaustedBatch(t *testing.T) {
	emb := newFakeEmbedder(2)
	store := newStore(0, 2)
	cfg := testConfig()
	cfg.MaxAttempts = 2
	for i := 1; i <= 2; i++ {
		store.failUpsert[i] = errors.New("503")
	}
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	o := NewOrchestrator(emb, store, cfg, WithSleep((&sleepRecorder{}).Sleep), WithLedger(j))

	rep, err := o.Ingest(context.Background(), corpusOf(6))
	if err != nil {
		t.Fatalf("skipped batches must not fail the run: %v", err)
	}
	if rep.Status != StatusPartial || rep.BatchesSkipped != 1 || rep.BatchesProcessed != 1 {
		t.Errorf("unexpected report %+v", rep)
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0].Start != 0 || rep.Skipped[0].End != 3 {
		t.Errorf("unexpected skipped %+v", rep.Skipped)
	}
	if rep.FinalCount != 3 || rep.ExpectedCount != 6 {
		t.Errorf("final %d / expected %d", rep.FinalCount, rep.ExpectedCount)
	}

	run, ok, _ := j.LastRun(context.Background(), "book", 0)
	if !ok || run.Status != StatusPartial || run.BatchesSkipped != 1 {
		t.Errorf("journal run = %+v", run)
	}
	skips, _ := j.Skips(context.Background(), run.ID)
	if len(skips) != 1 || !strings.Contains(skips[0].LastErr, "503") {
		t.Errorf("journal skips = %+v", skips)
	}
	cur, ok, _ := j.Cursor(context.Background(), "book")
	if !ok || cur.Position != 6 || cur.ChunkID != "/docs/book.md_chunk_5" {
		t.Errorf("cursor = %+v", cur)
	}
}

func TestIngest_FatalErrorAborts(t *testing.T) {
	emb := newFakeEmbedder(2)
	emb.always = domain.ErrDimensionMismatch
	o := NewOrchestrator(emb, newStore(0, 2), testConfig(), WithSleep((&sleepRecorder{}).Sleep))

	rep, err := o.Ingest(context.Background(), corpusOf(9))
	if !domain.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if len(emb.Calls()) != 1 {
		t.Errorf("fatal error retried: %d calls", len(emb.Calls()))
	}
	if rep == nil || rep.Status != StatusPartial || rep.BatchesProcessed != 0 {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestIngest_PointsCountFailureStartsFromZero(t *testing.T) {
	emb := newFakeEmbedder(2)
	store := newStore(0, 2)
	store.countErr = errors.New("unavailable")
	o := NewOrchestrator(emb, store, testConfig(), WithSleep((&sleepRecorder{}).Sleep))
	rep, err := o.Ingest(context.Background(), corpusOf(2))
	if err != nil {
		t.Fatal(err)
	}
	if rep.ResumedFrom != 0 || len(emb.Calls()) != 1 {
		t.Errorf("report %+v, calls %d", rep, len(emb.Calls()))
	}
}

func TestIngest_DryRunWritesNothing(t *testing.T) {
	emb := newFakeEmbedder(2)
	store := newStore(3, 2)
	cfg := testConfig()
	cfg.DryRun = true
	o := NewOrchestrator(emb, store, cfg)
	rep, err := o.Ingest(context.Background(), corpusOf(9))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status != StatusDryRun || rep.BatchesProcessed != 2 || rep.ResumedFrom != 3 {
		t.Errorf("unexpected report %+v", rep)
	}
	if len(emb.Calls()) != 0 {
		t.Error("dry run called the embedder")
	}
}

func TestIngest_Busy(t *testing.T) {
	o := NewOrchestrator(newFakeEmbedder(2), newStore(0, 2), testConfig())
	o.running.Lock()
	defer o.running.Unlock()
	if _, err := o.Ingest(context.Background(), corpusOf(1)); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestIngest_FingerprintChangeWarnsButResumes(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	ctx := context.Background()
	emb := newFakeEmbedder(2)
	store := newStore(0, 2)
	o := NewOrchestrator(emb, store, testConfig(), WithSleep((&sleepRecorder{}).Sleep), WithLedger(j))
	if _, err := o.Ingest(ctx, corpusOf(3)); err != nil {
		t.Fatal(err)
	}
	// corpus grew: positional resume continues at 3 regardless
	rep, err := o.Ingest(ctx, corpusOf(5))
	if err != nil {
		t.Fatal(err)
	}
	if rep.ResumedFrom != 3 || rep.FinalCount != 5 {
		t.Errorf("unexpected report %+v", rep)
	}
	run, _, _ := j.LastRun(ctx, "book", 0)
	if run.Fingerprint != Fingerprint(makeChunks(5), 500, 50) {
		t.Error("journal fingerprint does not match the current corpus")
	}
}

func TestRun_ScansAndChunks(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("b.md", "Second doc. It has two sentences.")
	write("a/intro.md", "First doc.")
	write("notes.txt", "ignored")

	emb := newFakeEmbedder(2)
	o := NewOrchestrator(emb, newStore(0, 2), testConfig(), WithSleep((&sleepRecorder{}).Sleep))
	rep, err := o.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if rep.DocumentsProcessed != 2 || rep.ChunksCreated != 2 || rep.FinalCount != 2 {
		t.Errorf("unexpected report %+v", rep)
	}
	if got := emb.Calls()[0]; got[0] != "First doc." {
		t.Errorf("documents not in path order: %v", got)
	}
}
