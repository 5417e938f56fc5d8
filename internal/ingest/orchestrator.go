// Package ingest loads a markdown tree into the vector store in small batches,
// resuming from the store's point count and retrying failed batches.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/journal"
	"ragchat/internal/telemetry"
)

// Report statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusDryRun  = "dry_run"
)

// ErrBusy is returned when another ingestion holds the orchestrator.
var ErrBusy = errors.New("an ingestion is already running")

type Config struct {
	ChunkSize   int
	Overlap     int
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	Cooldown    time.Duration
	// DryRun chunks and reports without embedding or writing.
	DryRun bool
}

// Ledger records runs next to the store. *journal.Journal implements it.
type Ledger interface {
	StartRun(ctx context.Context, collection, fingerprint string, documents, chunks, resumedFrom int) (int64, error)
	FinishRun(ctx context.Context, id int64, status string, processed, skipped, finalCount int) error
	RecordSkip(ctx context.Context, s journal.Skip) error
	LastRun(ctx context.Context, collection string, before int64) (journal.Run, bool, error)
	SaveCursor(ctx context.Context, collection string, c journal.Cursor) error
	Cursor(ctx context.Context, collection string) (journal.Cursor, bool, error)
}

// SkippedBatch is a batch given up on. Start and End are 0-based global chunk
// positions, End exclusive.
type SkippedBatch struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Error string `json:"error"`
}

type Report struct {
	Status             string         `json:"status"`
	DocumentsProcessed int            `json:"documents_processed"`
	ChunksCreated      int            `json:"chunks_created"`
	CollectionName     string         `json:"collection_name"`
	ResumedFrom        int            `json:"resumed_from"`
	BatchesProcessed   int            `json:"batches_processed"`
	BatchesSkipped     int            `json:"batches_skipped"`
	Skipped            []SkippedBatch `json:"skipped,omitempty"`
	FinalCount         int            `json:"final_count"`
	ExpectedCount      int            `json:"expected_count"`
}

// Corpus is a planned ingestion: the documents and their flattened chunks.
type Corpus struct {
	Documents []domain.Document
	Chunks    []domain.Chunk
}

type Orchestrator struct {
	embedder domain.Embedder
	store    domain.VectorStore
	chunker  *chunker.SentenceChunker
	cfg      Config
	policy   RetryPolicy

	log     logr.Logger
	metrics *telemetry.Metrics
	ledger  Ledger
	sleep   SleepFunc

	running sync.Mutex
}

type Option func(*Orchestrator)

func WithLogger(l logr.Logger) Option { return func(o *Orchestrator) { o.log = l } }
func WithMetrics(m *telemetry.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }
func WithLedger(l Ledger) Option { return func(o *Orchestrator) { o.ledger = l } }
func WithSleep(s SleepFunc) Option { return func(o *Orchestrator) { o.sleep = s } }

func NewOrchestrator(embedder domain.Embedder, store domain.VectorStore, cfg Config, opts ...Option) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	o := &Orchestrator{
		embedder: embedder,
		store:    store,
		chunker:  chunker.NewSentenceChunker(cfg.ChunkSize, cfg.Overlap),
		cfg:      cfg,
		policy:   RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay},
		log:      logr.Discard(),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Prepare scans root and plans the chunk list.
func (o *Orchestrator) Prepare(root string) (Corpus, error) {
	docs, err := Scan(root)
	if err != nil {
		return Corpus{}, err
	}
	return Corpus{Documents: docs, Chunks: Plan(docs, o.chunker)}, nil
}

// Run ingests every markdown file under root.
func (o *Orchestrator) Run(ctx context.Context, root string) (*Report, error) {
	corpus, err := o.Prepare(root)
	if err != nil {
		return nil, err
	}
	o.log.Info("documents loaded", "root", root, "documents", len(corpus.Documents), "chunks", len(corpus.Chunks))
	return o.Ingest(ctx, corpus)
}

// Ingest uploads corpus.Chunks starting at the store's current point count.
// Transient batch failures are retried and then skipped; a fatal error stops
// the run and is returned together with the partial report.
func (o *Orchestrator) Ingest(ctx context.Context, corpus Corpus) (*Report, error) {
	if !o.running.TryLock() {
		return nil, ErrBusy
	}
	defer o.running.Unlock()

	chunks := corpus.Chunks
	total := len(chunks)
	rep := &Report{
		DocumentsProcessed: len(corpus.Documents),
		ChunksCreated:      total,
		CollectionName:     o.store.CollectionName(),
		ExpectedCount:      total,
	}

	if o.cfg.DryRun {
		rep.Status = StatusDryRun
		rep.ResumedFrom = o.startPosition(ctx)
		rep.FinalCount = rep.ResumedFrom
		rep.BatchesProcessed = batchCount(max(total-rep.ResumedFrom, 0), o.cfg.BatchSize)
		return rep, nil
	}

	if err := o.store.CreateCollection(ctx, o.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	start := o.startPosition(ctx)
	rep.ResumedFrom = start
	fp := Fingerprint(chunks, o.cfg.ChunkSize, o.cfg.Overlap)
	runID := o.beginRun(ctx, rep, fp, start)

	if start >= total {
		o.log.Info("all chunks already ingested", "points", start, "chunks", total)
	} else {
		o.log.Info("resuming ingestion", "from", start, "total", total, "batchSize", o.cfg.BatchSize)
	}

	var fatal error
	for b := start; b < total; b += o.cfg.BatchSize {
		end := min(b+o.cfg.BatchSize, total)
		err := o.processBatch(ctx, chunks[b:end], b, total)
		switch {
		case err == nil:
			rep.BatchesProcessed++
			o.metrics.Batch(telemetry.OutcomeStored)
			o.saveCursor(ctx, end, chunks[end-1].ID)
		case domain.IsFatal(err) || ctx.Err() != nil:
			o.metrics.Batch(telemetry.OutcomeAborted)
			fatal = err
		default:
			rep.BatchesSkipped++
			rep.Skipped = append(rep.Skipped, SkippedBatch{Start: b, End: end, Error: err.Error()})
			o.metrics.Batch(telemetry.OutcomeSkipped)
			o.log.Error(err, "skipping batch", "chunks", batchLabel(b, end, total))
			o.recordSkip(ctx, runID, b, end, err)
		}
		if fatal != nil {
			break
		}
		if end < total {
			if err := o.sleep(ctx, o.cfg.Cooldown); err != nil {
				fatal = err
				break
			}
		}
	}

	rep.FinalCount = o.finalCount(ctx, start)
	rep.Status = StatusSuccess
	if rep.BatchesSkipped > 0 || fatal != nil {
		rep.Status = StatusPartial
	}
	o.finishRun(runID, rep)
	if rep.FinalCount < total {
		o.log.Info("ingestion finished with gaps", "status", rep.Status, "points", rep.FinalCount, "expected", total)
	} else {
		o.log.Info("ingestion finished", "status", rep.Status, "points", rep.FinalCount, "expected", total)
	}
	if fatal != nil {
		return rep, fmt.Errorf("ingestion aborted: %w", fatal)
	}
	return rep, nil
}

func (o *Orchestrator) processBatch(ctx context.Context, batch []domain.Chunk, start, total int) error {
	end := start + len(batch)
	ctx, span := telemetry.Tracer.Start(ctx, "ingest.batch", trace.WithAttributes(
		attribute.Int("ragchat.batch.start", start),
		attribute.Int("ragchat.batch.end", end),
		attribute.String("ragchat.collection", o.store.CollectionName()),
	))
	defer span.End()

	label := batchLabel(start, end, total)
	o.log.V(1).Info("processing batch", "chunks", label)
	attempts, err := o.policy.Do(ctx, o.sleep, func(attempt int) error {
		o.metrics.Attempt()
		return o.storeBatch(ctx, batch)
	}, func(attempt int, wait time.Duration, err error) {
		o.log.Info("batch attempt failed, retrying", "chunks", label,
			"attempt", attempt, "maxAttempts", o.policy.MaxAttempts, "wait", wait, "error", err.Error())
	})
	span.SetAttributes(attribute.Int("ragchat.batch.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	o.metrics.Upserted(len(batch))
	o.log.Info("batch uploaded", "chunks", label, "attempts", attempts)
	return nil
}

// storeBatch embeds the batch in one call and upserts it in one call.
func (o *Orchestrator) storeBatch(ctx context.Context, batch []domain.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vectors, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(batch))
	}
	points := make([]domain.Point, len(batch))
	for i, c := range batch {
		if err := domain.CheckDimension(len(vectors[i]), o.embedder.Dimension()); err != nil {
			return err
		}
		points[i] = domain.Point{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: domain.Payload{
				Text:     c.Text,
				Source:   c.Source,
				Metadata: c.Metadata,
				ChunkID:  c.ID,
			},
		}
	}
	if err := o.store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// startPosition is the store's point count; an unreadable count starts from 0.
func (o *Orchestrator) startPosition(ctx context.Context) int {
	n, err := o.store.PointsCount(ctx)
	if err != nil {
		o.log.Error(err, "reading points count failed, starting from 0")
		return 0
	}
	return n
}

func (o *Orchestrator) finalCount(ctx context.Context, fallback int) int {
	n, err := o.store.PointsCount(context.WithoutCancel(ctx))
	if err != nil {
		o.log.Error(err, "reading final points count failed")
		return fallback
	}
	return n
}

// beginRun opens a ledger entry and warns when positional resume looks unsafe.
func (o *Orchestrator) beginRun(ctx context.Context, rep *Report, fp string, start int) int64 {
	if o.ledger == nil {
		return 0
	}
	collection := rep.CollectionName
	if prev, ok, err := o.ledger.LastRun(ctx, collection, 0); err == nil && ok && start > 0 && prev.Fingerprint != fp {
		o.log.Info("positional resume is unsafe: corpus or chunk parameters changed since the last run, reset and re-ingest",
			"collection", collection, "points", start)
	}
	if c, ok, err := o.ledger.Cursor(ctx, collection); err == nil && ok && c.Position != start {
		o.log.Info("journal cursor disagrees with store point count",
			"cursor", c.Position, "cursorChunk", c.ChunkID, "points", start)
	}
	id, err := o.ledger.StartRun(ctx, collection, fp, rep.DocumentsProcessed, rep.ChunksCreated, start)
	if err != nil {
		o.log.Error(err, "journal: recording run start failed")
		return 0
	}
	return id
}

func (o *Orchestrator) finishRun(id int64, rep *Report) {
	if o.ledger == nil || id == 0 {
		return
	}
	if err := o.ledger.FinishRun(context.Background(), id, rep.Status, rep.BatchesProcessed, rep.BatchesSkipped, rep.FinalCount); err != nil {
		o.log.Error(err, "journal: recording run end failed")
	}
}

func (o *Orchestrator) saveCursor(ctx context.Context, position int, chunkID string) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.SaveCursor(ctx, o.store.CollectionName(), journal.Cursor{Position: position, ChunkID: chunkID}); err != nil {
		o.log.Error(err, "journal: saving cursor failed")
	}
}

func (o *Orchestrator) recordSkip(ctx context.Context, runID int64, start, end int, cause error) {
	if o.ledger == nil || runID == 0 {
		return
	}
	if err := o.ledger.RecordSkip(ctx, journal.Skip{RunID: runID, Start: start, End: end, LastErr: cause.Error()}); err != nil {
		o.log.Error(err, "journal: recording skipped batch failed")
	}
}

// Fingerprint identifies a chunk list and the parameters that produced it.
func Fingerprint(chunks []domain.Chunk, chunkSize, overlap int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d/%d\n", chunkSize, overlap)
	for _, c := range chunks {
		h.Write([]byte(c.ID))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(len(c.Text))))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func batchCount(n, size int) int {
	return (n + size - 1) / size
}

// batchLabel renders a 1-based inclusive range, e.g. "4-6/9".
func batchLabel(start, end, total int) string {
	return fmt.Sprintf("%d-%d/%d", start+1, end, total)
}
