package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

const DefaultBackfillLimit = 200

// ChunkStore is the slice of persistence the indexer writes through.
type ChunkStore interface {
	ReplaceLectureChunks(ctx context.Context, lecture domain.Lecture, source string, drafts []domain.ChunkDraft) ([]domain.Chunk, error)
	SetChunkVector(ctx context.Context, chunkID uuid.UUID, v []float64) error
	ListChunksMissingVectors(ctx context.Context, classID uuid.UUID, limit int) ([]domain.Chunk, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Result reports how many chunks were written and how many of them ended up
// with a vector. Pending chunks are invisible to retrieval until backfilled.
type Result struct {
	Chunks   int `json:"chunks"`
	Embedded int `json:"embedded"`
	Pending  int `json:"pending"`
}

type Indexer struct {
	store    ChunkStore
	embedder Embedder
	maxChars int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(s ChunkStore, e Embedder, maxChars int, m *metrics.Metrics, logger *slog.Logger) *Indexer {
	if maxChars <= 0 {
		maxChars = transcript.DefaultMaxChunkChars
	}
	return &Indexer{
		store:    s,
		embedder: e,
		maxChars: maxChars,
		metrics:  m,
		logger:   logger,
	}
}

// IndexLecture chunks a finalized transcript, replaces the lecture's chunks,
// and embeds them in one batch. Only a persistence failure is returned as an
// error; embedding problems leave chunks pending.
func (ix *Indexer) IndexLecture(ctx context.Context, lecture domain.Lecture, segments []domain.Segment, source string) (Result, error) {
	defer ix.metrics.StageTimer("index").ObserveDuration()

	drafts := transcript.ChunkSegments(segments, ix.maxChars)
	chunks, err := ix.store.ReplaceLectureChunks(ctx, lecture, source, drafts)
	if err != nil {
		return Result{}, fmt.Errorf("persist chunks: %w", err)
	}

	embedded := ix.embedAndAttach(ctx, chunks, "index")
	res := Result{Chunks: len(chunks), Embedded: embedded, Pending: len(chunks) - embedded}
	ix.metrics.ChunksIndexed(res.Embedded, res.Pending)

	ix.logger.Info("lecture indexed",
		"lecture_id", lecture.ID,
		"class_id", lecture.ClassID,
		"segments", len(segments),
		"chunks", res.Chunks,
		"embedded", res.Embedded,
		"pending", res.Pending,
	)
	return res, nil
}

// Backfill embeds up to limit vector-less chunks of a class, most recent
// first. Blank chunks are skipped and stay pending.
func (ix *Indexer) Backfill(ctx context.Context, classID uuid.UUID, limit int) (Result, error) {
	defer ix.metrics.StageTimer("backfill").ObserveDuration()

	if limit <= 0 {
		limit = DefaultBackfillLimit
	}
	chunks, err := ix.store.ListChunksMissingVectors(ctx, classID, limit)
	if err != nil {
		return Result{}, fmt.Errorf("list chunks missing vectors: %w", err)
	}

	embedded := ix.embedAndAttach(ctx, chunks, "backfill")
	res := Result{Chunks: len(chunks), Embedded: embedded, Pending: len(chunks) - embedded}
	ix.metrics.ChunksIndexed(res.Embedded, 0)

	ix.logger.Info("backfill complete",
		"class_id", classID,
		"scanned", res.Chunks,
		"embedded", res.Embedded,
		"pending", res.Pending,
	)
	return res, nil
}

// embedAndAttach sends every non-blank chunk text in one Embed call and
// attaches the vectors by position. It returns the number of chunks that
// received a vector.
func (ix *Indexer) embedAndAttach(ctx context.Context, chunks []domain.Chunk, path string) int {
	targets := lo.Filter(chunks, func(c domain.Chunk, _ int) bool {
		return strings.TrimSpace(c.Text) != ""
	})
	if len(targets) == 0 {
		return 0
	}

	vecs, err := ix.embedder.Embed(ctx, lo.Map(targets, func(c domain.Chunk, _ int) string {
		return c.Text
	}))
	if err != nil {
		ix.metrics.GatewayError("embed", path)
		ix.logger.Warn("embedding failed, chunks left pending", "path", path, "chunks", len(targets), "error", err)
		return 0
	}
	if len(vecs) != len(targets) {
		ix.metrics.GatewayError("embed", path)
		ix.logger.Error("embedding count mismatch, chunks left pending",
			"path", path,
			"requested", len(targets),
			"returned", len(vecs),
		)
		return 0
	}

	attached := 0
	for i, c := range targets {
		if len(vecs[i]) == 0 {
			ix.logger.Warn("empty vector returned", "chunk_id", c.ID)
			continue
		}
		if err := ix.store.SetChunkVector(ctx, c.ID, vecs[i]); err != nil {
			ix.logger.Error("failed to attach vector", "chunk_id", c.ID, "error", err)
			continue
		}
		attached++
	}
	return attached
}
