package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
	"github.com/MikeSquared-Agency/scribe/internal/vector"
)

const (
	DefaultTopK     = 12
	DefaultMinScore = 0.18
	DefaultCap      = 4000
)

// ChunkSource returns embedded chunks of the given lectures, most recent
// first, at most limit of them.
type ChunkSource interface {
	ListEmbeddedChunks(ctx context.Context, lectureIDs []uuid.UUID, limit int) ([]domain.Chunk, error)
}

type Options struct {
	TopK     int
	MinScore float64 // scores must be strictly greater
	Cap      int     // candidate chunks scanned per query
}

func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, MinScore: DefaultMinScore, Cap: DefaultCap}
}

type Hit struct {
	Chunk domain.Chunk
	Score float64
}

type Retriever struct {
	source  ChunkSource
	opts    Options
	metrics *metrics.Metrics
}

func New(source ChunkSource, opts Options, m *metrics.Metrics) *Retriever {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.Cap <= 0 {
		opts.Cap = def.Cap
	}
	return &Retriever{source: source, opts: opts, metrics: m}
}

// Retrieve scores candidate chunks against the query vector by brute force.
// Chunks without a vector are skipped. Equal scores keep the source order.
func (r *Retriever) Retrieve(ctx context.Context, query []float64, allowed []uuid.UUID) ([]Hit, error) {
	defer r.metrics.StageTimer("retrieve").ObserveDuration()

	if len(allowed) == 0 {
		r.metrics.RetrievalHits(0)
		return nil, nil
	}

	chunks, err := r.source.ListEmbeddedChunks(ctx, allowed, r.opts.Cap)
	if err != nil {
		return nil, fmt.Errorf("load candidate chunks: %w", err)
	}

	var hits []Hit
	for _, c := range chunks {
		if !c.Embedded() {
			continue
		}
		score := vector.Cosine(query, c.Vector)
		if score > r.opts.MinScore {
			hits = append(hits, Hit{Chunk: c, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > r.opts.TopK {
		hits = hits[:r.opts.TopK]
	}

	r.metrics.RetrievalHits(len(hits))
	return hits, nil
}
