package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/index"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
	"github.com/MikeSquared-Agency/scribe/internal/summary"
	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

// ErrInProgress is returned when the same lecture is already being finalized
// by this process.
var ErrInProgress = errors.New("lecture finalize already in progress")

type LectureStore interface {
	GetLecture(ctx context.Context, id uuid.UUID) (*domain.Lecture, error)
	GetClass(ctx context.Context, id uuid.UUID) (*domain.Class, error)
	SaveTranscript(ctx context.Context, id uuid.UUID, text string) error
	UpdateLectureOutcome(ctx context.Context, id uuid.UUID, status domain.LectureStatus, summary string) error
}

type Indexer interface {
	IndexLecture(ctx context.Context, lecture domain.Lecture, segments []domain.Segment, source string) (index.Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, lectureName, className, transcript string) (*summary.Summary, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Outcome describes a finalized lecture.
type Outcome struct {
	LectureID uuid.UUID            `json:"lectureId"`
	Status    domain.LectureStatus `json:"status"`
	Index     index.Result         `json:"index"`
	Summary   string               `json:"summary,omitempty"`
}

// Processor finalizes lectures: it stores the transcript, indexes it and
// writes a summary, then decides the lecture status.
type Processor struct {
	store      LectureStore
	indexer    Indexer
	summarizer Summarizer // optional
	publisher  Publisher  // optional
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]bool
}

func New(s LectureStore, idx Indexer, sum Summarizer, pub Publisher, m *metrics.Metrics, logger *slog.Logger) *Processor {
	return &Processor{
		store:      s,
		indexer:    idx,
		summarizer: sum,
		publisher:  pub,
		metrics:    m,
		logger:     logger,
		inflight:   make(map[uuid.UUID]bool),
	}
}

// Finalize runs the ingestion pipeline for one lecture. Embedding failures do
// not fail it; the lecture becomes READY when a summary was written and
// FAILED otherwise. Persistence failures are returned.
func (p *Processor) Finalize(ctx context.Context, lectureID uuid.UUID, segments []domain.Segment, source string) (*Outcome, error) {
	if !p.acquire(lectureID) {
		return nil, ErrInProgress
	}
	defer p.release(lectureID)

	lecture, err := p.store.GetLecture(ctx, lectureID)
	if err != nil {
		return nil, fmt.Errorf("get lecture: %w", err)
	}

	text := transcript.JoinText(segments)
	if err := p.store.SaveTranscript(ctx, lecture.ID, text); err != nil {
		return nil, fmt.Errorf("save transcript: %w", err)
	}
	lecture.Transcript = text

	res, err := p.indexer.IndexLecture(ctx, *lecture, segments, source)
	if err != nil {
		if uerr := p.store.UpdateLectureOutcome(ctx, lecture.ID, domain.StatusFailed, ""); uerr != nil {
			p.logger.Error("failed to mark lecture failed", "lecture_id", lecture.ID, "error", uerr)
		}
		return nil, fmt.Errorf("index lecture: %w", err)
	}

	out := &Outcome{LectureID: lecture.ID, Status: domain.StatusFailed, Index: res}
	if notes := p.summarize(ctx, *lecture); notes != "" {
		out.Status = domain.StatusReady
		out.Summary = notes
	}

	if err := p.store.UpdateLectureOutcome(ctx, lecture.ID, out.Status, out.Summary); err != nil {
		return nil, fmt.Errorf("update lecture outcome: %w", err)
	}

	p.logger.Info("lecture finalized",
		"lecture_id", lecture.ID,
		"class_id", lecture.ClassID,
		"status", out.Status,
		"chunks", res.Chunks,
		"pending", res.Pending,
	)

	if p.publisher != nil {
		evt := hermes.LectureIndexed{
			LectureID: lecture.ID.String(),
			ClassID:   lecture.ClassID.String(),
			Status:    string(out.Status),
			Chunks:    res.Chunks,
			Embedded:  res.Embedded,
			Pending:   res.Pending,
			Timestamp: time.Now().UTC(),
		}
		if err := p.publisher.Publish(hermes.SubjectLectureIndexed, evt); err != nil {
			p.logger.Error("failed to publish lecture indexed", "lecture_id", lecture.ID, "error", err)
		}
	}
	return out, nil
}

// HandleTranscriptFinalized is the NATS handler for scribe.lecture.transcript.finalized.
func (p *Processor) HandleTranscriptFinalized(subject string, data []byte) {
	ctx := context.Background()

	var evt hermes.TranscriptFinalized
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse transcript event", "subject", subject, "error", err)
		return
	}

	lectureID, err := uuid.Parse(evt.LectureID)
	if err != nil {
		p.logger.Error("invalid lecture id", "lecture_id", evt.LectureID, "error", err)
		return
	}

	p.logger.Info("processing finalized transcript",
		"lecture_id", lectureID,
		"source", evt.Source,
		"segments", len(evt.Segments),
	)

	if _, err := p.Finalize(ctx, lectureID, evt.Segments, evt.Source); err != nil {
		p.logger.Error("finalize failed", "lecture_id", lectureID, "error", err)
	}
}

// summarize returns the rendered notes, or "" when summarization is not
// configured or failed.
func (p *Processor) summarize(ctx context.Context, lecture domain.Lecture) string {
	if p.summarizer == nil {
		return ""
	}

	className := ""
	if class, err := p.store.GetClass(ctx, lecture.ClassID); err == nil {
		className = class.Name
	}

	timer := p.metrics.StageTimer("summary")
	s, err := p.summarizer.Summarize(ctx, lecture.DisplayName(), className, lecture.Transcript)
	timer.ObserveDuration()
	if err != nil {
		if !errors.Is(err, summary.ErrEmptySummary) {
			p.metrics.GatewayError("complete", "summary")
		}
		p.logger.Warn("summary failed", "lecture_id", lecture.ID, "error", err)
		return ""
	}
	return s.Markdown()
}

func (p *Processor) acquire(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[id] {
		return false
	}
	p.inflight[id] = true
	return true
}

func (p *Processor) release(id uuid.UUID) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}
