package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/answer"
	"github.com/MikeSquared-Agency/scribe/internal/domain"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
	"github.com/MikeSquared-Agency/scribe/internal/scope"
)

var (
	ErrEmptyQuery = errors.New("empty query")
	// ErrUpstream wraps embedding and completion failures during a turn.
	ErrUpstream = errors.New("upstream gateway failure")
)

const (
	NoMaterialsRefusal = "I don't have any class materials I'm allowed to use for that yet."
	// ExcludedMaterialsRefusal is used when nothing is eligible and the
	// viewer explicitly excluded at least one visible lecture.
	ExcludedMaterialsRefusal = NoMaterialsRefusal + " You have excluded lectures in this class from AI answers; include one to use it here."

	DefaultHistoryLimit = 50
)

type MessageStore interface {
	AppendChatMessage(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error)
	ListChatHistory(ctx context.Context, classID, userID uuid.UUID, limit int) ([]domain.ChatMessage, error)
}

type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float64, error)
}

type Resolver interface {
	Resolve(ctx context.Context, viewerID uuid.UUID, class domain.Class) (scope.Scope, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query []float64, allowed []uuid.UUID) ([]retrieval.Hit, error)
}

type Composer interface {
	Compose(ctx context.Context, req answer.Request) (answer.Answer, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Reply is the assistant side of one turn.
type Reply struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
	Grounded  bool              `json:"-"`
}

type Service struct {
	messages     MessageStore
	embedder     Embedder
	resolver     Resolver
	retriever    Retriever
	composer     Composer
	publisher    Publisher // optional
	historyLimit int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Deps struct {
	Messages     MessageStore
	Embedder     Embedder
	Resolver     Resolver
	Retriever    Retriever
	Composer     Composer
	Publisher    Publisher
	HistoryLimit int
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

func NewService(d Deps) *Service {
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = DefaultHistoryLimit
	}
	return &Service{
		messages:     d.Messages,
		embedder:     d.Embedder,
		resolver:     d.Resolver,
		retriever:    d.Retriever,
		composer:     d.Composer,
		publisher:    d.Publisher,
		historyLimit: d.HistoryLimit,
		metrics:      d.Metrics,
		logger:       d.Logger,
	}
}

// Ask runs one chat turn for viewerID in class. The user turn is persisted
// before anything else can fail; refusals are persisted assistant turns, not
// errors, and never reach the completion gateway.
func (s *Service) Ask(ctx context.Context, viewerID uuid.UUID, class domain.Class, message string) (Reply, error) {
	query := strings.TrimSpace(message)
	if query == "" {
		return Reply{}, ErrEmptyQuery
	}
	if class.UserID != viewerID {
		return Reply{}, scope.ErrClassNotOwned
	}

	// Loaded before the user turn is appended so the prompt history does not
	// repeat the question.
	history, err := s.messages.ListChatHistory(ctx, class.ID, viewerID, s.historyLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}

	if _, err := s.messages.AppendChatMessage(ctx, domain.ChatMessage{
		ClassID: class.ID,
		UserID:  viewerID,
		Role:    domain.RoleUser,
		Content: query,
	}); err != nil {
		return Reply{}, fmt.Errorf("persist user turn: %w", err)
	}

	queryVec, err := s.embedQuery(ctx, query)
	if err != nil {
		s.metrics.GatewayError("embed", "chat")
		s.metrics.ChatTurn(metrics.OutcomeError)
		return Reply{}, fmt.Errorf("%w: embed query: %v", ErrUpstream, err)
	}

	sc, err := s.resolver.Resolve(ctx, viewerID, class)
	if err != nil {
		return Reply{}, fmt.Errorf("resolve scope: %w", err)
	}
	if sc.Empty() {
		refusal := NoMaterialsRefusal
		if sc.ExcludedByPreference() {
			refusal = ExcludedMaterialsRefusal
		}
		return s.finish(ctx, class, viewerID, metrics.OutcomeNoScope, Reply{Answer: refusal, Citations: []domain.Citation{}})
	}

	hits, err := s.retriever.Retrieve(ctx, queryVec, sc.Eligible)
	if err != nil {
		return Reply{}, fmt.Errorf("retrieve: %w", err)
	}
	if len(hits) == 0 {
		return s.finish(ctx, class, viewerID, metrics.OutcomeNoHits, Reply{Answer: answer.Refusal, Citations: []domain.Citation{}})
	}

	timer := s.metrics.StageTimer("compose")
	ans, err := s.composer.Compose(ctx, answer.Request{
		ClassName: class.Name,
		Hits:      hits,
		History:   history,
		Query:     query,
	})
	timer.ObserveDuration()
	if err != nil {
		s.metrics.GatewayError("complete", "chat")
		s.metrics.ChatTurn(metrics.OutcomeError)
		return Reply{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return s.finish(ctx, class, viewerID, metrics.OutcomeGrounded, Reply{Answer: ans.Text, Citations: ans.Citations, Grounded: true})
}

// History returns the viewer's turns in class, oldest first.
func (s *Service) History(ctx context.Context, classID, viewerID uuid.UUID) ([]domain.ChatMessage, error) {
	msgs, err := s.messages.ListChatHistory(ctx, classID, viewerID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float64, error) {
	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.New("no vector returned")
	}
	return vec, nil
}

// finish persists the assistant turn and emits the turn event.
func (s *Service) finish(ctx context.Context, class domain.Class, viewerID uuid.UUID, outcome string, reply Reply) (Reply, error) {
	if reply.Citations == nil {
		reply.Citations = []domain.Citation{}
	}
	if _, err := s.messages.AppendChatMessage(ctx, domain.ChatMessage{
		ClassID:   class.ID,
		UserID:    viewerID,
		Role:      domain.RoleAssistant,
		Content:   reply.Answer,
		Citations: reply.Citations,
	}); err != nil {
		return Reply{}, fmt.Errorf("persist assistant turn: %w", err)
	}

	s.metrics.ChatTurn(outcome)
	s.logger.Info("chat turn",
		"class_id", class.ID,
		"viewer", viewerID,
		"outcome", outcome,
		"citations", len(reply.Citations),
	)

	if s.publisher != nil {
		evt := hermes.ChatTurn{
			ClassID:   class.ID.String(),
			UserID:    viewerID.String(),
			Outcome:   outcome,
			Grounded:  reply.Grounded,
			Citations: len(reply.Citations),
			Timestamp: time.Now().UTC(),
		}
		if err := s.publisher.Publish(hermes.SubjectChatTurn, evt); err != nil {
			s.logger.Warn("failed to publish chat turn", "class_id", class.ID, "error", err)
		}
	}
	return reply, nil
}
