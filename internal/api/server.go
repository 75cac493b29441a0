package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/chat"
	"github.com/MikeSquared-Agency/scribe/internal/domain"
	"github.com/MikeSquared-Agency/scribe/internal/index"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/scope"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

type Store interface {
	GetClass(ctx context.Context, id uuid.UUID) (*domain.Class, error)
	UpdateClassSync(ctx context.Context, id uuid.UUID, syncKey string, enabled bool) error
	GetLecture(ctx context.Context, id uuid.UUID) (*domain.Lecture, error)
	UpsertLecturePref(ctx context.Context, p domain.LectureUserPref) error
	ListLectureChunks(ctx context.Context, lectureID uuid.UUID) ([]domain.Chunk, error)
	DeleteLecture(ctx context.Context, id uuid.UUID) error
}

type ChatService interface {
	Ask(ctx context.Context, viewerID uuid.UUID, class domain.Class, message string) (chat.Reply, error)
	History(ctx context.Context, classID, viewerID uuid.UUID) ([]domain.ChatMessage, error)
}

type Finalizer interface {
	Finalize(ctx context.Context, lectureID uuid.UUID, segments []domain.Segment, source string) (*processor.Outcome, error)
}

type Backfiller interface {
	Backfill(ctx context.Context, classID uuid.UUID, limit int) (index.Result, error)
}

type Deps struct {
	Store         Store
	Chat          ChatService
	Finalizer     Finalizer
	Backfiller    Backfiller
	Metrics       *metrics.Metrics
	APIToken      string
	BackfillLimit int
	Logger        *slog.Logger
}

type Server struct {
	router        *chi.Mux
	http          *http.Server
	store         Store
	chat          ChatService
	finalizer     Finalizer
	backfiller    Backfiller
	backfillLimit int
	logger        *slog.Logger
}

func NewServer(port int, d Deps) *Server {
	if d.BackfillLimit <= 0 {
		d.BackfillLimit = index.DefaultBackfillLimit
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:        router,
		store:         d.Store,
		chat:          d.Chat,
		finalizer:     d.Finalizer,
		backfiller:    d.Backfiller,
		backfillLimit: d.BackfillLimit,
		logger:        d.Logger,
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)
	router.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(d.APIToken))
		r.Use(ViewerMiddleware)

		r.Route("/classes/{classID}", func(r chi.Router) {
			r.Post("/chat", s.askChat)
			r.Get("/chat", s.chatHistory)
			r.Post("/backfill", s.backfill)
			r.Put("/sync", s.setClassSync)
		})
		r.Route("/lectures/{lectureID}", func(r chi.Router) {
			r.Put("/preference", s.setPreference)
			r.Post("/transcript", s.finalizeTranscript)
			r.Get("/chunks", s.listChunks)
			r.Delete("/", s.deleteLecture)
		})
	})

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Message string `json:"message"`
}

// askChat handles POST /api/v1/classes/{classID}/chat
func (s *Server) askChat(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	class, ok := s.ownedClass(w, r, viewer)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	reply, err := s.chat.Ask(r.Context(), viewer, *class, req.Message)
	if err != nil {
		s.fail(w, "chat turn failed", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// chatHistory handles GET /api/v1/classes/{classID}/chat
func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	class, ok := s.ownedClass(w, r, viewer)
	if !ok {
		return
	}

	msgs, err := s.chat.History(r.Context(), class.ID, viewer)
	if err != nil {
		s.fail(w, "load history failed", err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// backfill handles POST /api/v1/classes/{classID}/backfill?limit=N
func (s *Server) backfill(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	class, ok := s.ownedClass(w, r, viewer)
	if !ok {
		return
	}

	limit := s.backfillLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := parsePositive(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %v", err))
			return
		}
		limit = n
	}

	res, err := s.backfiller.Backfill(r.Context(), class.ID, limit)
	if err != nil {
		s.fail(w, "backfill failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type syncRequest struct {
	SyncKey     string `json:"syncKey"`
	SyncEnabled bool   `json:"syncEnabled"`
}

// setClassSync handles PUT /api/v1/classes/{classID}/sync
func (s *Server) setClassSync(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	class, ok := s.ownedClass(w, r, viewer)
	if !ok {
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	req.SyncKey = strings.TrimSpace(req.SyncKey)

	if err := s.store.UpdateClassSync(r.Context(), class.ID, req.SyncKey, req.SyncEnabled); err != nil {
		s.fail(w, "update class sync failed", err)
		return
	}
	class.SyncKey, class.SyncEnabled = req.SyncKey, req.SyncEnabled
	writeJSON(w, http.StatusOK, map[string]any{
		"classId":     class.ID,
		"syncKey":     class.SyncKey,
		"syncEnabled": class.SyncEnabled,
	})
}

type preferenceRequest struct {
	IncludeInAISummary *bool `json:"includeInAISummary"`
}

// setPreference handles PUT /api/v1/lectures/{lectureID}/preference
func (s *Server) setPreference(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	lecture, ok := s.lecture(w, r)
	if !ok {
		return
	}

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.IncludeInAISummary == nil {
		writeError(w, http.StatusBadRequest, "includeInAISummary is required")
		return
	}

	pref := domain.LectureUserPref{
		LectureID:          lecture.ID,
		UserID:             viewer,
		IncludeInAISummary: *req.IncludeInAISummary,
	}
	if err := s.store.UpsertLecturePref(r.Context(), pref); err != nil {
		s.fail(w, "save preference failed", err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

type transcriptRequest struct {
	Source   string           `json:"source"`
	Segments []domain.Segment `json:"segments"`
}

// finalizeTranscript handles POST /api/v1/lectures/{lectureID}/transcript
func (s *Server) finalizeTranscript(w http.ResponseWriter, r *http.Request) {
	lecture, ok := s.ownedLecture(w, r)
	if !ok {
		return
	}

	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Source == "" {
		req.Source = "audio"
	}

	out, err := s.finalizer.Finalize(r.Context(), lecture.ID, req.Segments, req.Source)
	if err != nil {
		s.fail(w, "finalize failed", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type chunkView struct {
	ID       uuid.UUID `json:"id"`
	Source   string    `json:"source"`
	StartSec float64   `json:"startSec"`
	EndSec   float64   `json:"endSec"`
	Text     string    `json:"text"`
	Embedded bool      `json:"embedded"`
}

// listChunks handles GET /api/v1/lectures/{lectureID}/chunks
func (s *Server) listChunks(w http.ResponseWriter, r *http.Request) {
	lecture, ok := s.ownedLecture(w, r)
	if !ok {
		return
	}

	chunks, err := s.store.ListLectureChunks(r.Context(), lecture.ID)
	if err != nil {
		s.fail(w, "list chunks failed", err)
		return
	}

	views := make([]chunkView, 0, len(chunks))
	for _, c := range chunks {
		views = append(views, chunkView{
			ID:       c.ID,
			Source:   c.Source,
			StartSec: c.StartSec,
			EndSec:   c.EndSec,
			Text:     c.Text,
			Embedded: c.Embedded(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": views, "count": len(views)})
}

// deleteLecture handles DELETE /api/v1/lectures/{lectureID}
func (s *Server) deleteLecture(w http.ResponseWriter, r *http.Request) {
	lecture, ok := s.ownedLecture(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteLecture(r.Context(), lecture.ID); err != nil {
		s.fail(w, "delete lecture failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedClass loads the class in the URL and answers 404 unless viewer owns it.
func (s *Server) ownedClass(w http.ResponseWriter, r *http.Request, viewer uuid.UUID) (*domain.Class, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "classID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid class id")
		return nil, false
	}
	class, err := s.store.GetClass(r.Context(), id)
	if err != nil {
		s.fail(w, "load class failed", err)
		return nil, false
	}
	if class.UserID != viewer {
		writeError(w, http.StatusNotFound, "class not found")
		return nil, false
	}
	return class, true
}

func (s *Server) lecture(w http.ResponseWriter, r *http.Request) (*domain.Lecture, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "lectureID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lecture id")
		return nil, false
	}
	lecture, err := s.store.GetLecture(r.Context(), id)
	if err != nil {
		s.fail(w, "load lecture failed", err)
		return nil, false
	}
	return lecture, true
}

func (s *Server) ownedLecture(w http.ResponseWriter, r *http.Request) (*domain.Lecture, bool) {
	lecture, ok := s.lecture(w, r)
	if !ok {
		return nil, false
	}
	if lecture.UserID != viewerFrom(r.Context()) {
		writeError(w, http.StatusNotFound, "lecture not found")
		return nil, false
	}
	return lecture, true
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "message must not be blank")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, scope.ErrClassNotOwned):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrUpstream):
		s.logger.Error(msg, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, processor.ErrInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parsePositive(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
