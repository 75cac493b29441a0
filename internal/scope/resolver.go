package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
)

// ErrClassNotOwned is returned when the viewer asks about a class they do not own.
var ErrClassNotOwned = errors.New("class not owned by viewer")

// Directory is the read side of persistence the resolver needs.
type Directory interface {
	ListClassesByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Class, error)
	ListVisibleLectures(ctx context.Context, classIDs []uuid.UUID, syncKeys []string) ([]domain.Lecture, error)
	ListLecturePrefs(ctx context.Context, userID uuid.UUID, lectureIDs []uuid.UUID) (map[uuid.UUID]domain.Preference, error)
}

// Scope is what a viewer may retrieve from. Visible is everything the viewer
// can see; Eligible is the subset usable for AI answers.
type Scope struct {
	Visible  []domain.Lecture
	Eligible []uuid.UUID
	OptedOut int // visible lectures the viewer explicitly excluded
}

func (s Scope) Empty() bool {
	return len(s.Eligible) == 0
}

// ExcludedByPreference reports an empty scope where the viewer's own
// opt-outs removed at least one visible lecture. Lectures that are merely
// off by default do not count.
func (s Scope) ExcludedByPreference() bool {
	return s.Empty() && s.OptedOut > 0
}

// Eligible decides whether a visible lecture may be used for retrieval.
// An explicit viewer preference always wins; without one the lecture's own
// IncludeInMemory flag decides.
func Eligible(pref domain.Preference, includeInMemory bool) bool {
	switch pref {
	case domain.PreferenceIncluded:
		return true
	case domain.PreferenceExcluded:
		return false
	default:
		return includeInMemory
	}
}

type Resolver struct {
	dir    Directory
	logger *slog.Logger
}

func NewResolver(dir Directory, logger *slog.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger}
}

// Resolve computes the viewer's scope. Visibility covers lectures in any class
// the viewer owns plus lectures carrying one of those classes' sync keys.
func (r *Resolver) Resolve(ctx context.Context, viewerID uuid.UUID, class domain.Class) (Scope, error) {
	if class.UserID != viewerID {
		return Scope{}, ErrClassNotOwned
	}

	classes, err := r.dir.ListClassesByOwner(ctx, viewerID)
	if err != nil {
		return Scope{}, fmt.Errorf("list viewer classes: %w", err)
	}
	classIDs := lo.Map(classes, func(c domain.Class, _ int) uuid.UUID { return c.ID })
	if !lo.Contains(classIDs, class.ID) {
		classIDs = append(classIDs, class.ID)
	}
	syncKeys := lo.Uniq(lo.FilterMap(classes, func(c domain.Class, _ int) (string, bool) {
		key := strings.TrimSpace(c.SyncKey)
		return key, key != ""
	}))

	lectures, err := r.dir.ListVisibleLectures(ctx, classIDs, syncKeys)
	if err != nil {
		return Scope{}, fmt.Errorf("list visible lectures: %w", err)
	}
	lectures = lo.UniqBy(lectures, func(l domain.Lecture) uuid.UUID { return l.ID })

	if len(lectures) == 0 {
		return Scope{}, nil
	}

	lectureIDs := lo.Map(lectures, func(l domain.Lecture, _ int) uuid.UUID { return l.ID })
	prefs, err := r.dir.ListLecturePrefs(ctx, viewerID, lectureIDs)
	if err != nil {
		return Scope{}, fmt.Errorf("list lecture prefs: %w", err)
	}

	eligible := lo.FilterMap(lectures, func(l domain.Lecture, _ int) (uuid.UUID, bool) {
		return l.ID, Eligible(prefs[l.ID], l.IncludeInMemory)
	})

	optedOut := lo.CountBy(lectures, func(l domain.Lecture) bool {
		return prefs[l.ID] == domain.PreferenceExcluded
	})

	r.logger.Debug("scope resolved",
		"viewer", viewerID,
		"class_id", class.ID,
		"classes", len(classIDs),
		"sync_keys", len(syncKeys),
		"visible", len(lectures),
		"eligible", len(eligible),
		"opted_out", optedOut,
	)
	return Scope{Visible: lectures, Eligible: eligible, OptedOut: optedOut}, nil
}
