package domain

import (
	"time"

	"github.com/google/uuid"
)

// Segment is one time-stamped span of transcribed speech. Times are seconds
// on the lecture timeline.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ChunkDraft is a chunk that has not been persisted yet.
type ChunkDraft struct {
	Text  string
	Start float64
	End   float64
}

// Chunk is the unit of retrieval. A nil Vector means the chunk has not been
// embedded and is invisible to retrieval.
type Chunk struct {
	ID          uuid.UUID
	ClassID     uuid.UUID
	LectureID   uuid.UUID
	Source      string
	StartSec    float64
	EndSec      float64
	Text        string
	Vector      []float64
	LectureName string // display name joined from the lecture, may be empty
	CreatedAt   time.Time
}

// Embedded reports whether the chunk carries a usable vector.
func (c Chunk) Embedded() bool {
	return len(c.Vector) > 0
}

type LectureStatus string

const (
	StatusProcessing LectureStatus = "PROCESSING"
	StatusReady      LectureStatus = "READY"
	StatusFailed     LectureStatus = "FAILED"
)

// Lecture is one audio or text source inside a class.
type Lecture struct {
	ID              uuid.UUID
	ClassID         uuid.UUID
	UserID          uuid.UUID
	SyncKey         string // empty when the lecture is not shared
	IncludeInMemory bool
	Status          LectureStatus
	Title           string
	OriginalName    string
	Transcript      string
	Summary         string
	CreatedAt       time.Time
}

// DisplayName is the label used in prompts and citations.
func (l Lecture) DisplayName() string {
	if l.OriginalName != "" {
		return l.OriginalName
	}
	return l.Title
}

// Class is a retrieval boundary owned by one user.
type Class struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	SyncKey     string
	SyncEnabled bool
}

// Preference is a viewer's explicit choice about using a lecture for AI
// answers. PreferenceUnset defers to the lecture's IncludeInMemory flag.
type Preference int

const (
	PreferenceUnset Preference = iota
	PreferenceIncluded
	PreferenceExcluded
)

func (p Preference) String() string {
	switch p {
	case PreferenceIncluded:
		return "included"
	case PreferenceExcluded:
		return "excluded"
	default:
		return "unset"
	}
}

// PreferenceFromBool maps a stored includeInAISummary value.
func PreferenceFromBool(include bool) Preference {
	if include {
		return PreferenceIncluded
	}
	return PreferenceExcluded
}

// LectureUserPref is the persisted per-viewer override, unique per (LectureID, UserID).
type LectureUserPref struct {
	LectureID          uuid.UUID `json:"lectureId"`
	UserID             uuid.UUID `json:"userId"`
	IncludeInAISummary bool      `json:"includeInAISummary"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one append-only turn scoped to (ClassID, UserID).
type ChatMessage struct {
	ID        uuid.UUID  `json:"id"`
	ClassID   uuid.UUID  `json:"classId"`
	UserID    uuid.UUID  `json:"userId"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Span is a time range inside a lecture, in seconds.
type Span struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// Citation ties an answer back to one context entry. Idx matches the [#n]
// numbering in the prompt.
type Citation struct {
	Idx          int       `json:"idx"`
	LectureID    uuid.UUID `json:"lectureId"`
	Source       string    `json:"source"`
	Span         *Span     `json:"span,omitempty"`
	Preview      string    `json:"preview"`
	OriginalName string    `json:"originalName,omitempty"`
	Score        float64   `json:"score"`
}
