package hermes

import (
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
)

const (
	// SubjectTranscriptFinalized carries a finished transcript from the
	// transcription service.
	SubjectTranscriptFinalized = "scribe.lecture.transcript.finalized"
	SubjectLectureIndexed      = "scribe.lecture.indexed"
	SubjectChatTurn            = "scribe.chat.turn"

	QueueProcessors = "scribe-processors"
)

type TranscriptFinalized struct {
	LectureID string           `json:"lecture_id"`
	Source    string           `json:"source"`
	Segments  []domain.Segment `json:"segments"`
}

// LectureIndexed is emitted once a lecture has been chunked, embedded and
// summarized. Pending counts chunks still waiting for a vector.
type LectureIndexed struct {
	LectureID string    `json:"lecture_id"`
	ClassID   string    `json:"class_id"`
	Status    string    `json:"status"`
	Chunks    int       `json:"chunks"`
	Embedded  int       `json:"embedded"`
	Pending   int       `json:"pending"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatTurn struct {
	ClassID   string    `json:"class_id"`
	UserID    string    `json:"user_id"`
	Outcome   string    `json:"outcome"`
	Grounded  bool      `json:"grounded"`
	Citations int       `json:"citations"`
	Timestamp time.Time `json:"timestamp"`
}
