package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// MaxTranscriptRunes bounds the transcript text sent for summarization.
const MaxTranscriptRunes = 60000

const temperature = 0.3

// ErrEmptySummary is returned when the model produced no usable notes.
var ErrEmptySummary = errors.New("empty summary")

type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float64) (string, error)
}

type Summary struct {
	Title     string   `json:"title"`
	Overview  string   `json:"overview"`
	KeyPoints []string `json:"key_points"`
}

// Markdown renders the summary as stored on the lecture.
func (s Summary) Markdown() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(s.Overview))
	points := 0
	for _, p := range s.KeyPoints {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if points == 0 {
			sb.WriteString("\n\nKey points:\n")
		}
		sb.WriteString("- " + p + "\n")
		points++
	}
	return strings.TrimSpace(sb.String())
}

type Summarizer struct {
	llm    Completer
	logger *slog.Logger
}

func New(llm Completer, logger *slog.Logger) *Summarizer {
	return &Summarizer{llm: llm, logger: logger}
}

// Summarize asks the completion gateway for structured lecture notes.
func (s *Summarizer) Summarize(ctx context.Context, lectureName, className, transcript string) (*Summary, error) {
	text := clip(strings.TrimSpace(transcript), MaxTranscriptRunes)
	if text == "" {
		return nil, ErrEmptySummary
	}

	s.logger.Info("summarizing lecture",
		"lecture", lectureName,
		"transcript_len", len(text),
	)

	raw, err := s.llm.Complete(ctx, systemPrompt, fmt.Sprintf(userPrompt, lectureName, className, text), temperature)
	if err != nil {
		return nil, fmt.Errorf("llm summary: %w", err)
	}

	var out Summary
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		s.logger.Error("failed to parse summary response",
			"error", err,
			"raw", raw,
		)
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	if strings.TrimSpace(out.Overview) == "" && len(out.KeyPoints) == 0 {
		return nil, ErrEmptySummary
	}

	s.logger.Info("summary complete",
		"lecture", lectureName,
		"key_points", len(out.KeyPoints),
	)
	return &out, nil
}

// stripFences removes a surrounding ```json fence some models add.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
