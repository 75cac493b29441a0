package answer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
)

const (
	DefaultHistoryTail = 12
	PreviewMaxRunes    = 280
	Temperature        = 0.2
)

type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float64) (string, error)
}

type Request struct {
	ClassName string
	Hits      []retrieval.Hit
	History   []domain.ChatMessage // chronological
	Query     string
}

type Answer struct {
	Text      string
	Citations []domain.Citation
}

type Composer struct {
	completer   Completer
	historyTail int
}

func New(c Completer, historyTail int) *Composer {
	if historyTail <= 0 {
		historyTail = DefaultHistoryTail
	}
	return &Composer{completer: c, historyTail: historyTail}
}

// Compose makes exactly one completion call. The completion text is returned
// as is; an empty completion becomes Refusal. Citations mirror req.Hits.
func (c *Composer) Compose(ctx context.Context, req Request) (Answer, error) {
	system := fmt.Sprintf(systemPromptTemplate, req.ClassName)
	user := fmt.Sprintf(userPromptTemplate,
		renderContext(req.Hits),
		renderHistory(req.History, c.historyTail),
		strings.TrimSpace(req.Query),
	)

	text, err := c.completer.Complete(ctx, system, user, Temperature)
	if err != nil {
		return Answer{}, fmt.Errorf("complete: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		text = Refusal
	}
	return Answer{Text: text, Citations: Citations(req.Hits)}, nil
}

// Citations maps hits to citations 1:1, numbered from 1 in hit order.
func Citations(hits []retrieval.Hit) []domain.Citation {
	return lo.Map(hits, func(h retrieval.Hit, i int) domain.Citation {
		return domain.Citation{
			Idx:          i + 1,
			LectureID:    h.Chunk.LectureID,
			Source:       h.Chunk.Source,
			Span:         span(h.Chunk),
			Preview:      Preview(h.Chunk.Text),
			OriginalName: h.Chunk.LectureName,
			Score:        h.Score,
		}
	})
}

// Preview collapses whitespace and clips to PreviewMaxRunes, ending with an
// ellipsis when clipped.
func Preview(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(s) <= PreviewMaxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:PreviewMaxRunes-1]), " ") + "…"
}

// span is nil for chunks without timing, e.g. pasted text sources.
func span(c domain.Chunk) *domain.Span {
	if c.StartSec == 0 && c.EndSec == 0 {
		return nil
	}
	return &domain.Span{StartSec: c.StartSec, EndSec: c.EndSec}
}

func renderContext(hits []retrieval.Hit) string {
	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "[#%d] source: %s", i+1, lo.Ternary(h.Chunk.Source != "", h.Chunk.Source, "lecture"))
		if h.Chunk.LectureName != "" {
			fmt.Fprintf(&sb, " | lecture: %s", h.Chunk.LectureName)
		}
		if sp := span(h.Chunk); sp != nil {
			fmt.Fprintf(&sb, " | time: %s-%s", clock(sp.StartSec), clock(sp.EndSec))
		}
		fmt.Fprintf(&sb, " | score: %.3f\n%s\n\n", h.Score, h.Chunk.Text)
	}
	return sb.String()
}

func renderHistory(history []domain.ChatMessage, tail int) string {
	if len(history) > tail {
		history = history[len(history)-tail:]
	}
	if len(history) == 0 {
		return noHistory
	}
	var sb strings.Builder
	for _, m := range history {
		label := "User"
		if m.Role == domain.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, m.Content)
	}
	return sb.String()
}

// clock formats seconds as m:ss, or h:mm:ss past the hour.
func clock(sec float64) string {
	total := int(sec)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
