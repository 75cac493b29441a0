package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
)

type fakeCompleter struct {
	reply string
	err   error

	calls       int
	system      string
	user        string
	temperature float64
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string, temperature float64) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	f.temperature = temperature
	return f.reply, f.err
}

func hit(text string, score float64) retrieval.Hit {
	return retrieval.Hit{
		Chunk: domain.Chunk{
			ID:          uuid.New(),
			LectureID:   uuid.New(),
			Source:      "audio",
			StartSec:    65,
			EndSec:      130,
			Text:        text,
			LectureName: "week3.m4a",
		},
		Score: score,
	}
}

func TestCompose_GroundedAnswer(t *testing.T) {
	fc := &fakeCompleter{reply: "F=ma [#1]"}
	c := New(fc, 0)

	h := hit("Newton's second law states F=ma", 0.95)
	ans, err := c.Compose(context.Background(), Request{
		ClassName: "Physics 101",
		Hits:      []retrieval.Hit{h},
		Query:     "  what is newton's second law?  ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ans.Text != "F=ma [#1]" {
		t.Errorf("expected verbatim completion, got %q", ans.Text)
	}
	if fc.calls != 1 {
		t.Errorf("expected exactly one completion call, got %d", fc.calls)
	}
	if fc.temperature != Temperature {
		t.Errorf("expected temperature %v, got %v", Temperature, fc.temperature)
	}
	if len(ans.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(ans.Citations))
	}

	cit := ans.Citations[0]
	if cit.Idx != 1 {
		t.Errorf("expected idx 1, got %d", cit.Idx)
	}
	if cit.Preview != "Newton's second law states F=ma" {
		t.Errorf("expected unclipped preview, got %q", cit.Preview)
	}
	if cit.Score != 0.95 {
		t.Errorf("expected score 0.95, got %v", cit.Score)
	}
	if cit.LectureID != h.Chunk.LectureID || cit.Source != "audio" || cit.OriginalName != "week3.m4a" {
		t.Errorf("unexpected citation %+v", cit)
	}
	if cit.Span == nil || cit.Span.StartSec != 65 || cit.Span.EndSec != 130 {
		t.Errorf("unexpected span %+v", cit.Span)
	}
}

func TestCompose_PromptContents(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	c := New(fc, 2)

	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "oldest question"},
		{Role: domain.RoleAssistant, Content: "oldest answer"},
		{Role: domain.RoleUser, Content: "recent question"},
		{Role: domain.RoleAssistant, Content: "recent answer"},
	}
	_, err := c.Compose(context.Background(), Request{
		ClassName: "Physics 101",
		Hits:      []retrieval.Hit{hit("first chunk", 0.9), hit("second chunk", 0.5)},
		History:   history,
		Query:     "next?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{`"Physics 101"`, Refusal, "[#1]"} {
		if !strings.Contains(fc.system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	for _, want := range []string{
		"[#1] source: audio | lecture: week3.m4a | time: 1:05-2:10 | score: 0.900\nfirst chunk",
		"[#2] source: audio",
		"User: recent question\nAssistant: recent answer\n",
		"Question: next?",
	} {
		if !strings.Contains(fc.user, want) {
			t.Errorf("user prompt missing %q\n%s", want, fc.user)
		}
	}
	if strings.Contains(fc.user, "oldest") {
		t.Error("history outside the tail should not be in the prompt")
	}
}

func TestCompose_EmptyCompletionBecomesRefusal(t *testing.T) {
	fc := &fakeCompleter{reply: "  \n"}
	ans, err := New(fc, 0).Compose(context.Background(), Request{Hits: []retrieval.Hit{hit("x", 0.5)}, Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != Refusal {
		t.Errorf("expected refusal, got %q", ans.Text)
	}
	if len(ans.Citations) != 1 {
		t.Errorf("citations should still mirror hits, got %d", len(ans.Citations))
	}
}

func TestCompose_CompletionError(t *testing.T) {
	upstream := errors.New("overloaded")
	_, err := New(&fakeCompleter{err: upstream}, 0).Compose(context.Background(), Request{Query: "q"})
	if !errors.Is(err, upstream) {
		t.Errorf("expected wrapped completion error, got %v", err)
	}
}

func TestCitations_OrderAndNumbering(t *testing.T) {
	hits := []retrieval.Hit{hit("a", 0.9), hit("b", 0.8), hit("c", 0.7)}
	cits := Citations(hits)
	if len(cits) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(cits))
	}
	for i, c := range cits {
		if c.Idx != i+1 || c.LectureID != hits[i].Chunk.LectureID || c.Score != hits[i].Score {
			t.Errorf("citation %d does not match hit: %+v", i, c)
		}
	}
}

func TestCitations_NoSpanWithoutTiming(t *testing.T) {
	h := hit("pasted notes", 0.4)
	h.Chunk.StartSec, h.Chunk.EndSec = 0, 0
	if c := Citations([]retrieval.Hit{h}); c[0].Span != nil {
		t.Errorf("expected nil span, got %+v", c[0].Span)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", 400)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short unchanged", "Newton's second law states F=ma", "Newton's second law states F=ma"},
		{"whitespace collapsed", "  a\n\tb   c ", "a b c"},
		{"exactly at limit", strings.Repeat("x", PreviewMaxRunes), strings.Repeat("x", PreviewMaxRunes)},
		{"clipped with ellipsis", long, strings.Repeat("é", PreviewMaxRunes-1) + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Preview(tt.in)
			if got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
			if n := utf8.RuneCountInString(got); n > PreviewMaxRunes {
				t.Errorf("preview has %d runes, want <= %d", n, PreviewMaxRunes)
			}
		})
	}
}

func TestClock(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "0:00"},
		{65.7, "1:05"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.sec), func(t *testing.T) {
			if got := clock(tt.sec); got != tt.want {
				t.Errorf("clock(%v) = %q, want %q", tt.sec, got, tt.want)
			}
		})
	}
}
