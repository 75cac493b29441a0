package transcript

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
)

func TestChunkSegments_UnderLimit(t *testing.T) {
	segs := []domain.Segment{
		{Start: 0, End: 5, Text: "A"},
		{Start: 5, End: 9, Text: "B"},
	}

	chunks := ChunkSegments(segs, DefaultMaxChunkChars)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "A B" {
		t.Errorf("text = %q, want %q", chunks[0].Text, "A B")
	}
	if chunks[0].Start != 0 || chunks[0].End != 9 {
		t.Errorf("span = [%v,%v], want [0,9]", chunks[0].Start, chunks[0].End)
	}
}

func TestChunkSegments_Empty(t *testing.T) {
	if chunks := ChunkSegments(nil, DefaultMaxChunkChars); len(chunks) != 0 {
		t.Errorf("expected 0 chunks for nil segments, got %d", len(chunks))
	}
}

func TestChunkSegments_DropsBlankSegments(t *testing.T) {
	segs := []domain.Segment{
		{Start: 0, End: 1, Text: "   "},
		{Start: 1, End: 2, Text: " hello "},
		{Start: 2, End: 3, Text: ""},
		{Start: 3, End: 4, Text: "world"},
	}

	chunks := ChunkSegments(segs, DefaultMaxChunkChars)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "hello world" {
		t.Errorf("text = %q", chunks[0].Text)
	}
	if chunks[0].Start != 0 || chunks[0].End != 4 {
		t.Errorf("span = [%v,%v], want [0,4]", chunks[0].Start, chunks[0].End)
	}
}

func TestChunkSegments_AllBlank(t *testing.T) {
	segs := []domain.Segment{{Start: 0, End: 1, Text: " "}, {Start: 1, End: 2, Text: "\n"}}
	if chunks := ChunkSegments(segs, DefaultMaxChunkChars); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestChunkSegments_FlushesAtThreshold(t *testing.T) {
	// 10 + 1 + 10 = 21 > 20, so the second segment starts a new chunk.
	segs := []domain.Segment{
		{Start: 0, End: 1, Text: strings.Repeat("a", 10)},
		{Start: 1, End: 2, Text: strings.Repeat("b", 10)},
		{Start: 2, End: 3, Text: strings.Repeat("c", 9)},
	}

	chunks := ChunkSegments(segs, 20)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != strings.Repeat("a", 10) {
		t.Errorf("chunk 0 text = %q", chunks[0].Text)
	}
	if chunks[0].End != 1 {
		t.Errorf("chunk 0 end = %v, want 1", chunks[0].End)
	}
	// 10 + 1 + 9 = 20 is not over the threshold.
	if chunks[1].Text != strings.Repeat("b", 10)+" "+strings.Repeat("c", 9) {
		t.Errorf("chunk 1 text = %q", chunks[1].Text)
	}
	if chunks[1].Start != 1 || chunks[1].End != 3 {
		t.Errorf("chunk 1 span = [%v,%v], want [1,3]", chunks[1].Start, chunks[1].End)
	}
}

func TestChunkSegments_OversizedSegmentStandsAlone(t *testing.T) {
	big := strings.Repeat("x", 900)
	segs := []domain.Segment{
		{Start: 0, End: 1, Text: "intro"},
		{Start: 1, End: 30, Text: big},
		{Start: 30, End: 31, Text: "outro"},
	}

	chunks := ChunkSegments(segs, DefaultMaxChunkChars)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Text != big {
		t.Errorf("oversized segment was altered, len=%d", len(chunks[1].Text))
	}
	if chunks[1].Start != 1 || chunks[1].End != 30 {
		t.Errorf("oversized span = [%v,%v]", chunks[1].Start, chunks[1].End)
	}
}

func TestChunkSegments_LengthBoundAndMonotonicSpans(t *testing.T) {
	var segs []domain.Segment
	for i := 0; i < 200; i++ {
		segs = append(segs, domain.Segment{
			Start: float64(i * 3),
			End:   float64(i*3 + 3),
			Text:  strings.Repeat("w", 5+i%40),
		})
	}

	chunks := ChunkSegments(segs, DefaultMaxChunkChars)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	prevStart := -1.0
	for i, c := range chunks {
		if utf8.RuneCountInString(c.Text) > DefaultMaxChunkChars {
			t.Errorf("chunk %d has %d chars, over threshold", i, len(c.Text))
		}
		if c.Start > c.End {
			t.Errorf("chunk %d start %v > end %v", i, c.Start, c.End)
		}
		if c.Start < prevStart {
			t.Errorf("chunk %d start %v decreased from %v", i, c.Start, prevStart)
		}
		prevStart = c.Start
	}
}

func TestChunkSegments_LeadingBlankKeepsFirstStart(t *testing.T) {
	segs := []domain.Segment{
		{Start: 0, End: 2, Text: "  "},
		{Start: 2, End: 5, Text: "A"},
	}

	chunks := ChunkSegments(segs, DefaultMaxChunkChars)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "A" || chunks[0].Start != 0 || chunks[0].End != 5 {
		t.Errorf("chunk = %+v, want {A 0 5}", chunks[0])
	}
}

func TestChunkSegments_CountsCharactersNotBytes(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		maxChars   int
		wantChunks int
	}{
		// 300 + 1 + 300 = 601 characters but 1201 bytes.
		{"accented", strings.Repeat("é", 300), DefaultMaxChunkChars, 1},
		{"cjk", strings.Repeat("講", 399), DefaultMaxChunkChars, 1},
		{"cjk over limit", strings.Repeat("講", 400), DefaultMaxChunkChars, 2},
		{"tight limit", strings.Repeat("é", 10), 21, 1},
		{"just over", strings.Repeat("é", 10), 20, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := []domain.Segment{
				{Start: 0, End: 1, Text: tt.text},
				{Start: 1, End: 2, Text: tt.text},
			}
			chunks := ChunkSegments(segs, tt.maxChars)
			if len(chunks) != tt.wantChunks {
				t.Fatalf("expected %d chunks, got %d", tt.wantChunks, len(chunks))
			}
			if tt.wantChunks == 1 {
				want := 2*utf8.RuneCountInString(tt.text) + 1
				if got := utf8.RuneCountInString(chunks[0].Text); got != want {
					t.Errorf("chunk has %d characters, want %d", got, want)
				}
			}
		})
	}
}

func TestJoinText(t *testing.T) {
	segs := []domain.Segment{{Text: " one "}, {Text: ""}, {Text: "two"}}
	if got := JoinText(segs); got != "one two" {
		t.Errorf("JoinText = %q, want %q", got, "one two")
	}
}
