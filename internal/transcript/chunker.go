package transcript

import (
	"strings"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
)

// DefaultMaxChunkChars is the flush threshold for a chunk's text buffer.
const DefaultMaxChunkChars = 800

// ChunkSegments groups ordered transcript segments into text chunks.
// Segments from stitched audio parts must already be offset onto one timeline.
//
// A buffer is flushed when appending the next segment (joined by a single
// space) would push it past maxChars characters. A single segment longer than
// maxChars becomes its own chunk and is never split. The first chunk starts at
// the first segment's start even when that segment is blank; later chunks
// start at the segment that caused the flush.
func ChunkSegments(segments []domain.Segment, maxChars int) []domain.ChunkDraft {
	if len(segments) == 0 {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	var (
		chunks []domain.ChunkDraft
		buf    strings.Builder
		runes  int
	)
	start := segments[0].Start
	end := segments[0].Start

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		n := utf8.RuneCountInString(text)
		if runes > 0 && runes+1+n > maxChars {
			chunks = append(chunks, buildChunk(buf.String(), start, end))
			buf.Reset()
			runes = 0
			start = seg.Start
		}
		if runes > 0 {
			buf.WriteByte(' ')
			runes++
		}
		buf.WriteString(text)
		runes += n
		end = seg.End
	}

	// Flush remaining.
	if strings.TrimSpace(buf.String()) != "" {
		chunks = append(chunks, buildChunk(buf.String(), start, end))
	}

	return chunks
}

func buildChunk(text string, start, end float64) domain.ChunkDraft {
	return domain.ChunkDraft{
		Text:  strings.TrimSpace(text),
		Start: start,
		End:   end,
	}
}

// JoinText renders segments as the plain transcript text stored on a lecture.
func JoinText(segments []domain.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
