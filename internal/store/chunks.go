package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
)

var chunkColumns = []string{
	"c.id", "c.class_id", "c.lecture_id", "c.source", "c.start_sec", "c.end_sec",
	"c.text", "c.embedding", "COALESCE(NULLIF(l.original_name, ''), l.title, '')", "c.created_at",
}

func scanChunk(row rowScanner) (domain.Chunk, error) {
	var c domain.Chunk
	var embedding string
	err := row.Scan(&c.ID, &c.ClassID, &c.LectureID, &c.Source, &c.StartSec, &c.EndSec,
		&c.Text, &embedding, &c.LectureName, &c.CreatedAt)
	c.Vector = decodeVector(embedding)
	return c, err
}

func (s *Store) queryChunks(ctx context.Context, q sq.SelectBuilder) ([]domain.Chunk, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build chunks query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return chunks, nil
}

func selectChunks() sq.SelectBuilder {
	return psql.Select(chunkColumns...).
		From("lecture_chunks c").
		Join("lectures l ON l.id = c.lecture_id")
}

// recentFirst orders chunks newest first. created_at comes from
// clock_timestamp(), so chunks inserted in one transaction still differ; the
// trailing keys make ties deterministic.
var recentFirst = []string{"c.created_at DESC", "c.start_sec DESC", "c.id"}

// ReplaceLectureChunks deletes the lecture's existing chunks and inserts the
// drafts without vectors, in one transaction. Returned chunks keep draft order.
func (s *Store) ReplaceLectureChunks(ctx context.Context, lecture domain.Lecture, source string, drafts []domain.ChunkDraft) ([]domain.Chunk, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM lecture_chunks WHERE lecture_id = $1`, lecture.ID); err != nil {
		return nil, fmt.Errorf("delete old chunks: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(drafts))
	for _, d := range drafts {
		c := domain.Chunk{
			ID:          uuid.New(),
			ClassID:     lecture.ClassID,
			LectureID:   lecture.ID,
			Source:      source,
			StartSec:    d.Start,
			EndSec:      d.End,
			Text:        d.Text,
			LectureName: lecture.DisplayName(),
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO lecture_chunks (id, class_id, lecture_id, source, start_sec, end_sec, text, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, '', clock_timestamp())
			RETURNING created_at`,
			c.ID, c.ClassID, c.LectureID, c.Source, c.StartSec, c.EndSec, c.Text,
		).Scan(&c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
		chunks = append(chunks, c)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return chunks, nil
}

// SetChunkVector attaches or replaces a chunk's vector.
func (s *Store) SetChunkVector(ctx context.Context, chunkID uuid.UUID, v []float64) error {
	_, err := s.pool.Exec(ctx, `UPDATE lecture_chunks SET embedding = $1 WHERE id = $2`, encodeVector(v), chunkID)
	if err != nil {
		return fmt.Errorf("update chunk embedding: %w", err)
	}
	return nil
}

// ListChunksMissingVectors returns a class's vector-less chunks, most recent first.
func (s *Store) ListChunksMissingVectors(ctx context.Context, classID uuid.UUID, limit int) ([]domain.Chunk, error) {
	q := selectChunks().
		Where("c.class_id = ?", classID).
		Where("c.embedding = ''").
		OrderBy(recentFirst...).
		Limit(uint64(limit))
	return s.queryChunks(ctx, q)
}

// ListEmbeddedChunks returns up to limit chunks of the given lectures that
// carry a stored vector, most recent first. Chunks whose stored vector fails
// to parse come back with a nil Vector.
func (s *Store) ListEmbeddedChunks(ctx context.Context, lectureIDs []uuid.UUID, limit int) ([]domain.Chunk, error) {
	if len(lectureIDs) == 0 {
		return nil, nil
	}
	q := selectChunks().
		Where(sq.Eq{"c.lecture_id": lectureIDs}).
		Where("c.embedding <> ''").
		OrderBy(recentFirst...).
		Limit(uint64(limit))
	return s.queryChunks(ctx, q)
}

// ListLectureChunks returns all chunks of a lecture in timeline order.
func (s *Store) ListLectureChunks(ctx context.Context, lectureID uuid.UUID) ([]domain.Chunk, error) {
	q := selectChunks().
		Where("c.lecture_id = ?", lectureID).
		OrderBy("c.start_sec", "c.created_at", "c.id")
	return s.queryChunks(ctx, q)
}
