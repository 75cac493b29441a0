package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
)

var lectureColumns = []string{
	"id", "class_id", "user_id", "COALESCE(sync_key, '')", "include_in_memory",
	"status", "title", "original_name", "transcript", "summary", "created_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLecture(row rowScanner) (domain.Lecture, error) {
	var l domain.Lecture
	var status string
	err := row.Scan(&l.ID, &l.ClassID, &l.UserID, &l.SyncKey, &l.IncludeInMemory,
		&status, &l.Title, &l.OriginalName, &l.Transcript, &l.Summary, &l.CreatedAt)
	l.Status = domain.LectureStatus(status)
	return l, err
}

// CreateLecture inserts a lecture in PROCESSING state unless a status is set.
func (s *Store) CreateLecture(ctx context.Context, l domain.Lecture) (uuid.UUID, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = domain.StatusProcessing
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lectures (id, class_id, user_id, sync_key, include_in_memory, status, title, original_name, transcript, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.ClassID, l.UserID, nullIfEmpty(l.SyncKey), l.IncludeInMemory,
		string(l.Status), l.Title, l.OriginalName, l.Transcript, l.Summary,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert lecture: %w", err)
	}
	return l.ID, nil
}

// GetLecture fetches a lecture by ID.
func (s *Store) GetLecture(ctx context.Context, id uuid.UUID) (*domain.Lecture, error) {
	query, args, err := psql.Select(lectureColumns...).From("lectures").Where("id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lecture query: %w", err)
	}

	l, err := scanLecture(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// ListVisibleLectures returns lectures whose class is in classIDs or whose
// sync key is in syncKeys. Empty inputs match nothing on that side.
func (s *Store) ListVisibleLectures(ctx context.Context, classIDs []uuid.UUID, syncKeys []string) ([]domain.Lecture, error) {
	query, args, err := psql.Select(lectureColumns...).
		From("lectures").
		Where(sq.Or{
			sq.Eq{"class_id": classIDs},
			sq.Eq{"sync_key": syncKeys},
		}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build visible lectures query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query visible lectures: %w", err)
	}
	defer rows.Close()

	var lectures []domain.Lecture
	for rows.Next() {
		l, err := scanLecture(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lecture: %w", err)
		}
		lectures = append(lectures, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return lectures, nil
}

// SaveTranscript stores the finalized transcript text.
func (s *Store) SaveTranscript(ctx context.Context, id uuid.UUID, text string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE lectures SET transcript = $1, updated_at = now()
		WHERE id = $2`,
		text, id,
	)
	if err != nil {
		return fmt.Errorf("update transcript: %w", err)
	}
	return nil
}

// UpdateLectureOutcome sets the lecture's status and, when non-empty, its summary.
func (s *Store) UpdateLectureOutcome(ctx context.Context, id uuid.UUID, status domain.LectureStatus, summary string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE lectures
		SET status = $1,
			summary = CASE WHEN $2 = '' THEN summary ELSE $2 END,
			updated_at = now()
		WHERE id = $3`,
		string(status), summary, id,
	)
	if err != nil {
		return fmt.Errorf("update lecture outcome: %w", err)
	}
	return nil
}

// DeleteLecture removes a lecture with its chunks and viewer preferences.
func (s *Store) DeleteLecture(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM lecture_chunks WHERE lecture_id = $1`, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM lecture_user_prefs WHERE lecture_id = $1`, id); err != nil {
		return fmt.Errorf("delete prefs: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM lectures WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lecture: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
