package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
)

// ListLecturePrefs returns the viewer's explicit preferences for the given
// lectures. Lectures without a row are absent from the map (PreferenceUnset).
func (s *Store) ListLecturePrefs(ctx context.Context, userID uuid.UUID, lectureIDs []uuid.UUID) (map[uuid.UUID]domain.Preference, error) {
	prefs := make(map[uuid.UUID]domain.Preference)
	if len(lectureIDs) == 0 {
		return prefs, nil
	}

	query, args, err := psql.Select("lecture_id", "include_in_ai_summary").
		From("lecture_user_prefs").
		Where("user_id = ?", userID).
		Where(sq.Eq{"lecture_id": lectureIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prefs query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prefs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var include bool
		if err := rows.Scan(&id, &include); err != nil {
			return nil, fmt.Errorf("scan pref: %w", err)
		}
		prefs[id] = domain.PreferenceFromBool(include)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return prefs, nil
}

// UpsertLecturePref creates or updates the viewer's override for a lecture.
func (s *Store) UpsertLecturePref(ctx context.Context, p domain.LectureUserPref) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lecture_user_prefs (lecture_id, user_id, include_in_ai_summary, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (lecture_id, user_id)
		DO UPDATE SET
			include_in_ai_summary = $3,
			updated_at = now()`,
		p.LectureID, p.UserID, p.IncludeInAISummary,
	)
	if err != nil {
		return fmt.Errorf("upsert lecture pref: %w", err)
	}
	return nil
}
