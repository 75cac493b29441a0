package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
)

var classColumns = []string{"id", "user_id", "name", "COALESCE(sync_key, '')", "sync_enabled"}

// CreateClass inserts a class. A zero ID is replaced with a new one.
func (s *Store) CreateClass(ctx context.Context, c domain.Class) (uuid.UUID, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO classes (id, user_id, name, sync_key, sync_enabled)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.Name, nullIfEmpty(c.SyncKey), c.SyncEnabled,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert class: %w", err)
	}
	return c.ID, nil
}

// GetClass fetches a class by ID.
func (s *Store) GetClass(ctx context.Context, id uuid.UUID) (*domain.Class, error) {
	query, args, err := psql.Select(classColumns...).From("classes").Where("id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build class query: %w", err)
	}

	var c domain.Class
	err = s.pool.QueryRow(ctx, query, args...).Scan(&c.ID, &c.UserID, &c.Name, &c.SyncKey, &c.SyncEnabled)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListClassesByOwner returns every class owned by userID.
func (s *Store) ListClassesByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Class, error) {
	query, args, err := psql.Select(classColumns...).
		From("classes").
		Where("user_id = ?", userID).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build classes query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	var classes []domain.Class
	for rows.Next() {
		var c domain.Class
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.SyncKey, &c.SyncEnabled); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return classes, nil
}

// UpdateClassSync sets a class's sync key and toggle, and stamps the key on
// the class's lectures so classes sharing it can see them.
func (s *Store) UpdateClassSync(ctx context.Context, id uuid.UUID, syncKey string, enabled bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE classes SET sync_key = $1, sync_enabled = $2
		WHERE id = $3`,
		nullIfEmpty(syncKey), enabled, id,
	)
	if err != nil {
		return fmt.Errorf("update class sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `UPDATE lectures SET sync_key = $1, updated_at = now() WHERE class_id = $2`, nullIfEmpty(syncKey), id); err != nil {
		return fmt.Errorf("update lecture sync keys: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
