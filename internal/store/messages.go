package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/domain"
)

// AppendChatMessage writes one turn. Citations are stored as a JSON array,
// never null.
func (s *Store) AppendChatMessage(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Citations == nil {
		m.Citations = []domain.Citation{}
	}
	citations, err := json.Marshal(m.Citations)
	if err != nil {
		return m, fmt.Errorf("marshal citations: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (id, class_id, user_id, role, content, citations)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		m.ID, m.ClassID, m.UserID, string(m.Role), m.Content, citations,
	).Scan(&m.CreatedAt)
	if err != nil {
		return m, fmt.Errorf("insert chat message: %w", err)
	}
	return m, nil
}

// ListChatHistory returns the most recent limit turns for (classID, userID)
// in chronological order.
func (s *Store) ListChatHistory(ctx context.Context, classID, userID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, class_id, user_id, role, content, citations, created_at
		FROM (
			SELECT * FROM chat_messages
			WHERE class_id = $1 AND user_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at`,
		classID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var role string
		var citations []byte
		if err := rows.Scan(&m.ID, &m.ClassID, &m.UserID, &role, &m.Content, &citations, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Role = domain.Role(role)
		if err := json.Unmarshal(citations, &m.Citations); err != nil {
			return nil, fmt.Errorf("parse citations: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return msgs, nil
}
