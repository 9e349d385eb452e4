package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostreel/viewlens/internal/models"
)

// PostgresEventStore implements EventStore using PostgreSQL.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a new PostgreSQL-backed event store.
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// SaveEvent appends a playback event.
func (s *PostgresEventStore) SaveEvent(ctx context.Context, e *models.PlaybackEvent) error {
	if e == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO playback_events
			(id, video_id, organization_id, user_id, session_id, client_id,
			 event_type, current_time_s, duration_s, ip, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.VideoID, nullString(e.OrganizationID), nullString(e.UserID),
		nullString(e.SessionID), nullString(e.ClientID), e.EventType,
		e.CurrentTime, e.Duration, nullString(e.IP), nullString(e.UserAgent), e.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to save playback event: %w", err)
	}
	return nil
}

// ListEvents returns events matching the filter in insertion order.
// Nil range bounds are omitted from the query entirely.
func (s *PostgresEventStore) ListEvents(ctx context.Context, filter EventFilter) ([]*models.PlaybackEvent, error) {
	query := `
		SELECT id, video_id, organization_id, user_id, session_id, client_id,
		       event_type, current_time_s, duration_s, ip, user_agent, timestamp
		FROM playback_events`

	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if filter.VideoID != "" {
		args = append(args, filter.VideoID)
		conds = append(conds, fmt.Sprintf("video_id = $%d", len(args)))
	}
	if len(filter.EventTypes) > 0 {
		args = append(args, filter.EventTypes)
		conds = append(conds, fmt.Sprintf("event_type = ANY($%d)", len(args)))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		conds = append(conds, fmt.Sprintf("timestamp <= $%d", len(args)))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback events: %w", err)
	}
	defer rows.Close()

	var events []*models.PlaybackEvent
	for rows.Next() {
		var e models.PlaybackEvent
		var orgID, userID, sessionID, clientID, ip, ua *string

		if err := rows.Scan(&e.ID, &e.VideoID, &orgID, &userID, &sessionID, &clientID,
			&e.EventType, &e.CurrentTime, &e.Duration, &ip, &ua, &e.Timestamp); err != nil {
			return nil, err
		}

		e.OrganizationID = deref(orgID)
		e.UserID = deref(userID)
		e.SessionID = deref(sessionID)
		e.ClientID = deref(clientID)
		e.IP = deref(ip)
		e.UserAgent = deref(ua)

		events = append(events, &e)
	}
	return events, rows.Err()
}

// HasEvents reports whether any events exist for the video.
func (s *PostgresEventStore) HasEvents(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM playback_events WHERE video_id = $1)
	`, videoID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check events: %w", err)
	}
	return exists, nil
}

// nullString converts empty strings to NULL parameters.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
