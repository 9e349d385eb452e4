package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostreel/viewlens/internal/models"
)

// PostgresSessionRepo implements SessionRepo using PostgreSQL. Both
// upserts rely on ON CONFLICT so concurrent play events for the same
// session converge on a single row.
type PostgresSessionRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepo creates a new PostgreSQL-backed session repository.
func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{pool: pool}
}

// UpsertDeviceContext inserts a device context or refreshes updated_at
// when the same content hash already exists.
func (r *PostgresSessionRepo) UpsertDeviceContext(ctx context.Context, dc *models.DeviceContext) error {
	if dc == nil {
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO device_contexts
			(hash, screen_width, screen_height, viewport_width, viewport_height,
			 device_pixel_ratio, orientation, language, timezone,
			 hardware_concurrency, device_memory, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (hash) DO UPDATE SET updated_at = now()
	`, dc.Hash, dc.ScreenWidth, dc.ScreenHeight, dc.ViewportWidth, dc.ViewportHeight,
		dc.DevicePixelRatio, nullString(dc.Orientation), nullString(dc.Language),
		nullString(dc.Timezone), dc.HardwareConcurrency, dc.DeviceMemory)

	if err != nil {
		return fmt.Errorf("failed to upsert device context: %w", err)
	}
	return nil
}

// UpsertSession inserts a viewer session or, for an existing
// (video_id, session_id) pair, relinks it to the latest device context.
func (r *PostgresSessionRepo) UpsertSession(ctx context.Context, s *models.ViewerSession) error {
	if s == nil {
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO viewer_sessions
			(video_id, session_id, device_context_hash, organization_id,
			 user_id, client_id, ip, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (video_id, session_id) DO UPDATE SET
			device_context_hash = COALESCE(EXCLUDED.device_context_hash, viewer_sessions.device_context_hash),
			organization_id     = COALESCE(EXCLUDED.organization_id, viewer_sessions.organization_id),
			user_id             = COALESCE(EXCLUDED.user_id, viewer_sessions.user_id),
			client_id           = COALESCE(EXCLUDED.client_id, viewer_sessions.client_id),
			ip                  = COALESCE(EXCLUDED.ip, viewer_sessions.ip),
			user_agent          = COALESCE(EXCLUDED.user_agent, viewer_sessions.user_agent),
			updated_at          = now()
	`, s.VideoID, s.SessionID, nullString(s.DeviceContextHash), nullString(s.OrganizationID),
		nullString(s.UserID), nullString(s.ClientID), nullString(s.IP), nullString(s.UserAgent))

	if err != nil {
		return fmt.Errorf("failed to upsert viewer session: %w", err)
	}
	return nil
}

// ListSessionDetails returns sessions for a video joined to their
// device contexts, restricted by session activity when bounds are set.
func (r *PostgresSessionRepo) ListSessionDetails(ctx context.Context, videoID string, start, end *time.Time) ([]*models.SessionDetail, error) {
	query := `
		SELECT s.video_id, s.session_id, s.device_context_hash, s.organization_id,
		       s.user_id, s.client_id, s.ip, s.user_agent, s.created_at, s.updated_at,
		       c.hash, c.screen_width, c.screen_height, c.viewport_width, c.viewport_height,
		       c.device_pixel_ratio, c.orientation, c.language, c.timezone,
		       c.hardware_concurrency, c.device_memory, c.created_at, c.updated_at
		FROM viewer_sessions s
		LEFT JOIN device_contexts c ON c.hash = s.device_context_hash
		WHERE s.video_id = $1`

	args := []interface{}{videoID}
	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND s.updated_at >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND s.created_at <= $%d", len(args))
	}
	query += " ORDER BY s.session_id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list viewer sessions: %w", err)
	}
	defer rows.Close()

	var details []*models.SessionDetail
	for rows.Next() {
		var s models.ViewerSession
		var dcHash, orgID, userID, clientID, ip, ua *string

		var cHash, cOrient, cLang, cTz *string
		var cScreenW, cScreenH, cViewW, cViewH, cHWConc *int
		var cDPR, cMem *float64
		var cCreated, cUpdated *time.Time

		if err := rows.Scan(&s.VideoID, &s.SessionID, &dcHash, &orgID,
			&userID, &clientID, &ip, &ua, &s.CreatedAt, &s.UpdatedAt,
			&cHash, &cScreenW, &cScreenH, &cViewW, &cViewH,
			&cDPR, &cOrient, &cLang, &cTz,
			&cHWConc, &cMem, &cCreated, &cUpdated); err != nil {
			return nil, err
		}

		s.DeviceContextHash = deref(dcHash)
		s.OrganizationID = deref(orgID)
		s.UserID = deref(userID)
		s.ClientID = deref(clientID)
		s.IP = deref(ip)
		s.UserAgent = deref(ua)

		detail := &models.SessionDetail{Session: s}
		if cHash != nil {
			detail.Context = &models.DeviceContext{
				Hash:                *cHash,
				ScreenWidth:         derefInt(cScreenW),
				ScreenHeight:        derefInt(cScreenH),
				ViewportWidth:       derefInt(cViewW),
				ViewportHeight:      derefInt(cViewH),
				DevicePixelRatio:    derefFloat(cDPR),
				Orientation:         deref(cOrient),
				Language:            deref(cLang),
				Timezone:            deref(cTz),
				HardwareConcurrency: derefInt(cHWConc),
				DeviceMemory:        derefFloat(cMem),
			}
			if cCreated != nil {
				detail.Context.CreatedAt = *cCreated
			}
			if cUpdated != nil {
				detail.Context.UpdatedAt = *cUpdated
			}
		}
		details = append(details, detail)
	}
	return details, rows.Err()
}

// GetSession retrieves one session row, (nil, nil) when absent.
func (r *PostgresSessionRepo) GetSession(ctx context.Context, videoID, sessionID string) (*models.ViewerSession, error) {
	var s models.ViewerSession
	var dcHash, orgID, userID, clientID, ip, ua *string

	err := r.pool.QueryRow(ctx, `
		SELECT video_id, session_id, device_context_hash, organization_id,
		       user_id, client_id, ip, user_agent, created_at, updated_at
		FROM viewer_sessions
		WHERE video_id = $1 AND session_id = $2
	`, videoID, sessionID).Scan(&s.VideoID, &s.SessionID, &dcHash, &orgID,
		&userID, &clientID, &ip, &ua, &s.CreatedAt, &s.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get viewer session: %w", err)
	}

	s.DeviceContextHash = deref(dcHash)
	s.OrganizationID = deref(orgID)
	s.UserID = deref(userID)
	s.ClientID = deref(clientID)
	s.IP = deref(ip)
	s.UserAgent = deref(ua)
	return &s, nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
