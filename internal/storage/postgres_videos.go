package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostreel/viewlens/internal/models"
)

// PostgresVideoRepo implements VideoRepo using PostgreSQL.
type PostgresVideoRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresVideoRepo creates a new PostgreSQL-backed video repository.
func NewPostgresVideoRepo(pool *pgxpool.Pool) *PostgresVideoRepo {
	return &PostgresVideoRepo{pool: pool}
}

// GetByID retrieves a video, (nil, nil) when absent.
func (r *PostgresVideoRepo) GetByID(ctx context.Context, id string) (*models.Video, error) {
	var v models.Video
	var title *string

	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, title, duration_s, created_at
		FROM videos WHERE id = $1
	`, id).Scan(&v.ID, &v.OrganizationID, &title, &v.Duration, &v.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	v.Title = deref(title)
	return &v, nil
}

// ListByOrganization returns all videos owned by an organization.
func (r *PostgresVideoRepo) ListByOrganization(ctx context.Context, organizationID string) ([]*models.Video, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, title, duration_s, created_at
		FROM videos WHERE organization_id = $1
		ORDER BY created_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		var v models.Video
		var title *string
		if err := rows.Scan(&v.ID, &v.OrganizationID, &title, &v.Duration, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Title = deref(title)
		videos = append(videos, &v)
	}
	return videos, rows.Err()
}

// Upsert saves a video record. The analytics service itself never
// writes videos; this exists for provisioning and tests.
func (r *PostgresVideoRepo) Upsert(ctx context.Context, v *models.Video) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO videos (id, organization_id, title, duration_s, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			title           = EXCLUDED.title,
			duration_s      = EXCLUDED.duration_s
	`, v.ID, v.OrganizationID, nullString(v.Title), v.Duration)

	if err != nil {
		return fmt.Errorf("failed to upsert video: %w", err)
	}
	return nil
}
