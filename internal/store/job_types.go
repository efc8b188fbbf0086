package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func scanJobType(row pgx.Row) (*model.JobType, error) {
	var jt model.JobType
	if err := row.Scan(&jt.ID, &jt.Name, &jt.DisplayName, &jt.RequiresCapabilities, &jt.Enabled); err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("job_type", "")
		}
		return nil, orcherr.Storage(err)
	}
	return &jt, nil
}

const jobTypeColumns = `id, name, display_name, requires_capabilities, enabled`

// CreateJobType inserts a new job type.
func (s *Store) CreateJobType(ctx context.Context, jt *model.JobType) (*model.JobType, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO job_types (name, display_name, requires_capabilities, enabled)
		VALUES ($1,$2,$3,$4) RETURNING `+jobTypeColumns,
		jt.Name, jt.DisplayName, jt.RequiresCapabilities, jt.Enabled,
	)
	out, err := scanJobType(row)
	if err != nil && isUniqueViolation(err) {
		return nil, orcherr.Conflict("job_type", "name")
	}
	return out, err
}

// GetJobType fetches one job type by id.
func (s *Store) GetJobType(ctx context.Context, id int64) (*model.JobType, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobTypeColumns+` FROM job_types WHERE id=$1`, id)
	return scanJobType(row)
}

// ListJobTypes returns every job type.
func (s *Store) ListJobTypes(ctx context.Context) ([]model.JobType, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobTypeColumns+` FROM job_types ORDER BY name`)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.JobType
	for rows.Next() {
		jt, err := scanJobType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *jt)
	}
	return out, rows.Err()
}
