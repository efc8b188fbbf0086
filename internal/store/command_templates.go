package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func scanCommandTemplate(row pgx.Row) (*model.CommandTemplate, error) {
	var t model.CommandTemplate
	var osFilter, environment, parameters []byte
	err := row.Scan(
		&t.ID, &t.JobTypeID, &t.Name, &t.CommandString, &t.RequiredCapabilities,
		&osFilter, &t.TimeoutSeconds, &t.WorkingDirectory, &environment, &t.OutputFormat,
		&t.NotifyOnSuccess, &t.NotifyOnFailure, &parameters,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("command_template", "")
		}
		return nil, orcherr.Storage(err)
	}
	if err := fromJSON(osFilter, &t.OSFilter); err != nil {
		return nil, orcherr.Storage(err)
	}
	if err := fromJSON(environment, &t.Environment); err != nil {
		return nil, orcherr.Storage(err)
	}
	if err := fromJSON(parameters, &t.Parameters); err != nil {
		return nil, orcherr.Storage(err)
	}
	return &t, nil
}

const commandTemplateColumns = `id, job_type_id, name, command_string, required_capabilities,
	os_filter, timeout_seconds, working_directory, environment, output_format,
	notify_on_success, notify_on_failure, parameters`

// CreateCommandTemplate inserts a new command template.
func (s *Store) CreateCommandTemplate(ctx context.Context, t *model.CommandTemplate) (*model.CommandTemplate, error) {
	osFilter, err := toJSON(t.OSFilter)
	if err != nil {
		return nil, orcherr.Invalid("os_filter", err.Error())
	}
	environment, err := toJSON(t.Environment)
	if err != nil {
		return nil, orcherr.Invalid("environment", err.Error())
	}
	parameters, err := toJSON(t.Parameters)
	if err != nil {
		return nil, orcherr.Invalid("parameters", err.Error())
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO command_templates (job_type_id, name, command_string, required_capabilities,
			os_filter, timeout_seconds, working_directory, environment, output_format,
			notify_on_success, notify_on_failure, parameters)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+commandTemplateColumns,
		t.JobTypeID, t.Name, t.CommandString, t.RequiredCapabilities, osFilter,
		t.TimeoutSeconds, t.WorkingDirectory, environment, t.OutputFormat,
		t.NotifyOnSuccess, t.NotifyOnFailure, parameters,
	)
	return scanCommandTemplate(row)
}

// GetCommandTemplate fetches one command template by id.
func (s *Store) GetCommandTemplate(ctx context.Context, id int64) (*model.CommandTemplate, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+commandTemplateColumns+` FROM command_templates WHERE id=$1`, id)
	return scanCommandTemplate(row)
}

// ListCommandTemplatesByJobType returns every command template in a job
// type, the candidate set the Capability Gate's SelectTemplate chooses
// among for a given server.
func (s *Store) ListCommandTemplatesByJobType(ctx context.Context, jobTypeID int64) ([]model.CommandTemplate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+commandTemplateColumns+` FROM command_templates WHERE job_type_id=$1`, jobTypeID)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.CommandTemplate
	for rows.Next() {
		t, err := scanCommandTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteCommandTemplate removes a command template. Returns InUse if
// referenced by a job template or a composite step.
func (s *Store) DeleteCommandTemplate(ctx context.Context, id int64) error {
	var count int
	if err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM job_templates WHERE command_template_id=$1) +
			(SELECT count(*) FROM job_template_steps WHERE command_template_id=$1)`, id,
	).Scan(&count); err != nil {
		return orcherr.Storage(err)
	}
	if count > 0 {
		return orcherr.InUse("command_template", "job_templates")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM command_templates WHERE id=$1`, id)
	if err != nil {
		return orcherr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return orcherr.NotFound("command_template", id)
	}
	return nil
}
