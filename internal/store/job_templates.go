package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func scanJobTemplate(row pgx.Row) (*model.JobTemplate, error) {
	var t model.JobTemplate
	var variables []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.DisplayName, &t.JobTypeID, &t.IsComposite, &t.CommandTemplateID,
		&variables, &t.TimeoutSeconds, &t.RetryCount, &t.RetryDelaySeconds,
		&t.NotifyOnSuccess, &t.NotifyOnFailure, &t.NotificationPolicyID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("job_template", "")
		}
		return nil, orcherr.Storage(err)
	}
	if err := fromJSON(variables, &t.Variables); err != nil {
		return nil, orcherr.Storage(err)
	}
	return &t, nil
}

const jobTemplateColumns = `id, name, display_name, job_type_id, is_composite, command_template_id,
	variables, timeout_seconds, retry_count, retry_delay_seconds,
	notify_on_success, notify_on_failure, notification_policy_id, created_at, updated_at`

// CreateJobTemplate inserts a JobTemplate and its steps (if composite) in
// one transaction, validating the composite/simple invariant against the
// number of steps passed in before anything is written.
func (s *Store) CreateJobTemplate(ctx context.Context, t *model.JobTemplate, steps []model.JobTemplateStep) (*model.JobTemplate, []model.JobTemplateStep, error) {
	if err := t.Validate(len(steps)); err != nil {
		return nil, nil, orcherr.Invalid("job_template", err.Error())
	}

	variables, err := toJSON(t.Variables)
	if err != nil {
		return nil, nil, orcherr.Invalid("variables", err.Error())
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, orcherr.Storage(err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO job_templates (name, display_name, job_type_id, is_composite, command_template_id,
			variables, timeout_seconds, retry_count, retry_delay_seconds,
			notify_on_success, notify_on_failure, notification_policy_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+jobTemplateColumns,
		t.Name, t.DisplayName, t.JobTypeID, t.IsComposite, t.CommandTemplateID,
		variables, t.TimeoutSeconds, t.RetryCount, t.RetryDelaySeconds,
		t.NotifyOnSuccess, t.NotifyOnFailure, t.NotificationPolicyID,
	)
	created, err := scanJobTemplate(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, orcherr.Conflict("job_template", "name")
		}
		return nil, nil, err
	}

	createdSteps := make([]model.JobTemplateStep, 0, len(steps))
	for _, step := range steps {
		stepVars, err := toJSON(step.Variables)
		if err != nil {
			return nil, nil, orcherr.Invalid("step.variables", err.Error())
		}
		var st model.JobTemplateStep
		var stepVarsOut []byte
		err = tx.QueryRow(ctx, `
			INSERT INTO job_template_steps (job_template_id, step_order, name, command_template_id,
				variables, continue_on_failure, timeout_seconds)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id, job_template_id, step_order, name, command_template_id,
				variables, continue_on_failure, timeout_seconds`,
			created.ID, step.StepOrder, step.Name, step.CommandTemplateID,
			stepVars, step.ContinueOnFailure, step.TimeoutSeconds,
		).Scan(&st.ID, &st.JobTemplateID, &st.StepOrder, &st.Name, &st.CommandTemplateID,
			&stepVarsOut, &st.ContinueOnFailure, &st.TimeoutSeconds)
		if err != nil {
			return nil, nil, orcherr.Storage(err)
		}
		if err := fromJSON(stepVarsOut, &st.Variables); err != nil {
			return nil, nil, orcherr.Storage(err)
		}
		createdSteps = append(createdSteps, st)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, orcherr.Storage(err)
	}
	return created, createdSteps, nil
}

// GetJobTemplate fetches one job template by id.
func (s *Store) GetJobTemplate(ctx context.Context, id int64) (*model.JobTemplate, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobTemplateColumns+` FROM job_templates WHERE id=$1`, id)
	return scanJobTemplate(row)
}

// ListJobTemplateSteps returns a composite job template's steps in order.
func (s *Store) ListJobTemplateSteps(ctx context.Context, jobTemplateID int64) ([]model.JobTemplateStep, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_template_id, step_order, name, command_template_id,
			variables, continue_on_failure, timeout_seconds
		FROM job_template_steps WHERE job_template_id=$1 ORDER BY step_order`, jobTemplateID)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.JobTemplateStep
	for rows.Next() {
		var st model.JobTemplateStep
		var variables []byte
		if err := rows.Scan(&st.ID, &st.JobTemplateID, &st.StepOrder, &st.Name, &st.CommandTemplateID,
			&variables, &st.ContinueOnFailure, &st.TimeoutSeconds); err != nil {
			return nil, orcherr.Storage(err)
		}
		if err := fromJSON(variables, &st.Variables); err != nil {
			return nil, orcherr.Storage(err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListJobTemplates returns every job template.
func (s *Store) ListJobTemplates(ctx context.Context) ([]model.JobTemplate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobTemplateColumns+` FROM job_templates ORDER BY name`)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.JobTemplate
	for rows.Next() {
		t, err := scanJobTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteJobTemplate removes a job template and its steps. Returns InUse if
// a schedule still references it.
func (s *Store) DeleteJobTemplate(ctx context.Context, id int64) error {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM job_schedules WHERE job_template_id=$1`, id).Scan(&count); err != nil {
		return orcherr.Storage(err)
	}
	if count > 0 {
		return orcherr.InUse("job_template", "job_schedules")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return orcherr.Storage(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM job_template_steps WHERE job_template_id=$1`, id); err != nil {
		return orcherr.Storage(err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM job_templates WHERE id=$1`, id)
	if err != nil {
		return orcherr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return orcherr.NotFound("job_template", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return orcherr.Storage(err)
	}
	return nil
}
