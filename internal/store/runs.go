package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func scanJobRun(row pgx.Row) (*model.JobRun, error) {
	var r model.JobRun
	var metadata []byte
	err := row.Scan(
		&r.ID, &r.JobScheduleID, &r.JobTemplateID, &r.ServerID, &r.Status, &r.StartedAt,
		&r.FinishedAt, &r.DurationMs, &r.ExitCode, &r.Output, &r.Error, &r.RenderedCommand,
		&r.RetryAttempt, &r.IsRetry, &r.RetryOfRunID, &r.NotificationSent, &r.NotificationError, &r.Trigger, &metadata,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("job_run", "")
		}
		return nil, orcherr.Storage(err)
	}
	if err := fromJSON(metadata, &r.Metadata); err != nil {
		return nil, orcherr.Storage(err)
	}
	return &r, nil
}

const jobRunColumns = `id, job_schedule_id, job_template_id, server_id, status, started_at,
	finished_at, duration_ms, exit_code, output, error, rendered_command,
	retry_attempt, is_retry, retry_of_run_id, notification_sent, notification_error, trigger, metadata`

// CreateJobRun inserts a new run row in the running state. This is the
// point the Executor's semaphore slot becomes visible in the store, before
// any dispatch happens. A retry-created run carries RetryOfRunID pointing
// back at the original run it is retrying.
func (s *Store) CreateJobRun(ctx context.Context, r *model.JobRun) (*model.JobRun, error) {
	metadata, err := toJSON(r.Metadata)
	if err != nil {
		return nil, orcherr.Invalid("metadata", err.Error())
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO job_runs (job_schedule_id, job_template_id, server_id, status, started_at,
			rendered_command, retry_attempt, is_retry, retry_of_run_id, trigger, metadata)
		VALUES ($1,$2,$3,'running',$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+jobRunColumns,
		r.JobScheduleID, r.JobTemplateID, r.ServerID, r.StartedAt,
		r.RenderedCommand, r.RetryAttempt, r.IsRetry, r.RetryOfRunID, r.Trigger, metadata,
	)
	return scanJobRun(row)
}

// GetJobRun fetches one run by id.
func (s *Store) GetJobRun(ctx context.Context, id int64) (*model.JobRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobRunColumns+` FROM job_runs WHERE id=$1`, id)
	return scanJobRun(row)
}

// FinishJobRun persists a terminal JobRun. It enforces the monotonic
// lifecycle at the SQL layer too (WHERE status='running'), not just via
// model.JobRun.Finish, since two goroutines could race to finish the same
// run (a dispatch timeout firing concurrently with a cancellation).
// rowsAffected == 0 means another writer already finished this run first.
func (s *Store) FinishJobRun(ctx context.Context, r *model.JobRun) (bool, error) {
	metadata, err := toJSON(r.Metadata)
	if err != nil {
		return false, orcherr.Invalid("metadata", err.Error())
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_runs SET status=$2, finished_at=$3, duration_ms=$4, exit_code=$5,
			output=$6, error=$7, metadata=$8
		WHERE id=$1 AND status='running'`,
		r.ID, r.Status, r.FinishedAt, r.DurationMs, r.ExitCode, r.Output, r.Error, metadata,
	)
	if err != nil {
		return false, orcherr.Storage(err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordNotificationOutcome stamps a run with whether its notification
// dispatch succeeded.
func (s *Store) RecordNotificationOutcome(ctx context.Context, runID int64, sent bool, errText *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE job_runs SET notification_sent=$2, notification_error=$3 WHERE id=$1`,
		runID, sent, errText,
	)
	if err != nil {
		return orcherr.Storage(err)
	}
	return nil
}

// ListJobRuns returns runs for a job template (or all, if jobTemplateID is
// nil), most recent first, capped at limit.
func (s *Store) ListJobRuns(ctx context.Context, jobTemplateID *int64, limit int) ([]model.JobRun, error) {
	var rows pgx.Rows
	var err error
	if jobTemplateID != nil {
		rows, err = s.pool.Query(ctx, `
			SELECT `+jobRunColumns+` FROM job_runs WHERE job_template_id=$1
			ORDER BY started_at DESC LIMIT $2`, *jobTemplateID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+jobRunColumns+` FROM job_runs ORDER BY started_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.JobRun
	for rows.Next() {
		r, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListRunningJobRuns returns every run still in the running state,
// including any orphaned by a previous process crash.
func (s *Store) ListRunningJobRuns(ctx context.Context) ([]model.JobRun, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobRunColumns+` FROM job_runs WHERE status='running'`)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.JobRun
	for rows.Next() {
		r, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CreateStepResult inserts one composite-step execution record.
func (s *Store) CreateStepResult(ctx context.Context, res *model.StepExecutionResult) (*model.StepExecutionResult, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO step_execution_results (job_run_id, step_order, step_name, command_template_id,
			status, started_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, job_run_id, step_order, step_name, command_template_id,
			status, started_at, finished_at, duration_ms, exit_code, output, error`,
		res.JobRunID, res.StepOrder, res.StepName, res.CommandTemplateID, res.Status, res.StartedAt,
	)
	var out model.StepExecutionResult
	err := row.Scan(&out.ID, &out.JobRunID, &out.StepOrder, &out.StepName, &out.CommandTemplateID,
		&out.Status, &out.StartedAt, &out.FinishedAt, &out.DurationMs, &out.ExitCode, &out.Output, &out.Error)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	return &out, nil
}

// FinishStepResult persists a step's terminal outcome.
func (s *Store) FinishStepResult(ctx context.Context, id int64, now time.Time, status model.RunStatus, exitCode *int, output, errText string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE step_execution_results SET status=$2, finished_at=$3,
			duration_ms = EXTRACT(EPOCH FROM ($3::timestamptz - started_at)) * 1000,
			exit_code=$4, output=$5, error=$6
		WHERE id=$1`,
		id, status, now, exitCode, output, errText,
	)
	if err != nil {
		return orcherr.Storage(err)
	}
	return nil
}

// ListStepResults returns a composite run's step outcomes in order.
func (s *Store) ListStepResults(ctx context.Context, jobRunID int64) ([]model.StepExecutionResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_run_id, step_order, step_name, command_template_id,
			status, started_at, finished_at, duration_ms, exit_code, output, error
		FROM step_execution_results WHERE job_run_id=$1 ORDER BY step_order`, jobRunID)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.StepExecutionResult
	for rows.Next() {
		var r model.StepExecutionResult
		if err := rows.Scan(&r.ID, &r.JobRunID, &r.StepOrder, &r.StepName, &r.CommandTemplateID,
			&r.Status, &r.StartedAt, &r.FinishedAt, &r.DurationMs, &r.ExitCode, &r.Output, &r.Error); err != nil {
			return nil, orcherr.Storage(err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
