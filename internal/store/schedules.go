package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func scanSchedule(row pgx.Row) (*model.JobSchedule, error) {
	var sch model.JobSchedule
	err := row.Scan(
		&sch.ID, &sch.Name, &sch.JobTemplateID, &sch.ServerID, &sch.Schedule, &sch.Enabled,
		&sch.TimeoutOverride, &sch.RetryOverride, &sch.NotifyOverride,
		&sch.LastRunAt, &sch.LastRunStatus, &sch.LastError, &sch.NextRunAt,
		&sch.SuccessCount, &sch.FailureCount, &sch.LastManualRunAt, &sch.ManualRunCount,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("job_schedule", "")
		}
		return nil, orcherr.Storage(err)
	}
	return &sch, nil
}

const scheduleColumns = `id, name, job_template_id, server_id, schedule, enabled,
	timeout_override, retry_override, notify_override,
	last_run_at, last_run_status, last_error, next_run_at,
	success_count, failure_count, last_manual_run_at, manual_run_count`

// CreateSchedule inserts a new schedule; nextRunAt is computed by the
// scheduler (it owns the cron-expression parsing) and passed in.
func (s *Store) CreateSchedule(ctx context.Context, sch *model.JobSchedule, nextRunAt time.Time) (*model.JobSchedule, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO job_schedules (name, job_template_id, server_id, schedule, enabled,
			timeout_override, retry_override, notify_override, next_run_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+scheduleColumns,
		sch.Name, sch.JobTemplateID, sch.ServerID, sch.Schedule, sch.Enabled,
		sch.TimeoutOverride, sch.RetryOverride, sch.NotifyOverride, nextRunAt,
	)
	out, err := scanSchedule(row)
	if err != nil && isUniqueViolation(err) {
		return nil, orcherr.Conflict("job_schedule", "name")
	}
	return out, err
}

// GetSchedule fetches one schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id int64) (*model.JobSchedule, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM job_schedules WHERE id=$1`, id)
	return scanSchedule(row)
}

// ListSchedules returns every schedule ordered by name, optionally filtered
// to enabled-only.
func (s *Store) ListSchedules(ctx context.Context, enabledOnly bool) ([]model.JobSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM job_schedules`
	if enabledOnly {
		query += ` WHERE enabled = true`
	}
	query += ` ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.JobSchedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sch)
	}
	return out, rows.Err()
}

// ListDueSchedules returns enabled schedules whose next_run_at has passed.
// The FOR UPDATE SKIP LOCKED row locks last only for this statement's own
// implicit transaction; they are released before the caller advances
// next_run_at, so they do not stop a second process from firing the same
// schedule.
func (s *Store) ListDueSchedules(ctx context.Context, asOf time.Time) ([]model.JobSchedule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+scheduleColumns+` FROM job_schedules
		WHERE enabled = true AND next_run_at <= $1
		ORDER BY next_run_at
		FOR UPDATE SKIP LOCKED`, asOf)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.JobSchedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sch)
	}
	return out, rows.Err()
}

// RecordScheduleRun updates the bookkeeping fields after a fire: last_run_at/
// status/error, next_run_at (computed by the caller from the cron
// expression), and the rolling success/failure counters.
func (s *Store) RecordScheduleRun(ctx context.Context, id int64, runAt time.Time, status model.ScheduleStatus, errText *string, nextRunAt time.Time) error {
	successDelta, failureDelta := 0, 0
	if status == model.ScheduleStatusSuccess {
		successDelta = 1
	} else if status != model.ScheduleStatusSkipped {
		failureDelta = 1
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE job_schedules SET last_run_at=$2, last_run_status=$3, last_error=$4,
			next_run_at=$5, success_count=success_count+$6, failure_count=failure_count+$7
		WHERE id=$1`,
		id, runAt, status, errText, nextRunAt, successDelta, failureDelta,
	)
	if err != nil {
		return orcherr.Storage(err)
	}
	return nil
}

// AdvanceNextRun moves a schedule's next_run_at forward immediately after
// it's picked up, before the job actually runs — so a slow job can't cause
// the same tick (or the next one, if it runs past a second fire time) to
// pick the schedule up again.
func (s *Store) AdvanceNextRun(ctx context.Context, id int64, next time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE job_schedules SET next_run_at=$2 WHERE id=$1`, id, next)
	if err != nil {
		return orcherr.Storage(err)
	}
	return nil
}

// IsScheduleRunning reports whether a job run created from this schedule is
// still in the running state — the overlap-skip check.
func (s *Store) IsScheduleRunning(ctx context.Context, scheduleID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM job_runs WHERE job_schedule_id=$1 AND status='running')`,
		scheduleID,
	).Scan(&exists)
	if err != nil {
		return false, orcherr.Storage(err)
	}
	return exists, nil
}

// RecordManualRun bumps manual_run_count/last_manual_run_at for a
// triggerManualRun call against a schedule-bound template (the schedule
// itself doesn't fire; spec §4.5 tracks manual triggers separately).
func (s *Store) RecordManualRun(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE job_schedules SET last_manual_run_at=$2, manual_run_count=manual_run_count+1
		WHERE id=$1`, id, at)
	if err != nil {
		return orcherr.Storage(err)
	}
	return nil
}

// SetScheduleEnabled toggles a schedule's enabled flag.
func (s *Store) SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE job_schedules SET enabled=$2 WHERE id=$1`, id, enabled)
	if err != nil {
		return orcherr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return orcherr.NotFound("job_schedule", id)
	}
	return nil
}

// DeleteSchedule removes a schedule.
func (s *Store) DeleteSchedule(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM job_schedules WHERE id=$1`, id)
	if err != nil {
		return orcherr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return orcherr.NotFound("job_schedule", id)
	}
	return nil
}
