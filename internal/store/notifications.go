package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func scanChannel(row pgx.Row) (*model.NotificationChannel, error) {
	var c model.NotificationChannel
	var config []byte
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &config, &c.Enabled, &c.DefaultPriority,
		&c.LastTestAt, &c.LastTestSuccess)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("notification_channel", "")
		}
		return nil, orcherr.Storage(err)
	}
	if err := fromJSON(config, &c.Config); err != nil {
		return nil, orcherr.Storage(err)
	}
	return &c, nil
}

const channelColumns = `id, name, kind, config, enabled, default_priority, last_test_at, last_test_success`

// CreateChannel inserts a new notification channel.
func (s *Store) CreateChannel(ctx context.Context, c *model.NotificationChannel) (*model.NotificationChannel, error) {
	config, err := toJSON(c.Config)
	if err != nil {
		return nil, orcherr.Invalid("config", err.Error())
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO notification_channels (name, kind, config, enabled, default_priority)
		VALUES ($1,$2,$3,$4,$5) RETURNING `+channelColumns,
		c.Name, c.Kind, config, c.Enabled, c.DefaultPriority,
	)
	return scanChannel(row)
}

// GetChannel fetches one channel by id.
func (s *Store) GetChannel(ctx context.Context, id int64) (*model.NotificationChannel, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM notification_channels WHERE id=$1`, id)
	return scanChannel(row)
}

// ListChannels returns every channel, optionally filtered by id set.
func (s *Store) ListChannels(ctx context.Context, ids []int64) ([]model.NotificationChannel, error) {
	var rows pgx.Rows
	var err error
	if len(ids) > 0 {
		rows, err = s.pool.Query(ctx, `SELECT `+channelColumns+` FROM notification_channels WHERE id = ANY($1)`, ids)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+channelColumns+` FROM notification_channels ORDER BY name`)
	}
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.NotificationChannel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// RecordChannelTest records the outcome of a manual channel connectivity test.
func (s *Store) RecordChannelTest(ctx context.Context, id int64, success bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_channels SET last_test_at=now(), last_test_success=$2 WHERE id=$1`,
		id, success,
	)
	if err != nil {
		return orcherr.Storage(err)
	}
	return nil
}

func scanPolicy(row pgx.Row) (*model.NotificationPolicy, error) {
	var p model.NotificationPolicy
	var filters []byte
	err := row.Scan(
		&p.ID, &p.Name, &p.OnSuccess, &p.OnFailure, &p.OnTimeout, &filters, &p.MinSeverity, &p.MaxPerHour,
		&p.TitleTemplate, &p.BodyTemplate, &p.SuccessTitleTemplate, &p.SuccessBodyTemplate,
		&p.FailureTitleTemplate, &p.FailureBodyTemplate, &p.IncludeOutput, &p.OutputMaxLines, &p.ChannelIDs,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("notification_policy", "")
		}
		return nil, orcherr.Storage(err)
	}
	if err := fromJSON(filters, &p.Filters); err != nil {
		return nil, orcherr.Storage(err)
	}
	return &p, nil
}

const policyColumns = `id, name, on_success, on_failure, on_timeout, filters, min_severity, max_per_hour,
	title_template, body_template, success_title_template, success_body_template,
	failure_title_template, failure_body_template, include_output, output_max_lines, channel_ids`

// CreatePolicy inserts a new notification policy.
func (s *Store) CreatePolicy(ctx context.Context, p *model.NotificationPolicy) (*model.NotificationPolicy, error) {
	filters, err := toJSON(p.Filters)
	if err != nil {
		return nil, orcherr.Invalid("filters", err.Error())
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO notification_policies (name, on_success, on_failure, on_timeout, filters,
			min_severity, max_per_hour, title_template, body_template,
			success_title_template, success_body_template, failure_title_template, failure_body_template,
			include_output, output_max_lines, channel_ids)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING `+policyColumns,
		p.Name, p.OnSuccess, p.OnFailure, p.OnTimeout, filters, p.MinSeverity, p.MaxPerHour,
		p.TitleTemplate, p.BodyTemplate, p.SuccessTitleTemplate, p.SuccessBodyTemplate,
		p.FailureTitleTemplate, p.FailureBodyTemplate, p.IncludeOutput, p.OutputMaxLines, p.ChannelIDs,
	)
	return scanPolicy(row)
}

// GetPolicy fetches one policy by id.
func (s *Store) GetPolicy(ctx context.Context, id int64) (*model.NotificationPolicy, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM notification_policies WHERE id=$1`, id)
	return scanPolicy(row)
}

// ListPolicies returns every notification policy.
func (s *Store) ListPolicies(ctx context.Context) ([]model.NotificationPolicy, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+policyColumns+` FROM notification_policies ORDER BY name`)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.NotificationPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// LogNotification records one delivery attempt (success or failure).
func (s *Store) LogNotification(ctx context.Context, l *model.NotificationLog) (*model.NotificationLog, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO notification_logs (channel_id, policy_id, job_run_id, title, body, priority,
			success, error_message, retry_count, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, channel_id, policy_id, job_run_id, title, body, priority, success, error_message, retry_count, sent_at`,
		l.ChannelID, l.PolicyID, l.JobRunID, l.Title, l.Body, l.Priority,
		l.Success, l.ErrorMessage, l.RetryCount, l.SentAt,
	)
	var out model.NotificationLog
	err := row.Scan(&out.ID, &out.ChannelID, &out.PolicyID, &out.JobRunID, &out.Title, &out.Body,
		&out.Priority, &out.Success, &out.ErrorMessage, &out.RetryCount, &out.SentAt)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	return &out, nil
}

// CountNotificationsSince counts successful deliveries for a policy within
// a window, the durable counterpart to internal/ratelimit's Redis counter
// (used when Redis is unavailable or for audit reconciliation).
func (s *Store) CountNotificationsSince(ctx context.Context, policyID int64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notification_logs WHERE policy_id=$1 AND success=true AND sent_at >= $2`,
		policyID, since,
	).Scan(&count)
	if err != nil {
		return 0, orcherr.Storage(err)
	}
	return count, nil
}
