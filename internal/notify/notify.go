// Package notify is the Notifier component: it decides which
// NotificationPolicy applies to a terminal JobRun, renders title/body
// templates, throttles per policy, and delivers through one Adapter per
// configured channel, logging every attempt.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/notify/channel"
	"github.com/jsprague84/svrctlrs-sub002/internal/render"
)

// store is the slice of *store.Store the Notifier depends on, kept as an
// interface so tests can supply a fake without a live Postgres connection.
type store interface {
	GetPolicy(ctx context.Context, id int64) (*model.NotificationPolicy, error)
	ListPolicies(ctx context.Context) ([]model.NotificationPolicy, error)
	GetJobType(ctx context.Context, id int64) (*model.JobType, error)
	ListChannels(ctx context.Context, ids []int64) ([]model.NotificationChannel, error)
	ServersByTagNames(ctx context.Context, names []string) ([]int64, error)
	CountNotificationsSince(ctx context.Context, policyID int64, since time.Time) (int, error)
	LogNotification(ctx context.Context, l *model.NotificationLog) (*model.NotificationLog, error)
	RecordNotificationOutcome(ctx context.Context, runID int64, sent bool, errText *string) error
}

// throttle is the Notifier's view of the rate limiter, satisfied by
// *ratelimit.Counter.
type throttle interface {
	Allow(ctx context.Context, policyID int64, maxPerHour *int) (bool, error)
	Increment(ctx context.Context, policyID int64) (int64, error)
}

// retryDelays is the fixed backoff schedule between delivery attempts: one
// initial send plus up to two retries.
var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Notifier evaluates NotificationPolicy rules against a terminal JobRun and
// delivers through the channels it names.
type Notifier struct {
	st       store
	throttle throttle
	adapters map[model.ChannelKind]channel.Adapter
}

// New wires the default channel.Adapter set. sink may be nil, in which case
// MaxPerHour is still enforced, by counting the policy's successful
// deliveries of the last hour via CountNotificationsSince.
func New(st store, sink throttle) *Notifier {
	return &Notifier{
		st:       st,
		throttle: sink,
		adapters: map[model.ChannelKind]channel.Adapter{
			model.ChannelKindGotify:  channel.NewGotify(),
			model.ChannelKindNtfy:    channel.NewNtfy(),
			model.ChannelKindEmail:   channel.NewEmail(),
			model.ChannelKindSlack:   channel.NewSlack(),
			model.ChannelKindDiscord: channel.NewDiscord(),
			model.ChannelKindWebhook: channel.NewWebhook(),
		},
	}
}

// NotifyRun is the Executor.Notifier implementation: best-effort, logs
// failures rather than propagating them, since a notification failure must
// never affect a JobRun's recorded outcome.
//
// The template's own notification_policy_id, if set and matching, is
// always one candidate; every other policy returned by a global lookup
// that also matches the run's status applies additively on top of it, so
// a template with no direct policy can still notify through a matching
// global policy.
func (n *Notifier) NotifyRun(ctx context.Context, run *model.JobRun, tmpl *model.JobTemplate) {
	policies := n.candidatePolicies(ctx, run, tmpl)
	if len(policies) == 0 {
		return
	}

	attempted := false
	sent := false
	var lastErr error

	for i := range policies {
		policy := &policies[i]

		matched, err := n.filtersMatch(ctx, policy, run, tmpl)
		if err != nil {
			log.Printf("notify: evaluate filters for policy %d: %v", policy.ID, err)
			continue
		}
		if !matched {
			continue
		}

		allowed, err := n.checkThrottle(ctx, policy)
		if err != nil {
			log.Printf("notify: throttle check for policy %d: %v", policy.ID, err)
		}
		if !allowed {
			log.Printf("notify: policy %d throttled, skipping run %d", policy.ID, run.ID)
			continue
		}

		title, body, err := n.render(policy, run, tmpl)
		if err != nil {
			log.Printf("notify: render policy %d templates: %v", policy.ID, err)
			continue
		}

		channels, err := n.st.ListChannels(ctx, policy.ChannelIDs)
		if err != nil {
			log.Printf("notify: load channels for policy %d: %v", policy.ID, err)
			continue
		}

		attempted = true
		for _, ch := range channels {
			if !ch.Enabled {
				continue
			}
			if err := n.deliver(ctx, ch, policy, run, title, body); err != nil {
				lastErr = err
				continue
			}
			sent = true
		}

		if n.throttle != nil {
			if _, err := n.throttle.Increment(ctx, policy.ID); err != nil {
				log.Printf("notify: increment throttle counter for policy %d: %v", policy.ID, err)
			}
		}
	}

	if !attempted {
		return
	}

	var errText *string
	if lastErr != nil {
		s := lastErr.Error()
		errText = &s
	}
	if err := n.st.RecordNotificationOutcome(ctx, run.ID, sent, errText); err != nil {
		log.Printf("notify: record outcome for run %d: %v", run.ID, err)
	}
}

// candidatePolicies unions tmpl's direct policy (if any) with every
// globally listed policy matching run's terminal status, deduped by id.
func (n *Notifier) candidatePolicies(ctx context.Context, run *model.JobRun, tmpl *model.JobTemplate) []model.NotificationPolicy {
	seen := map[int64]bool{}
	var out []model.NotificationPolicy

	if tmpl.NotificationPolicyID != nil {
		policy, err := n.st.GetPolicy(ctx, *tmpl.NotificationPolicyID)
		if err != nil {
			log.Printf("notify: load policy %d: %v", *tmpl.NotificationPolicyID, err)
		} else if policy.Matches(run.Status) {
			out = append(out, *policy)
			seen[policy.ID] = true
		}
	}

	all, err := n.st.ListPolicies(ctx)
	if err != nil {
		log.Printf("notify: list global policies: %v", err)
		return out
	}
	for _, p := range all {
		if seen[p.ID] || !p.Matches(run.Status) {
			continue
		}
		out = append(out, p)
		seen[p.ID] = true
	}
	return out
}

// checkThrottle consults the live Redis counter first and falls back to a
// durable count from storage when no throttle sink is wired, so a policy's
// MaxPerHour is still honored across process restarts.
func (n *Notifier) checkThrottle(ctx context.Context, policy *model.NotificationPolicy) (bool, error) {
	if policy.MaxPerHour == nil {
		return true, nil
	}
	if n.throttle != nil {
		return n.throttle.Allow(ctx, policy.ID, policy.MaxPerHour)
	}
	count, err := n.st.CountNotificationsSince(ctx, policy.ID, time.Now().Add(-time.Hour))
	if err != nil {
		return false, err
	}
	return count < *policy.MaxPerHour, nil
}

// filtersMatch applies PolicyFilters: an unset field always matches, a set
// field must match the run's JobType name, ServerID, or a tag the server
// carries.
func (n *Notifier) filtersMatch(ctx context.Context, policy *model.NotificationPolicy, run *model.JobRun, tmpl *model.JobTemplate) (bool, error) {
	f := policy.Filters

	if f.JobType != nil {
		jobType, err := n.st.GetJobType(ctx, tmpl.JobTypeID)
		if err != nil {
			return false, err
		}
		if jobType.Name != *f.JobType {
			return false, nil
		}
	}

	if len(f.ServerIDs) > 0 {
		found := false
		for _, id := range f.ServerIDs {
			if id == run.ServerID {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	if len(f.TagNames) > 0 {
		ids, err := n.st.ServersByTagNames(ctx, f.TagNames)
		if err != nil {
			return false, err
		}
		found := false
		for _, id := range ids {
			if id == run.ServerID {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	return true, nil
}

// render picks the status-specific template pair when set, falling back to
// the policy's general templates, and substitutes run/server variables.
func (n *Notifier) render(policy *model.NotificationPolicy, run *model.JobRun, tmpl *model.JobTemplate) (string, string, error) {
	titleTemplate, bodyTemplate := policy.TitleTemplate, policy.BodyTemplate
	switch run.Status {
	case model.RunStatusSuccess:
		if policy.SuccessTitleTemplate != "" {
			titleTemplate = policy.SuccessTitleTemplate
		}
		if policy.SuccessBodyTemplate != "" {
			bodyTemplate = policy.SuccessBodyTemplate
		}
	case model.RunStatusFailure, model.RunStatusTimeout, model.RunStatusCancelled:
		if policy.FailureTitleTemplate != "" {
			titleTemplate = policy.FailureTitleTemplate
		}
		if policy.FailureBodyTemplate != "" {
			bodyTemplate = policy.FailureBodyTemplate
		}
	}

	vars := map[string]string{
		"job_template_name": tmpl.DisplayName,
		"server_id":         fmt.Sprintf("%d", run.ServerID),
		"status":            string(run.Status),
		"trigger":           string(run.Trigger),
		"run_id":            fmt.Sprintf("%d", run.ID),
	}
	if run.ExitCode != nil {
		vars["exit_code"] = fmt.Sprintf("%d", *run.ExitCode)
	}
	if run.DurationMs != nil {
		vars["duration_ms"] = fmt.Sprintf("%d", *run.DurationMs)
	}
	if policy.IncludeOutput {
		vars["output"] = truncateLines(run.Output, policy.OutputMaxLines)
	}

	title, err := render.RenderString(titleTemplate, vars)
	if err != nil {
		return "", "", err
	}
	body, err := render.RenderString(bodyTemplate, vars)
	if err != nil {
		return "", "", err
	}
	return title, body, nil
}

func truncateLines(s string, max int) string {
	if max <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(lines[:max], "\n") + "\n... (truncated)"
}

// deliver sends through one channel with exponential backoff, logging each
// attempt.
func (n *Notifier) deliver(ctx context.Context, ch model.NotificationChannel, policy *model.NotificationPolicy, run *model.JobRun, title, body string) error {
	adapter, ok := n.adapters[ch.Kind]
	if !ok {
		return fmt.Errorf("notify: no adapter for channel kind %q", ch.Kind)
	}

	var lastErr error
	for attempt := 0; attempt < len(retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelays[attempt-1]):
			}
		}
		lastErr = adapter.Send(ctx, ch.Config, title, body, ch.DefaultPriority)

		policyID := policy.ID
		logEntry := &model.NotificationLog{
			ChannelID:  ch.ID,
			PolicyID:   &policyID,
			JobRunID:   &run.ID,
			Title:      title,
			Body:       body,
			Priority:   ch.DefaultPriority,
			Success:    lastErr == nil,
			RetryCount: attempt,
		}
		if lastErr != nil {
			s := lastErr.Error()
			logEntry.ErrorMessage = &s
		}
		if _, err := n.st.LogNotification(ctx, logEntry); err != nil {
			log.Printf("notify: log delivery attempt for channel %d: %v", ch.ID, err)
		}

		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
