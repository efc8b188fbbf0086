// Package scheduler is the Scheduler component: a tick loop that fires due
// JobSchedules through the Executor, using the 6-field-with-seconds cron
// dialect named in spec §6.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/store"
)

// Executor is the Scheduler's view of the Executor.
type Executor interface {
	Execute(ctx context.Context, jobTemplateID, serverID int64, trigger model.Trigger, jobScheduleID *int64, overrides map[string]string) (int64, error)
}

// Scheduler polls for due schedules and fires them through an Executor,
// grounded structurally on the teacher's JobScheduler (ticker + pollJobs
// loop), generalized from SQL job-status polling to cron-driven dispatch.
type Scheduler struct {
	store    *store.Store
	executor Executor
	parser   cron.Parser
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// New builds a Scheduler that checks for due schedules every interval.
func New(st *store.Store, exec Executor, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    st,
		executor: exec,
		parser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		interval: interval,
	}
}

// Start begins the polling loop in a background goroutine. Calling Start
// twice without an intervening Stop is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	log.Printf("scheduler: starting (interval %s)", s.interval)
	go s.loop(runCtx)
}

// Stop halts the polling loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every due schedule, isolating one schedule's failure from the
// rest (a panic or store error in one fire doesn't stop the others).
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	due, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		log.Printf("scheduler: list due schedules: %v", err)
		return
	}

	for _, sch := range due {
		sch := sch
		next, err := s.nextFireAfter(sch.Schedule, now)
		if err != nil {
			log.Printf("scheduler: schedule %d has invalid cron expression %q: %v", sch.ID, sch.Schedule, err)
			continue
		}
		if err := s.store.AdvanceNextRun(ctx, sch.ID, next); err != nil {
			log.Printf("scheduler: advance next_run_at for schedule %d: %v", sch.ID, err)
			continue
		}

		running, err := s.store.IsScheduleRunning(ctx, sch.ID)
		if err != nil {
			log.Printf("scheduler: check running state for schedule %d: %v", sch.ID, err)
			continue
		}
		if running {
			skipped := model.ScheduleStatusSkipped
			reason := "previous run still in progress"
			_ = s.store.RecordScheduleRun(ctx, sch.ID, now, skipped, &reason, next)
			continue
		}

		go s.fire(ctx, sch, now, next)
	}
}

func (s *Scheduler) fire(ctx context.Context, sch model.JobSchedule, firedAt, next time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: schedule %d panicked: %v", sch.ID, r)
		}
	}()

	scheduleID := sch.ID
	overrides := map[string]string{}
	runID, runErr := s.executor.Execute(ctx, sch.JobTemplateID, sch.ServerID, model.TriggerScheduled, &scheduleID, overrides)

	var status model.ScheduleStatus
	var errText *string
	if runErr != nil {
		// Execute recorded no run (overloaded, missing job template or
		// server) or hit a storage error — there's no terminal JobRun
		// status to inspect.
		msg := runErr.Error()
		errText = &msg
		status = model.ScheduleStatusFailure
	} else if run, err := s.store.GetJobRun(ctx, runID); err != nil {
		log.Printf("scheduler: load run %d for schedule %d: %v", runID, sch.ID, err)
		msg := err.Error()
		errText = &msg
		status = model.ScheduleStatusFailure
	} else {
		status = scheduleStatusFor(run.Status)
		if run.Error != "" {
			errText = &run.Error
		}
	}

	if err := s.store.RecordScheduleRun(ctx, sch.ID, firedAt, status, errText, next); err != nil {
		log.Printf("scheduler: record run outcome for schedule %d: %v", sch.ID, err)
	}
}

// scheduleStatusFor maps a JobRun's terminal RunStatus to the coarser
// ScheduleStatus vocabulary tracked on JobSchedule. ScheduleStatus has no
// "cancelled" value, so a cancelled run is recorded as a failure.
func scheduleStatusFor(status model.RunStatus) model.ScheduleStatus {
	switch status {
	case model.RunStatusSuccess:
		return model.ScheduleStatusSuccess
	case model.RunStatusTimeout:
		return model.ScheduleStatusTimeout
	default:
		return model.ScheduleStatusFailure
	}
}

// nextFireAfter parses expr in the 6-field dialect and returns its next
// fire time strictly after asOf.
func (s *Scheduler) nextFireAfter(expr string, asOf time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(asOf), nil
}

// Reload is a placeholder for callers that mutate schedules out of band
// (the facade's create/update/delete schedule operations); since tick
// re-queries job_schedules from the store on every interval, there is no
// in-memory schedule cache to invalidate — Reload exists so the facade has
// a stable name to call and this stays true if that changes.
func (s *Scheduler) Reload(context.Context) error { return nil }
