// Package executor is the Executor component: it runs a JobTemplate
// against a Server, simple or composite, gated by a concurrency semaphore
// and the Capability Gate, and hands the terminal JobRun to the Notifier.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jsprague84/svrctlrs-sub002/internal/archive"
	"github.com/jsprague84/svrctlrs-sub002/internal/capability"
	"github.com/jsprague84/svrctlrs-sub002/internal/credential"
	"github.com/jsprague84/svrctlrs-sub002/internal/dispatch"
	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
	"github.com/jsprague84/svrctlrs-sub002/internal/render"
	"github.com/jsprague84/svrctlrs-sub002/internal/store"
)

// Notifier is the Executor's view of the Notifier: hand off a terminal run
// and let it decide whether a policy matches. Defined here (not imported
// from internal/notify) to keep the dependency direction one-way.
type Notifier interface {
	NotifyRun(ctx context.Context, run *model.JobRun, tmpl *model.JobTemplate)
}

// Executor runs JobTemplates against Servers.
type Executor struct {
	store       *store.Store
	dispatcher  *dispatch.Dispatcher
	credentials credential.Resolver
	notifier    Notifier
	archiver    *archive.Archiver

	sem           *semaphore.Weighted
	submitTimeout time.Duration

	cancels sync.Map // int64 job_run id -> context.CancelFunc
}

// New builds an Executor. maxConcurrent gates jobs.max_concurrent;
// submitTimeout bounds how long Execute waits for a semaphore slot before
// returning orcherr.Overloaded. archiver may be nil, in which case output
// is always kept inline regardless of size.
func New(st *store.Store, disp *dispatch.Dispatcher, resolver credential.Resolver, notifier Notifier, archiver *archive.Archiver, maxConcurrent int64, submitTimeout time.Duration) *Executor {
	return &Executor{
		store:         st,
		dispatcher:    disp,
		credentials:   resolver,
		notifier:      notifier,
		archiver:      archiver,
		sem:           semaphore.NewWeighted(maxConcurrent),
		submitTimeout: submitTimeout,
	}
}

// Execute runs jobTemplateID against serverID. overrides are the
// caller-supplied variables (manual-trigger form values); they win over
// every other variable source. Returns the id of the run that reached the
// terminal state — the original run, or if it failed and was retried, the
// last retry's run — once that state is reached. The returned error is
// reserved for cases where no run was recorded (overloaded, missing job
// template or server) and for storage errors; every other failure
// (capability mismatch, bad variables, credential or dispatch failure) is
// recorded on the run and, like success, reported via the returned run id
// with a nil error.
func (e *Executor) Execute(ctx context.Context, jobTemplateID, serverID int64, trigger model.Trigger, jobScheduleID *int64, overrides map[string]string) (int64, error) {
	submitCtx, cancelSubmit := context.WithTimeout(ctx, e.submitTimeout)
	defer cancelSubmit()
	if err := e.sem.Acquire(submitCtx, 1); err != nil {
		return 0, orcherr.Overloaded()
	}
	defer e.sem.Release(1)

	tmpl, err := e.store.GetJobTemplate(ctx, jobTemplateID)
	if err != nil {
		return 0, err
	}
	server, err := e.store.GetServer(ctx, serverID)
	if err != nil {
		return 0, err
	}

	run, err := e.store.CreateJobRun(ctx, &model.JobRun{
		JobScheduleID: jobScheduleID,
		JobTemplateID: jobTemplateID,
		ServerID:      serverID,
		StartedAt:     time.Now(),
		Trigger:       trigger,
		IsRetry:       trigger == model.TriggerRetry,
	})
	if err != nil {
		return 0, err
	}

	// runCtx/cancelRun span the whole retry sequence: every retry-created
	// run shares the original's cancellation, so a single registry entry
	// per run id all resolving to the same cancelRun lets Cancel(id) work
	// against any run in the chain, not just the first.
	runCtx, cancelRun := context.WithCancel(ctx)
	registered := []int64{run.ID}
	e.cancels.Store(run.ID, cancelRun)
	register := func(id int64) {
		registered = append(registered, id)
		e.cancels.Store(id, cancelRun)
	}
	defer func() {
		for _, id := range registered {
			e.cancels.Delete(id)
		}
		cancelRun()
	}()

	var final *model.JobRun
	var runErr error
	if tmpl.IsComposite {
		final, runErr = e.executeComposite(runCtx, run, tmpl, server, overrides, 0, register)
	} else {
		final, runErr = e.executeSimple(runCtx, run, tmpl, server, overrides, 0, register)
	}
	if final == nil {
		final = run
	}

	finished, err := e.store.GetJobRun(ctx, final.ID)
	if err == nil && e.notifier != nil {
		e.notifier.NotifyRun(context.WithoutCancel(runCtx), finished, tmpl)
	}

	// A failure already recorded on the run is reported through the run;
	// only a storage error propagates.
	if runErr != nil && !orcherr.Is(runErr, orcherr.KindStorage) {
		runErr = nil
	}
	return final.ID, runErr
}

// executeSimple renders tmpl's CommandTemplate, checks the Capability
// Gate, dispatches, and hands the outcome to finishOrRetry, which spins up
// a new linked JobRun and recurses here when a retry is owed.
func (e *Executor) executeSimple(ctx context.Context, run *model.JobRun, tmpl *model.JobTemplate, server *model.Server, overrides map[string]string, attempt int, register func(int64)) (*model.JobRun, error) {
	cmdTmpl, err := e.store.GetCommandTemplate(ctx, *tmpl.CommandTemplateID)
	if err != nil {
		return run, e.finishWithError(ctx, run, err)
	}

	caps, err := e.store.ListServerCapabilities(ctx, server.ID)
	if err != nil {
		return run, e.finishWithError(ctx, run, err)
	}
	if err := capability.Check(server, caps, cmdTmpl); err != nil {
		return run, e.finishWithError(ctx, run, err)
	}

	vars := render.MergeVars(cmdTmpl.Environment, tmpl.Variables, overrides)
	timeoutOverride := &tmpl.TimeoutSeconds
	rendered, err := render.Render(cmdTmpl, vars, timeoutOverride)
	if err != nil {
		return run, e.finishWithError(ctx, run, err)
	}
	run.RenderedCommand = rendered.Command

	mat, err := e.resolveCredential(ctx, server)
	if err != nil {
		return run, e.finishWithError(ctx, run, err)
	}

	res, dispatchErr := e.dispatcher.Dispatch(ctx, server, mat, rendered)
	status := statusFor(res, dispatchErr)
	errText := ""
	if dispatchErr != nil {
		errText = dispatchErr.Error()
	}
	var exitCode *int
	output := ""
	if res != nil {
		exitCode = &res.ExitCode
		output = res.Output
	}

	next, retry, err := e.finishOrRetry(ctx, run, tmpl, attempt, status, exitCode, output, errText, register)
	if err != nil {
		return next, err
	}
	if !retry {
		return next, nil
	}
	return e.executeSimple(ctx, next, tmpl, server, overrides, attempt+1, register)
}

// executeComposite runs each JobTemplateStep in order, aggregating
// StepExecutionResult rows. A step with ContinueOnFailure=false that fails
// stops the remaining steps; the overall run is recorded failure with
// Metadata["partial_success"]=true when at least one step succeeded before
// the stopping failure. The whole step sequence is retried, as one unit,
// via finishOrRetry the same way a simple job's single dispatch is.
func (e *Executor) executeComposite(ctx context.Context, run *model.JobRun, tmpl *model.JobTemplate, server *model.Server, overrides map[string]string, attempt int, register func(int64)) (*model.JobRun, error) {
	steps, err := e.store.ListJobTemplateSteps(ctx, tmpl.ID)
	if err != nil {
		return run, e.finishWithError(ctx, run, err)
	}

	var status model.RunStatus
	var exitCode *int
	var output, errText string
	anySucceeded := false
	anyFailed := false

stepLoop:
	for _, step := range steps {
		if ctx.Err() != nil {
			status, errText = model.RunStatusCancelled, "cancelled"
			break stepLoop
		}

		cmdTmpl, err := e.store.GetCommandTemplate(ctx, step.CommandTemplateID)
		if err != nil {
			return run, e.finishWithError(ctx, run, err)
		}
		caps, err := e.store.ListServerCapabilities(ctx, server.ID)
		if err != nil {
			return run, e.finishWithError(ctx, run, err)
		}
		if err := capability.Check(server, caps, cmdTmpl); err != nil {
			return run, e.finishWithError(ctx, run, err)
		}

		vars := render.MergeVars(cmdTmpl.Environment, tmpl.Variables, step.Variables, overrides)
		timeout := cmdTmpl.TimeoutSeconds
		if step.TimeoutSeconds != nil {
			timeout = *step.TimeoutSeconds
		}
		rendered, err := render.Render(cmdTmpl, vars, &timeout)
		if err != nil {
			return run, e.finishWithError(ctx, run, err)
		}

		mat, err := e.resolveCredential(ctx, server)
		if err != nil {
			return run, e.finishWithError(ctx, run, err)
		}

		stepRow, err := e.store.CreateStepResult(ctx, &model.StepExecutionResult{
			JobRunID:          run.ID,
			StepOrder:         step.StepOrder,
			StepName:          step.Name,
			CommandTemplateID: step.CommandTemplateID,
			Status:            model.RunStatusRunning,
			StartedAt:         time.Now(),
		})
		if err != nil {
			return run, e.finishWithError(ctx, run, err)
		}

		res, dispatchErr := e.dispatcher.Dispatch(ctx, server, mat, rendered)
		stepStatus := statusFor(res, dispatchErr)
		stepErrText := ""
		if dispatchErr != nil {
			stepErrText = dispatchErr.Error()
		}
		var stepExitCode *int
		stepOutput := ""
		if res != nil {
			stepExitCode = &res.ExitCode
			stepOutput = res.Output
		}
		_ = e.store.FinishStepResult(ctx, stepRow.ID, time.Now(), stepStatus, stepExitCode, stepOutput, stepErrText)

		if stepStatus == model.RunStatusSuccess {
			anySucceeded = true
			continue
		}
		anyFailed = true
		if !step.ContinueOnFailure {
			status, exitCode, output = stepStatus, stepExitCode, stepOutput
			errText = "step " + step.Name + ": " + stepErrText
			break stepLoop
		}
	}

	if status == "" {
		if anyFailed {
			status, errText = model.RunStatusFailure, "one or more steps failed"
		} else {
			status = model.RunStatusSuccess
		}
	}
	if anySucceeded && status != model.RunStatusSuccess {
		if run.Metadata == nil {
			run.Metadata = map[string]any{}
		}
		run.Metadata["partial_success"] = true
	}

	next, retry, err := e.finishOrRetry(ctx, run, tmpl, attempt, status, exitCode, output, errText, register)
	if err != nil {
		return next, err
	}
	if !retry {
		return next, nil
	}
	return e.executeComposite(ctx, next, tmpl, server, overrides, attempt+1, register)
}

func (e *Executor) resolveCredential(ctx context.Context, server *model.Server) (*credential.Material, error) {
	if server.IsLocal || server.CredentialID == nil {
		return nil, nil
	}
	cred, err := e.store.GetCredential(ctx, *server.CredentialID)
	if err != nil {
		return nil, err
	}
	mat, err := e.credentials.Resolve(cred)
	if err != nil {
		return nil, orcherr.DispatchFailed(err.Error())
	}
	return &mat, nil
}

func statusFor(res *dispatch.Result, err error) model.RunStatus {
	switch {
	case orcherr.Is(err, orcherr.KindTimeout):
		return model.RunStatusTimeout
	case orcherr.Is(err, orcherr.KindCancelled):
		return model.RunStatusCancelled
	case err != nil:
		return model.RunStatusFailure
	case res != nil && res.ExitCode != 0:
		return model.RunStatusFailure
	default:
		return model.RunStatusSuccess
	}
}

// offloadOutput replaces run.Output with a head/tail preview and records
// an archive pointer in run.Metadata when the body exceeds the archiver's
// inline threshold. A nil archiver or an offload failure leaves run.Output
// untouched so a storage outage never loses a run's result.
func (e *Executor) offloadOutput(ctx context.Context, run *model.JobRun) {
	if e.archiver == nil || run.Output == "" {
		return
	}
	key := fmt.Sprintf("job_runs/%d/output", run.ID)
	inline, pointer, err := e.archiver.Offload(ctx, key, run.Output)
	if err != nil {
		return
	}
	run.Output = inline
	if pointer != "" {
		if run.Metadata == nil {
			run.Metadata = map[string]any{}
		}
		run.Metadata["output_archive_pointer"] = pointer
	}
}

// finishWithError records run as failed with err's message and returns err
// itself, so callers (Execute) see the original orcherr.Kind rather than a
// generic DispatchFailed.
func (e *Executor) finishWithError(ctx context.Context, run *model.JobRun, err error) error {
	run.Finish(time.Now(), model.RunStatusFailure, nil, "", err.Error())
	if _, finishErr := e.store.FinishJobRun(ctx, run); finishErr != nil {
		return finishErr
	}
	return err
}

// finish records run's terminal state. It never manufactures an error for
// a non-success status: success, failure, timeout and cancelled are all
// equally valid terminal outcomes for a run that completed. The only error
// finish can return is a genuine store failure persisting that outcome.
func (e *Executor) finish(ctx context.Context, run *model.JobRun, status model.RunStatus, exitCode *int, output, errText string) error {
	run.Finish(time.Now(), status, exitCode, output, errText)
	e.offloadOutput(ctx, run)
	_, err := e.store.FinishJobRun(ctx, run)
	return err
}

// finishOrRetry finishes run with its single-attempt outcome, then decides
// whether SPEC_FULL.md's retry rule applies: a non-success, non-cancelled
// status with attempts remaining schedules a new run after
// retry_delay_seconds. The new run is a fresh JobRun row linked back to run
// via RetryOfRunID — run's own terminal status is never mutated. register
// is called with the new run's id so the caller can make it cancellable
// under the same context as the rest of the retry chain.
func (e *Executor) finishOrRetry(ctx context.Context, run *model.JobRun, tmpl *model.JobTemplate, attempt int, status model.RunStatus, exitCode *int, output, errText string, register func(int64)) (*model.JobRun, bool, error) {
	if err := e.finish(ctx, run, status, exitCode, output, errText); err != nil {
		return run, false, err
	}
	if status == model.RunStatusSuccess || status == model.RunStatusCancelled || attempt >= tmpl.RetryCount {
		return run, false, nil
	}

	select {
	case <-time.After(time.Duration(tmpl.RetryDelaySeconds) * time.Second):
	case <-ctx.Done():
		return run, false, nil
	}

	next, err := e.store.CreateJobRun(ctx, &model.JobRun{
		JobScheduleID: run.JobScheduleID,
		JobTemplateID: run.JobTemplateID,
		ServerID:      run.ServerID,
		StartedAt:     time.Now(),
		Trigger:       model.TriggerRetry,
		IsRetry:       true,
		RetryAttempt:  attempt + 1,
		RetryOfRunID:  &run.ID,
	})
	if err != nil {
		return run, false, nil
	}
	register(next.ID)
	return next, true, nil
}
