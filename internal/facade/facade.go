// Package facade is the Public Facade: the thin operation surface meant to
// be mounted behind an external HTTP layer. It has zero HTTP imports —
// cmd/orchestratord is the only place this repo touches gin — and every
// method here is a direct pass-through to the Store plus the
// detect/trigger/cancel/reload/PTY operations that need more than a
// single query.
package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jsprague84/svrctlrs-sub002/internal/credential"
	"github.com/jsprague84/svrctlrs-sub002/internal/dispatch"
	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
	"github.com/jsprague84/svrctlrs-sub002/internal/render"
	"github.com/jsprague84/svrctlrs-sub002/internal/scheduler"
	"github.com/jsprague84/svrctlrs-sub002/internal/store"
)

// probeDispatchTimeout bounds each connection-test/capability-detection
// command so a hung probe can't block the Facade caller indefinitely.
const probeDispatchTimeout = 10

// probeRendered builds the minimal Rendered the Dispatcher needs for a
// fixed, parameter-free probe command.
func probeRendered(command string) *render.Rendered {
	return &render.Rendered{Command: command, TimeoutSeconds: probeDispatchTimeout}
}

// runner is the Facade's view of the Executor, for trigger_manual_run and
// cancel_run.
type runner interface {
	Execute(ctx context.Context, jobTemplateID, serverID int64, trigger model.Trigger, jobScheduleID *int64, overrides map[string]string) (int64, error)
	Cancel(runID int64) bool
}

// Facade wires the Store, Executor, Scheduler and Dispatcher into the
// operation surface named in the spec's Public Facade section.
type Facade struct {
	store       *store.Store
	executor    runner
	scheduler   *scheduler.Scheduler
	dispatcher  *dispatch.Dispatcher
	credentials credential.Resolver
}

func New(st *store.Store, exec runner, sched *scheduler.Scheduler, disp *dispatch.Dispatcher, resolver credential.Resolver) *Facade {
	return &Facade{store: st, executor: exec, scheduler: sched, dispatcher: disp, credentials: resolver}
}

// --- Credential ---

func (f *Facade) CreateCredential(ctx context.Context, c *model.Credential) (*model.Credential, error) {
	return f.store.CreateCredential(ctx, c)
}

func (f *Facade) DeleteCredential(ctx context.Context, id int64) error {
	return f.store.DeleteCredential(ctx, id)
}

func (f *Facade) ListCredentials(ctx context.Context) ([]model.Credential, error) {
	return f.store.ListCredentials(ctx)
}

// --- Tag ---

func (f *Facade) CreateTag(ctx context.Context, t *model.Tag) (*model.Tag, error) {
	return f.store.CreateTag(ctx, t)
}

func (f *Facade) DeleteTag(ctx context.Context, id int64) error {
	return f.store.DeleteTag(ctx, id)
}

func (f *Facade) ListTags(ctx context.Context) ([]model.Tag, error) {
	return f.store.ListTags(ctx)
}

// --- Server ---

func (f *Facade) CreateServer(ctx context.Context, srv *model.Server) (*model.Server, error) {
	return f.store.CreateServer(ctx, srv)
}

func (f *Facade) UpdateServer(ctx context.Context, srv *model.Server) (*model.Server, error) {
	return f.store.UpdateServer(ctx, srv)
}

func (f *Facade) DeleteServer(ctx context.Context, id int64) error {
	return f.store.DeleteServer(ctx, id)
}

func (f *Facade) ListServers(ctx context.Context, enabledOnly bool) ([]model.Server, error) {
	return f.store.ListServers(ctx, enabledOnly)
}

func (f *Facade) GetServer(ctx context.Context, id int64) (*model.Server, error) {
	return f.store.GetServer(ctx, id)
}

// --- JobType ---

func (f *Facade) CreateJobType(ctx context.Context, jt *model.JobType) (*model.JobType, error) {
	return f.store.CreateJobType(ctx, jt)
}

func (f *Facade) ListJobTypes(ctx context.Context) ([]model.JobType, error) {
	return f.store.ListJobTypes(ctx)
}

// --- CommandTemplate ---

func (f *Facade) CreateCommandTemplate(ctx context.Context, t *model.CommandTemplate) (*model.CommandTemplate, error) {
	return f.store.CreateCommandTemplate(ctx, t)
}

func (f *Facade) DeleteCommandTemplate(ctx context.Context, id int64) error {
	return f.store.DeleteCommandTemplate(ctx, id)
}

func (f *Facade) ListCommandTemplatesByJobType(ctx context.Context, jobTypeID int64) ([]model.CommandTemplate, error) {
	return f.store.ListCommandTemplatesByJobType(ctx, jobTypeID)
}

// --- JobTemplate / JobTemplateStep ---

func (f *Facade) CreateJobTemplate(ctx context.Context, t *model.JobTemplate, steps []model.JobTemplateStep) (*model.JobTemplate, []model.JobTemplateStep, error) {
	return f.store.CreateJobTemplate(ctx, t, steps)
}

func (f *Facade) DeleteJobTemplate(ctx context.Context, id int64) error {
	return f.store.DeleteJobTemplate(ctx, id)
}

func (f *Facade) ListJobTemplates(ctx context.Context) ([]model.JobTemplate, error) {
	return f.store.ListJobTemplates(ctx)
}

// --- JobSchedule ---

func (f *Facade) CreateSchedule(ctx context.Context, sch *model.JobSchedule, nextRunAt time.Time) (*model.JobSchedule, error) {
	return f.store.CreateSchedule(ctx, sch, nextRunAt)
}

func (f *Facade) SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error {
	return f.store.SetScheduleEnabled(ctx, id, enabled)
}

func (f *Facade) DeleteSchedule(ctx context.Context, id int64) error {
	return f.store.DeleteSchedule(ctx, id)
}

func (f *Facade) ListSchedules(ctx context.Context, enabledOnly bool) ([]model.JobSchedule, error) {
	return f.store.ListSchedules(ctx, enabledOnly)
}

// --- NotificationChannel / NotificationPolicy ---

func (f *Facade) CreateChannel(ctx context.Context, c *model.NotificationChannel) (*model.NotificationChannel, error) {
	return f.store.CreateChannel(ctx, c)
}

func (f *Facade) ListChannels(ctx context.Context, ids []int64) ([]model.NotificationChannel, error) {
	return f.store.ListChannels(ctx, ids)
}

func (f *Facade) CreatePolicy(ctx context.Context, p *model.NotificationPolicy) (*model.NotificationPolicy, error) {
	return f.store.CreatePolicy(ctx, p)
}

func (f *Facade) ListPolicies(ctx context.Context) ([]model.NotificationPolicy, error) {
	return f.store.ListPolicies(ctx)
}

// --- Settings ---

func (f *Facade) SetSetting(ctx context.Context, key, value string, valueType model.SettingValueType) error {
	return f.store.SetSetting(ctx, key, value, valueType)
}

func (f *Facade) ListSettings(ctx context.Context) ([]model.Setting, error) {
	return f.store.ListSettings(ctx)
}

// --- JobRun read surface ---

func (f *Facade) GetJobRun(ctx context.Context, id int64) (*model.JobRun, error) {
	return f.store.GetJobRun(ctx, id)
}

func (f *Facade) ListJobRuns(ctx context.Context, jobTemplateID *int64, limit int) ([]model.JobRun, error) {
	return f.store.ListJobRuns(ctx, jobTemplateID, limit)
}

// ConnectionTestResult is the reply shape for TestServerConnection.
type ConnectionTestResult struct {
	OK       bool
	Message  string
	Duration time.Duration
}

// TestServerConnection runs a trivial `true` command on the server (over
// SSH for remote servers, as a local process for local ones) and reports
// whether it exited 0.
func (f *Facade) TestServerConnection(ctx context.Context, serverID int64) (*ConnectionTestResult, error) {
	server, err := f.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	mat, err := f.resolveCredential(ctx, server)
	if err != nil {
		return &ConnectionTestResult{OK: false, Message: err.Error()}, nil
	}

	started := time.Now()
	res, err := f.dispatcher.Dispatch(ctx, server, mat, probeRendered("true"))
	duration := time.Since(started)
	if err != nil {
		return &ConnectionTestResult{OK: false, Message: err.Error(), Duration: duration}, nil
	}
	if res.ExitCode != 0 {
		return &ConnectionTestResult{OK: false, Message: fmt.Sprintf("probe exited %d", res.ExitCode), Duration: duration}, nil
	}
	return &ConnectionTestResult{OK: true, Message: "ok", Duration: duration}, nil
}

// DetectServerCapabilities runs a fixed probe sequence against serverID and
// upserts the results as ServerCapability rows.
func (f *Facade) DetectServerCapabilities(ctx context.Context, serverID int64) ([]model.ServerCapability, error) {
	server, err := f.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	mat, err := f.resolveCredential(ctx, server)
	if err != nil {
		return nil, err
	}

	var detected []model.ServerCapability
	for _, p := range detectionProbes {
		res, err := f.dispatcher.Dispatch(ctx, server, mat, probeRendered(p.command))
		available := err == nil && res != nil && res.ExitCode == 0
		detectedCap := model.ServerCapability{
			ServerID:   serverID,
			Capability: p.capability,
			Available:  available,
			DetectedAt: time.Now(),
		}
		if err := f.store.UpsertServerCapability(ctx, &detectedCap); err != nil {
			return nil, err
		}
		detected = append(detected, detectedCap)
	}
	return detected, nil
}

// detectionProbes is the fixed probe sequence named in the Capability Gate
// spec: shell presence for docker/systemd, and for the apt-get and yum
// package managers.
var detectionProbes = []struct {
	capability string
	command    string
}{
	{"docker", "command -v docker"},
	{"systemd", "command -v systemctl"},
	{"apt", "command -v apt-get"},
	{"yum", "command -v yum"},
}

// TriggerManualRun routes a manual execution through the Executor,
// independent of any JobSchedule.
func (f *Facade) TriggerManualRun(ctx context.Context, jobTemplateID, serverID int64, overrides map[string]string) (int64, error) {
	return f.executor.Execute(ctx, jobTemplateID, serverID, model.TriggerManual, nil, overrides)
}

// CancelRun signals the Executor to cancel an in-flight run. Idempotent:
// cancelling an already-finished or unknown run simply returns false.
func (f *Facade) CancelRun(runID int64) bool {
	return f.executor.Cancel(runID)
}

// ReloadSchedules instructs the Scheduler to re-read JobSchedule rows on
// its next tick.
func (f *Facade) ReloadSchedules(ctx context.Context) error {
	return f.scheduler.Reload(ctx)
}

// OpenPTYSession hands off to the Dispatcher's interactive path, local or
// remote depending on the target server.
func (f *Facade) OpenPTYSession(ctx context.Context, serverID int64, cols, rows int) (*model.PtySession, *dispatch.Session, error) {
	server, err := f.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, nil, err
	}

	session := &model.PtySession{
		ID:        uuid.New().String(),
		ServerID:  serverID,
		State:     model.PtyConnecting,
		StartedAt: time.Now(),
	}

	if server.IsLocal {
		ptySession, err := f.dispatcher.OpenLocalPTY(cols, rows)
		if err != nil {
			session.State = model.PtyClosed
			return session, nil, err
		}
		session.State = model.PtyOpen
		return session, ptySession, nil
	}

	mat, err := f.resolveCredential(ctx, server)
	if err != nil {
		session.State = model.PtyClosed
		return session, nil, err
	}
	ptySession, err := f.dispatcher.OpenRemotePTY(server, mat, cols, rows)
	if err != nil {
		session.State = model.PtyClosed
		return session, nil, err
	}
	session.State = model.PtyOpen
	return session, ptySession, nil
}

func (f *Facade) resolveCredential(ctx context.Context, server *model.Server) (*credential.Material, error) {
	if server.IsLocal || server.CredentialID == nil {
		return nil, nil
	}
	cred, err := f.store.GetCredential(ctx, *server.CredentialID)
	if err != nil {
		return nil, err
	}
	mat, err := f.credentials.Resolve(cred)
	if err != nil {
		return nil, orcherr.DispatchFailed(err.Error())
	}
	return &mat, nil
}
