package model

import "time"

// CredentialKind enumerates the supported secret shapes a Credential can hold.
type CredentialKind string

const (
	CredentialKindSSHKey      CredentialKind = "ssh_key"
	CredentialKindAPIToken    CredentialKind = "api_token"
	CredentialKindPassword    CredentialKind = "password"
	CredentialKindCertificate CredentialKind = "certificate"
)

// Credential is an opaque secret bundle. The core never interprets Value
// beyond handing it to the Dispatcher; encryption at rest is a collaborator.
type Credential struct {
	ID        int64             `db:"id" json:"id"`
	Name      string            `db:"name" json:"name"`
	Kind      CredentialKind    `db:"kind" json:"kind"`
	Value     string            `db:"value" json:"-"`
	Username  *string           `db:"username" json:"username,omitempty"`
	Metadata  map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time         `db:"updated_at" json:"updatedAt"`
}

// Tag groups servers for notification filtering and presentation.
type Tag struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Color       string `db:"color" json:"color"`
	Description string `db:"description" json:"description"`
}

// Server is an execution target, either the local host or a remote SSH host.
type Server struct {
	ID                 int64     `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	IsLocal            bool      `db:"is_local" json:"isLocal"`
	Hostname           *string   `db:"hostname" json:"hostname,omitempty"`
	Port               int       `db:"port" json:"port"`
	SSHUsername        *string   `db:"ssh_username" json:"sshUsername,omitempty"`
	CredentialID       *int64    `db:"credential_id" json:"credentialId,omitempty"`
	Enabled            bool      `db:"enabled" json:"enabled"`
	OSType             string    `db:"os_type" json:"osType,omitempty"`
	OSDistro           string    `db:"os_distro" json:"osDistro,omitempty"`
	PackageManager     string    `db:"package_manager" json:"packageManager,omitempty"`
	DockerAvailable    bool      `db:"docker_available" json:"dockerAvailable"`
	SystemdAvailable   bool      `db:"systemd_available" json:"systemdAvailable"`
	LastSeenAt         *time.Time `db:"last_seen_at" json:"lastSeenAt,omitempty"`
	LastError          *string   `db:"last_error" json:"lastError,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time `db:"updated_at" json:"updatedAt"`
}

// Validate enforces the is_local XOR (hostname & username) invariant.
func (s *Server) Validate() error {
	hasRemote := s.Hostname != nil && *s.Hostname != "" && s.SSHUsername != nil && *s.SSHUsername != ""
	if s.IsLocal == hasRemote {
		return errInvalidServerTarget
	}
	return nil
}

// ServerCapability records a detected facility on a server.
type ServerCapability struct {
	ServerID    int64     `db:"server_id" json:"serverId"`
	Capability  string    `db:"capability" json:"capability"`
	Available   bool      `db:"available" json:"available"`
	Version     *string   `db:"version" json:"version,omitempty"`
	DetectedAt  time.Time `db:"detected_at" json:"detectedAt"`
}

// JobType is a top-level category grouping CommandTemplates.
type JobType struct {
	ID                   int64    `db:"id" json:"id"`
	Name                 string   `db:"name" json:"name"`
	DisplayName          string   `db:"display_name" json:"displayName"`
	RequiresCapabilities []string `db:"requires_capabilities" json:"requiresCapabilities"`
	Enabled              bool     `db:"enabled" json:"enabled"`
}

// OutputFormat is how a CommandTemplate's output should be interpreted for display.
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// OSFilter restricts a CommandTemplate to servers matching a distro/package-manager set.
type OSFilter struct {
	Distro      []string `json:"distro,omitempty"`
	PkgManager  []string `json:"pkgManager,omitempty"`
}

// Specificity ranks a filter for tie-breaking: both fields set > one set > none.
func (f OSFilter) Specificity() int {
	n := 0
	if len(f.Distro) > 0 {
		n++
	}
	if len(f.PkgManager) > 0 {
		n++
	}
	return n
}

// TemplateParameter declares one placeholder a CommandTemplate references,
// and whether the Template Renderer must reject rendering when it's absent.
type TemplateParameter struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// CommandTemplate is a reusable command string with placeholders and filters.
type CommandTemplate struct {
	ID                   int64               `db:"id" json:"id"`
	JobTypeID            int64               `db:"job_type_id" json:"jobTypeId"`
	Name                 string              `db:"name" json:"name"`
	CommandString        string              `db:"command_string" json:"commandString"`
	RequiredCapabilities []string            `db:"required_capabilities" json:"requiredCapabilities"`
	OSFilter             OSFilter            `db:"os_filter" json:"osFilter"`
	TimeoutSeconds       int                 `db:"timeout_seconds" json:"timeoutSeconds"`
	WorkingDirectory     *string             `db:"working_directory" json:"workingDirectory,omitempty"`
	Environment          map[string]string   `db:"environment" json:"environment"`
	OutputFormat         OutputFormat        `db:"output_format" json:"outputFormat"`
	NotifyOnSuccess      bool                `db:"notify_on_success" json:"notifyOnSuccess"`
	NotifyOnFailure      bool                `db:"notify_on_failure" json:"notifyOnFailure"`
	Parameters           []TemplateParameter `db:"parameters" json:"parameters,omitempty"`
}

// JobTemplate is a user-defined job configuration, simple or composite.
type JobTemplate struct {
	ID                     int64             `db:"id" json:"id"`
	Name                    string            `db:"name" json:"name"`
	DisplayName             string            `db:"display_name" json:"displayName"`
	JobTypeID               int64             `db:"job_type_id" json:"jobTypeId"`
	IsComposite             bool              `db:"is_composite" json:"isComposite"`
	CommandTemplateID       *int64            `db:"command_template_id" json:"commandTemplateId,omitempty"`
	Variables               map[string]string `db:"variables" json:"variables"`
	TimeoutSeconds          int               `db:"timeout_seconds" json:"timeoutSeconds"`
	RetryCount              int               `db:"retry_count" json:"retryCount"`
	RetryDelaySeconds       int               `db:"retry_delay_seconds" json:"retryDelaySeconds"`
	NotifyOnSuccess         bool              `db:"notify_on_success" json:"notifyOnSuccess"`
	NotifyOnFailure         bool              `db:"notify_on_failure" json:"notifyOnFailure"`
	NotificationPolicyID    *int64            `db:"notification_policy_id" json:"notificationPolicyId,omitempty"`
	CreatedAt               time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time         `db:"updated_at" json:"updatedAt"`
}

// Validate enforces the composite/simple invariant. stepCount is the
// caller-supplied count of JobTemplateStep rows (store-side check).
func (t *JobTemplate) Validate(stepCount int) error {
	if t.IsComposite {
		if t.CommandTemplateID != nil {
			return errCompositeHasCommandTemplate
		}
		if stepCount < 1 {
			return errCompositeNoSteps
		}
		return nil
	}
	if t.CommandTemplateID == nil {
		return errSimpleMissingCommandTemplate
	}
	if stepCount != 0 {
		return errSimpleHasSteps
	}
	return nil
}

// JobTemplateStep is one ordered step of a composite JobTemplate.
type JobTemplateStep struct {
	ID                 int64             `db:"id" json:"id"`
	JobTemplateID      int64             `db:"job_template_id" json:"jobTemplateId"`
	StepOrder          int               `db:"step_order" json:"stepOrder"`
	Name               string            `db:"name" json:"name"`
	CommandTemplateID  int64             `db:"command_template_id" json:"commandTemplateId"`
	Variables          map[string]string `db:"variables" json:"variables"`
	ContinueOnFailure  bool              `db:"continue_on_failure" json:"continueOnFailure"`
	TimeoutSeconds     *int              `db:"timeout_seconds" json:"timeoutSeconds,omitempty"`
}

// ScheduleStatus is the last recorded outcome of a JobSchedule's fire.
type ScheduleStatus string

const (
	ScheduleStatusSuccess ScheduleStatus = "success"
	ScheduleStatusFailure ScheduleStatus = "failure"
	ScheduleStatusTimeout ScheduleStatus = "timeout"
	ScheduleStatusSkipped ScheduleStatus = "skipped"
)

// JobSchedule binds a JobTemplate to a Server via a 6-field cron expression.
type JobSchedule struct {
	ID                 int64           `db:"id" json:"id"`
	Name               string          `db:"name" json:"name"`
	JobTemplateID      int64           `db:"job_template_id" json:"jobTemplateId"`
	ServerID           int64           `db:"server_id" json:"serverId"`
	Schedule           string          `db:"schedule" json:"schedule"`
	Enabled            bool            `db:"enabled" json:"enabled"`
	TimeoutOverride    *int            `db:"timeout_override" json:"timeoutOverride,omitempty"`
	RetryOverride      *int            `db:"retry_override" json:"retryOverride,omitempty"`
	NotifyOverride     *bool           `db:"notify_override" json:"notifyOverride,omitempty"`
	LastRunAt          *time.Time      `db:"last_run_at" json:"lastRunAt,omitempty"`
	LastRunStatus      *ScheduleStatus `db:"last_run_status" json:"lastRunStatus,omitempty"`
	LastError          *string         `db:"last_error" json:"lastError,omitempty"`
	NextRunAt          *time.Time      `db:"next_run_at" json:"nextRunAt,omitempty"`
	SuccessCount       int             `db:"success_count" json:"successCount"`
	FailureCount       int             `db:"failure_count" json:"failureCount"`
	LastManualRunAt    *time.Time      `db:"last_manual_run_at" json:"lastManualRunAt,omitempty"`
	ManualRunCount     int             `db:"manual_run_count" json:"manualRunCount"`
}

// RunStatus is the vocabulary of JobRun.status. Exactly these five strings
// are ever written; UI layers may present a richer "partial_success" label
// over a failure row carrying Metadata["partial_success"]=true.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailure   RunStatus = "failure"
	RunStatusTimeout   RunStatus = "timeout"
	RunStatusCancelled RunStatus = "cancelled"
)

func (s RunStatus) Terminal() bool { return s != RunStatusRunning }

// Trigger names how a JobRun was created.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerRetry     Trigger = "retry"
)

// JobRun is one execution attempt of a JobTemplate on a Server.
type JobRun struct {
	ID                 int64                  `db:"id" json:"id"`
	JobScheduleID       *int64                 `db:"job_schedule_id" json:"jobScheduleId,omitempty"`
	JobTemplateID        int64                  `db:"job_template_id" json:"jobTemplateId"`
	ServerID             int64                  `db:"server_id" json:"serverId"`
	Status               RunStatus              `db:"status" json:"status"`
	StartedAt            time.Time              `db:"started_at" json:"startedAt"`
	FinishedAt           *time.Time             `db:"finished_at" json:"finishedAt,omitempty"`
	DurationMs           *int64                 `db:"duration_ms" json:"durationMs,omitempty"`
	ExitCode             *int                   `db:"exit_code" json:"exitCode,omitempty"`
	Output               string                 `db:"output" json:"output"`
	Error                string                 `db:"error" json:"error"`
	RenderedCommand      string                 `db:"rendered_command" json:"renderedCommand"`
	RetryAttempt         int                    `db:"retry_attempt" json:"retryAttempt"`
	IsRetry              bool                   `db:"is_retry" json:"isRetry"`
	RetryOfRunID         *int64                 `db:"retry_of_run_id" json:"retryOfRunId,omitempty"`
	NotificationSent     bool                   `db:"notification_sent" json:"notificationSent"`
	NotificationError    *string                `db:"notification_error" json:"notificationError,omitempty"`
	Trigger              Trigger                `db:"trigger" json:"trigger"`
	Metadata             map[string]any         `db:"metadata" json:"metadata,omitempty"`
}

// Finish computes the terminal fields. Returns false if the run is
// already terminal (monotonic lifecycle enforcement belongs to the Store,
// this is the pure computation it relies on).
func (r *JobRun) Finish(now time.Time, status RunStatus, exitCode *int, output, errText string) bool {
	if r.Status.Terminal() {
		return false
	}
	r.Status = status
	r.FinishedAt = &now
	d := now.Sub(r.StartedAt).Milliseconds()
	r.DurationMs = &d
	r.ExitCode = exitCode
	r.Output = output
	r.Error = errText
	return true
}

// StepExecutionResult is a per-step record for composite JobRuns.
type StepExecutionResult struct {
	ID                 int64      `db:"id" json:"id"`
	JobRunID            int64      `db:"job_run_id" json:"jobRunId"`
	StepOrder           int        `db:"step_order" json:"stepOrder"`
	StepName            string     `db:"step_name" json:"stepName"`
	CommandTemplateID   int64      `db:"command_template_id" json:"commandTemplateId"`
	Status              RunStatus  `db:"status" json:"status"`
	StartedAt           time.Time  `db:"started_at" json:"startedAt"`
	FinishedAt          *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	DurationMs          *int64     `db:"duration_ms" json:"durationMs,omitempty"`
	ExitCode            *int       `db:"exit_code" json:"exitCode,omitempty"`
	Output              string     `db:"output" json:"output"`
	Error               string     `db:"error" json:"error"`
}

// ChannelKind enumerates supported notification transports.
type ChannelKind string

const (
	ChannelKindGotify  ChannelKind = "gotify"
	ChannelKindNtfy    ChannelKind = "ntfy"
	ChannelKindEmail   ChannelKind = "email"
	ChannelKindSlack   ChannelKind = "slack"
	ChannelKindDiscord ChannelKind = "discord"
	ChannelKindWebhook ChannelKind = "webhook"
)

// NotificationChannel is a delivery destination with opaque per-kind config.
type NotificationChannel struct {
	ID               int64          `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	Kind             ChannelKind    `db:"kind" json:"kind"`
	Config           map[string]any `db:"config" json:"config"`
	Enabled          bool           `db:"enabled" json:"enabled"`
	DefaultPriority  int            `db:"default_priority" json:"defaultPriority"`
	LastTestAt       *time.Time     `db:"last_test_at" json:"lastTestAt,omitempty"`
	LastTestSuccess  *bool          `db:"last_test_success" json:"lastTestSuccess,omitempty"`
}

// PolicyFilters narrow which runs a NotificationPolicy applies to.
type PolicyFilters struct {
	JobType   *string  `json:"jobType,omitempty"`
	ServerIDs []int64  `json:"serverIds,omitempty"`
	TagNames  []string `json:"tagNames,omitempty"`
}

// NotificationPolicy determines which runs produce which messages to which channels.
type NotificationPolicy struct {
	ID                    int64         `db:"id" json:"id"`
	Name                  string        `db:"name" json:"name"`
	OnSuccess             bool          `db:"on_success" json:"onSuccess"`
	OnFailure             bool          `db:"on_failure" json:"onFailure"`
	OnTimeout             bool          `db:"on_timeout" json:"onTimeout"`
	Filters               PolicyFilters `db:"filters" json:"filters"`
	MinSeverity           int           `db:"min_severity" json:"minSeverity"`
	MaxPerHour            *int          `db:"max_per_hour" json:"maxPerHour,omitempty"`
	TitleTemplate         string        `db:"title_template" json:"titleTemplate"`
	BodyTemplate          string        `db:"body_template" json:"bodyTemplate"`
	SuccessTitleTemplate  string        `db:"success_title_template" json:"successTitleTemplate,omitempty"`
	SuccessBodyTemplate   string        `db:"success_body_template" json:"successBodyTemplate,omitempty"`
	FailureTitleTemplate  string        `db:"failure_title_template" json:"failureTitleTemplate,omitempty"`
	FailureBodyTemplate   string        `db:"failure_body_template" json:"failureBodyTemplate,omitempty"`
	IncludeOutput         bool          `db:"include_output" json:"includeOutput"`
	OutputMaxLines        int           `db:"output_max_lines" json:"outputMaxLines"`
	ChannelIDs            []int64       `db:"channel_ids" json:"channelIds"`
}

// Matches reports whether the policy's on_* flags accept this terminal status.
func (p *NotificationPolicy) Matches(status RunStatus) bool {
	switch status {
	case RunStatusSuccess:
		return p.OnSuccess
	case RunStatusFailure, RunStatusCancelled:
		return p.OnFailure
	case RunStatusTimeout:
		return p.OnTimeout
	default:
		return false
	}
}

// NotificationLog is the audit trail of delivery attempts.
type NotificationLog struct {
	ID           int64     `db:"id" json:"id"`
	ChannelID    int64     `db:"channel_id" json:"channelId"`
	PolicyID     *int64    `db:"policy_id" json:"policyId,omitempty"`
	JobRunID     *int64    `db:"job_run_id" json:"jobRunId,omitempty"`
	Title        string    `db:"title" json:"title"`
	Body         string    `db:"body" json:"body"`
	Priority     int       `db:"priority" json:"priority"`
	Success      bool      `db:"success" json:"success"`
	ErrorMessage *string   `db:"error_message" json:"errorMessage,omitempty"`
	RetryCount   int       `db:"retry_count" json:"retryCount"`
	SentAt       time.Time `db:"sent_at" json:"sentAt"`
}

// SettingValueType tags how Settings.Value should be parsed.
type SettingValueType string

const (
	SettingTypeString  SettingValueType = "string"
	SettingTypeInteger SettingValueType = "integer"
	SettingTypeBoolean SettingValueType = "boolean"
	SettingTypeJSON    SettingValueType = "json"
)

// Setting is one row of the tunables table.
type Setting struct {
	Key         string           `db:"key" json:"key"`
	Value       string           `db:"value" json:"value"`
	ValueType   SettingValueType `db:"value_type" json:"valueType"`
	Description string           `db:"description" json:"description"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updatedAt"`
}

// PtySessionState is the lifecycle of an interactive PTY session.
type PtySessionState string

const (
	PtyIdle       PtySessionState = "idle"
	PtyConnecting PtySessionState = "connecting"
	PtyOpen       PtySessionState = "open"
	PtyClosed     PtySessionState = "closed"
)

// PtySession is ephemeral and never persisted as a JobRun.
type PtySession struct {
	ID        string
	ServerID  int64
	State     PtySessionState
	StartedAt time.Time
}
