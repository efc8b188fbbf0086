package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
)

type fakeStore struct {
	policies map[int64]*model.NotificationPolicy
	listPolicies []model.NotificationPolicy
	jobTypes map[int64]*model.JobType
	channels map[int64]model.NotificationChannel
	taggedServerIDs []int64
	counted  int
	logged   []*model.NotificationLog
	outcome  struct {
		runID int64
		sent  bool
		err   *string
	}
}

func (f *fakeStore) GetPolicy(ctx context.Context, id int64) (*model.NotificationPolicy, error) {
	return f.policies[id], nil
}

func (f *fakeStore) ListPolicies(ctx context.Context) ([]model.NotificationPolicy, error) {
	return f.listPolicies, nil
}

func (f *fakeStore) GetJobType(ctx context.Context, id int64) (*model.JobType, error) {
	return f.jobTypes[id], nil
}

func (f *fakeStore) ListChannels(ctx context.Context, ids []int64) ([]model.NotificationChannel, error) {
	var out []model.NotificationChannel
	for _, id := range ids {
		out = append(out, f.channels[id])
	}
	return out, nil
}

func (f *fakeStore) ServersByTagNames(ctx context.Context, names []string) ([]int64, error) {
	return f.taggedServerIDs, nil
}

func (f *fakeStore) CountNotificationsSince(ctx context.Context, policyID int64, since time.Time) (int, error) {
	return f.counted, nil
}

func (f *fakeStore) LogNotification(ctx context.Context, l *model.NotificationLog) (*model.NotificationLog, error) {
	f.logged = append(f.logged, l)
	return l, nil
}

func (f *fakeStore) RecordNotificationOutcome(ctx context.Context, runID int64, sent bool, errText *string) error {
	f.outcome.runID = runID
	f.outcome.sent = sent
	f.outcome.err = errText
	return nil
}

func TestFiltersMatch_NoFiltersAlwaysMatches(t *testing.T) {
	n := New(&fakeStore{}, nil)
	policy := &model.NotificationPolicy{}
	run := &model.JobRun{ServerID: 7}
	tmpl := &model.JobTemplate{JobTypeID: 1}

	matched, err := n.filtersMatch(context.Background(), policy, run, tmpl)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestFiltersMatch_JobTypeMismatch(t *testing.T) {
	st := &fakeStore{jobTypes: map[int64]*model.JobType{1: {Name: "backup"}}}
	n := New(st, nil)
	wanted := "deploy"
	policy := &model.NotificationPolicy{Filters: model.PolicyFilters{JobType: &wanted}}
	run := &model.JobRun{ServerID: 7}
	tmpl := &model.JobTemplate{JobTypeID: 1}

	matched, err := n.filtersMatch(context.Background(), policy, run, tmpl)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestFiltersMatch_JobTypeExactMatch(t *testing.T) {
	st := &fakeStore{jobTypes: map[int64]*model.JobType{1: {Name: "backup"}}}
	n := New(st, nil)
	wanted := "backup"
	policy := &model.NotificationPolicy{Filters: model.PolicyFilters{JobType: &wanted}}
	run := &model.JobRun{ServerID: 7}
	tmpl := &model.JobTemplate{JobTypeID: 1}

	matched, err := n.filtersMatch(context.Background(), policy, run, tmpl)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestFiltersMatch_ServerIDsExcludesOthers(t *testing.T) {
	n := New(&fakeStore{}, nil)
	policy := &model.NotificationPolicy{Filters: model.PolicyFilters{ServerIDs: []int64{1, 2}}}
	run := &model.JobRun{ServerID: 3}
	tmpl := &model.JobTemplate{}

	matched, err := n.filtersMatch(context.Background(), policy, run, tmpl)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestFiltersMatch_TagNamesResolvedViaStore(t *testing.T) {
	st := &fakeStore{taggedServerIDs: []int64{5, 9}}
	n := New(st, nil)
	policy := &model.NotificationPolicy{Filters: model.PolicyFilters{TagNames: []string{"prod"}}}
	run := &model.JobRun{ServerID: 9}
	tmpl := &model.JobTemplate{}

	matched, err := n.filtersMatch(context.Background(), policy, run, tmpl)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestCheckThrottle_NoLimitAlwaysAllowed(t *testing.T) {
	n := New(&fakeStore{}, nil)
	allowed, err := n.checkThrottle(context.Background(), &model.NotificationPolicy{})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckThrottle_FallsBackToStoreCountWithoutRedisSink(t *testing.T) {
	max := 2
	st := &fakeStore{counted: 2}
	n := New(st, nil)
	allowed, err := n.checkThrottle(context.Background(), &model.NotificationPolicy{MaxPerHour: &max})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRender_PicksFailureSpecificTemplate(t *testing.T) {
	n := New(&fakeStore{}, nil)
	policy := &model.NotificationPolicy{
		TitleTemplate:        "{{job_template_name}}: {{status}}",
		BodyTemplate:         "generic",
		FailureTitleTemplate: "ALERT: {{job_template_name}} failed",
		FailureBodyTemplate:  "exit {{exit_code}}",
	}
	exitCode := 1
	run := &model.JobRun{Status: model.RunStatusFailure, ExitCode: &exitCode}
	tmpl := &model.JobTemplate{DisplayName: "Nightly Backup"}

	title, body, err := n.render(policy, run, tmpl)
	require.NoError(t, err)
	assert.Equal(t, "ALERT: Nightly Backup failed", title)
	assert.Equal(t, "exit 1", body)
}

func TestRender_IncludeOutputTruncatesLines(t *testing.T) {
	n := New(&fakeStore{}, nil)
	policy := &model.NotificationPolicy{
		TitleTemplate:  "t",
		BodyTemplate:   "{{output}}",
		IncludeOutput:  true,
		OutputMaxLines: 2,
	}
	run := &model.JobRun{Status: model.RunStatusSuccess, Output: "one\ntwo\nthree\nfour"}
	tmpl := &model.JobTemplate{}

	_, body, err := n.render(policy, run, tmpl)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n... (truncated)", body)
}

func TestTruncateLines_UnderLimitUnchanged(t *testing.T) {
	assert.Equal(t, "a\nb", truncateLines("a\nb", 5))
}

func TestTruncateLines_ZeroMaxMeansUnlimited(t *testing.T) {
	assert.Equal(t, "a\nb\nc", truncateLines("a\nb\nc", 0))
}

func TestNotifyRun_NoPolicyIsNoop(t *testing.T) {
	st := &fakeStore{}
	n := New(st, nil)
	run := &model.JobRun{ID: 1, Status: model.RunStatusFailure}
	tmpl := &model.JobTemplate{}

	n.NotifyRun(context.Background(), run, tmpl)
	assert.Nil(t, st.logged)
	assert.Zero(t, st.outcome.runID)
}

func TestNotifyRun_PolicyNotMatchingStatusIsNoop(t *testing.T) {
	policyID := int64(1)
	st := &fakeStore{policies: map[int64]*model.NotificationPolicy{
		1: {ID: 1, OnSuccess: true},
	}}
	n := New(st, nil)
	run := &model.JobRun{ID: 1, Status: model.RunStatusFailure}
	tmpl := &model.JobTemplate{NotificationPolicyID: &policyID}

	n.NotifyRun(context.Background(), run, tmpl)
	assert.Zero(t, st.outcome.runID)
}

func TestNotifyRun_GlobalPolicyAppliesWithNoDirectPolicy(t *testing.T) {
	st := &fakeStore{
		listPolicies: []model.NotificationPolicy{
			{ID: 5, OnFailure: true},
		},
	}
	n := New(st, nil)
	run := &model.JobRun{ID: 9, Status: model.RunStatusFailure}
	tmpl := &model.JobTemplate{}

	n.NotifyRun(context.Background(), run, tmpl)
	assert.Equal(t, int64(9), st.outcome.runID)
	assert.False(t, st.outcome.sent)
}

func TestNotifyRun_DirectAndGlobalPoliciesBothApplyWithoutDuplication(t *testing.T) {
	policyID := int64(1)
	st := &fakeStore{
		policies: map[int64]*model.NotificationPolicy{
			1: {ID: 1, OnFailure: true},
		},
		listPolicies: []model.NotificationPolicy{
			{ID: 1, OnFailure: true}, // also returned globally; must not be applied twice
			{ID: 2, OnFailure: true},
			{ID: 3, OnSuccess: true}, // doesn't match this run's status
		},
	}
	n := New(st, nil)
	run := &model.JobRun{ID: 9, Status: model.RunStatusFailure}
	tmpl := &model.JobTemplate{NotificationPolicyID: &policyID}

	candidates := n.candidatePolicies(context.Background(), run, tmpl)
	require.Len(t, candidates, 2)
	assert.Equal(t, int64(1), candidates[0].ID)
	assert.Equal(t, int64(2), candidates[1].ID)
}
