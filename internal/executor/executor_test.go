package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jsprague84/svrctlrs-sub002/internal/dispatch"
	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func TestStatusFor_SuccessOnZeroExitNoError(t *testing.T) {
	assert.Equal(t, model.RunStatusSuccess, statusFor(&dispatch.Result{ExitCode: 0}, nil))
}

func TestStatusFor_FailureOnNonZeroExit(t *testing.T) {
	assert.Equal(t, model.RunStatusFailure, statusFor(&dispatch.Result{ExitCode: 1}, nil))
}

func TestStatusFor_TimeoutPropagatesKind(t *testing.T) {
	assert.Equal(t, model.RunStatusTimeout, statusFor(&dispatch.Result{TimedOut: true}, orcherr.Timeout()))
}

func TestStatusFor_CancelledPropagatesKind(t *testing.T) {
	assert.Equal(t, model.RunStatusCancelled, statusFor(nil, orcherr.Cancelled()))
}

func TestStatusFor_DispatchFailedIsFailure(t *testing.T) {
	assert.Equal(t, model.RunStatusFailure, statusFor(nil, orcherr.DispatchFailed("connection refused")))
}
