package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/render"
)

func TestDispatchLocal_Success(t *testing.T) {
	d := New("")
	rendered := &render.Rendered{Command: "echo hello", TimeoutSeconds: 5}
	res, err := d.Dispatch(context.Background(), localServer(), nil, rendered)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "hello")
}

func TestDispatchLocal_NonZeroExit(t *testing.T) {
	d := New("")
	rendered := &render.Rendered{Command: "exit 3", TimeoutSeconds: 5}
	res, err := d.Dispatch(context.Background(), localServer(), nil, rendered)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestDispatchLocal_Timeout(t *testing.T) {
	d := New("")
	rendered := &render.Rendered{Command: "sleep 5", TimeoutSeconds: 1}
	res, err := d.Dispatch(context.Background(), localServer(), nil, rendered)
	require.Error(t, err)
	assert.True(t, res.TimedOut)
}

func TestCapture_TruncatesPastCap(t *testing.T) {
	c := &capture{}
	big := make([]byte, maxOutputBytes+100)
	for i := range big {
		big[i] = 'a'
	}
	_, _ = c.Write(big)
	out := c.String()
	assert.Contains(t, out, "truncated")
	assert.LessOrEqual(t, len(out), maxOutputBytes+100)
}

func localServer() *model.Server { return &model.Server{IsLocal: true} }
