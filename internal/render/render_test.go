package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func TestRender_SimpleSubstitution(t *testing.T) {
	tmpl := &model.CommandTemplate{
		CommandString:  "systemctl restart {{service}}",
		TimeoutSeconds: 30,
	}
	out, err := Render(tmpl, map[string]string{"service": "nginx"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "systemctl restart nginx", out.Command)
	assert.Equal(t, 30, out.TimeoutSeconds)
}

func TestRender_IfWithoutElse(t *testing.T) {
	tmpl := &model.CommandTemplate{CommandString: "echo start{{#if verbose}} -v{{/if}} end"}

	out, err := Render(tmpl, map[string]string{"verbose": "true"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "echo start -v end", out.Command)

	out, err = Render(tmpl, map[string]string{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "echo start end", out.Command)
}

func TestRender_IfElse(t *testing.T) {
	tmpl := &model.CommandTemplate{CommandString: "{{#if force}}rm -rf{{else}}rm{{/if}} {{path}}"}

	out, err := Render(tmpl, map[string]string{"force": "true", "path": "/tmp/x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "rm -rf /tmp/x", out.Command)

	out, err = Render(tmpl, map[string]string{"force": "false", "path": "/tmp/x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "rm /tmp/x", out.Command)
}

func TestRender_NestedIf(t *testing.T) {
	tmpl := &model.CommandTemplate{
		CommandString: "a{{#if outer}}b{{#if inner}}c{{else}}d{{/if}}e{{/if}}f",
	}
	out, err := Render(tmpl, map[string]string{"outer": "true", "inner": "true"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "abcef", out.Command)

	out, err = Render(tmpl, map[string]string{"outer": "true", "inner": "false"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "abdef", out.Command)

	out, err = Render(tmpl, map[string]string{"outer": "false"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "af", out.Command)
}

func TestRender_MissingRequiredVariable(t *testing.T) {
	tmpl := &model.CommandTemplate{
		CommandString: "deploy {{version}}",
		Parameters:    []model.TemplateParameter{{Name: "version", Required: true}},
	}
	_, err := Render(tmpl, map[string]string{}, nil)
	require.Error(t, err)
	assert.True(t, orcherr.Is(err, orcherr.KindMissingVariable))
}

func TestRender_UnterminatedIfIsInvalid(t *testing.T) {
	tmpl := &model.CommandTemplate{CommandString: "{{#if x}}no close"}
	_, err := Render(tmpl, map[string]string{"x": "true"}, nil)
	require.Error(t, err)
	assert.True(t, orcherr.Is(err, orcherr.KindInvalid))
}

func TestRender_TimeoutOverride(t *testing.T) {
	tmpl := &model.CommandTemplate{CommandString: "noop", TimeoutSeconds: 30}
	override := 90
	out, err := Render(tmpl, nil, &override)
	require.NoError(t, err)
	assert.Equal(t, 90, out.TimeoutSeconds)
}

func TestMergeVars_LaterOverrides(t *testing.T) {
	merged := MergeVars(
		map[string]string{"a": "1", "b": "1"},
		map[string]string{"b": "2"},
		map[string]string{"c": "3"},
	)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, merged)
}
