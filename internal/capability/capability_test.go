package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func debianServer() *model.Server {
	return &model.Server{
		Name:           "db1",
		OSDistro:       "debian",
		PackageManager: "apt",
	}
}

func TestCheck_LocalServerAlwaysPasses(t *testing.T) {
	server := &model.Server{Name: "local", IsLocal: true}
	tmpl := &model.CommandTemplate{RequiredCapabilities: []string{"docker"}}
	assert.NoError(t, Check(server, nil, tmpl))
}

func TestCheck_OSFilterMismatch(t *testing.T) {
	tmpl := &model.CommandTemplate{OSFilter: model.OSFilter{Distro: []string{"rhel"}}}
	err := Check(debianServer(), nil, tmpl)
	require.Error(t, err)
	assert.True(t, orcherr.Is(err, orcherr.KindCapabilityMismatch))
}

func TestCheck_MissingCapability(t *testing.T) {
	tmpl := &model.CommandTemplate{RequiredCapabilities: []string{"docker"}}
	err := Check(debianServer(), nil, tmpl)
	require.Error(t, err)
	assert.True(t, orcherr.Is(err, orcherr.KindCapabilityMismatch))
}

func TestCheck_SatisfiedCapability(t *testing.T) {
	tmpl := &model.CommandTemplate{
		OSFilter:             model.OSFilter{Distro: []string{"debian"}, PkgManager: []string{"apt"}},
		RequiredCapabilities: []string{"docker"},
	}
	caps := []model.ServerCapability{{Capability: "docker", Available: true}}
	assert.NoError(t, Check(debianServer(), caps, tmpl))
}

func TestCheck_UnavailableCapabilityRowStillFails(t *testing.T) {
	tmpl := &model.CommandTemplate{RequiredCapabilities: []string{"docker"}}
	caps := []model.ServerCapability{{Capability: "docker", Available: false}}
	err := Check(debianServer(), caps, tmpl)
	require.Error(t, err)
}

func TestSelectTemplate_PicksMostSpecificMatch(t *testing.T) {
	server := debianServer()
	generic := model.CommandTemplate{Name: "generic"}
	specific := model.CommandTemplate{
		Name:     "debian-specific",
		OSFilter: model.OSFilter{Distro: []string{"debian"}, PkgManager: []string{"apt"}},
	}
	chosen, err := SelectTemplate(server, nil, []model.CommandTemplate{generic, specific})
	require.NoError(t, err)
	assert.Equal(t, "debian-specific", chosen.Name)
}

func TestSelectTemplate_NoEligibleCandidateIsMismatch(t *testing.T) {
	server := debianServer()
	rhelOnly := model.CommandTemplate{Name: "rhel-only", OSFilter: model.OSFilter{Distro: []string{"rhel"}}}
	_, err := SelectTemplate(server, nil, []model.CommandTemplate{rhelOnly})
	require.Error(t, err)
	assert.True(t, orcherr.Is(err, orcherr.KindCapabilityMismatch))
}
