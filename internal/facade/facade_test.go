package facade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
)

// Facade embeds *store.Store and *dispatch.Dispatcher as concrete structs
// (not interfaces), so operations that round-trip through them
// (TestServerConnection, DetectServerCapabilities, OpenPTYSession, the
// entity CRUD pass-throughs) need a live Postgres/SSH target to exercise
// end-to-end — the same scoping limitation noted for executor_test.go.
// This file covers the pure-function paths that don't touch either.

func TestProbeRendered_CarriesCommandAndTimeout(t *testing.T) {
	r := probeRendered("true")
	assert.Equal(t, "true", r.Command)
	assert.Equal(t, probeDispatchTimeout, r.TimeoutSeconds)
}

func TestResolveCredential_LocalServerNeverTouchesStore(t *testing.T) {
	f := &Facade{}
	server := &model.Server{IsLocal: true}

	mat, err := f.resolveCredential(context.Background(), server)
	require.NoError(t, err)
	assert.Nil(t, mat)
}

func TestResolveCredential_NoCredentialIDReturnsNil(t *testing.T) {
	f := &Facade{}
	server := &model.Server{IsLocal: false}

	mat, err := f.resolveCredential(context.Background(), server)
	require.NoError(t, err)
	assert.Nil(t, mat)
}
