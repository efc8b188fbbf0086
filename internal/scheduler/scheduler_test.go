package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFireAfter_SixFieldDialect(t *testing.T) {
	s := New(nil, nil, time.Second)
	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := s.nextFireAfter("0 0 * * * *", asOf)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), next)
}

func TestNextFireAfter_RejectsFiveFieldExpression(t *testing.T) {
	s := New(nil, nil, time.Second)
	_, err := s.nextFireAfter("0 * * * *", time.Now())
	require.Error(t, err)
}

func TestNextFireAfter_EverySecond(t *testing.T) {
	s := New(nil, nil, time.Second)
	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := s.nextFireAfter("* * * * * *", asOf)
	require.NoError(t, err)
	assert.Equal(t, asOf.Add(time.Second), next)
}
