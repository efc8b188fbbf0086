package archive

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	puts map[string][]byte
}

func newFakeBackend() *fakeBackend { return &fakeBackend{puts: map[string][]byte{}} }

func (f *fakeBackend) Put(ctx context.Context, key string, content []byte) error {
	f.puts[key] = content
	return nil
}

func (f *fakeBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return f.puts[key], nil
}

func TestOffload_UnderThresholdStaysInline(t *testing.T) {
	backend := newFakeBackend()
	a := New(backend, 100)

	inline, pointer, err := a.Offload(context.Background(), "run-1/output", "short output")
	require.NoError(t, err)
	assert.Equal(t, "short output", inline)
	assert.Empty(t, pointer)
	assert.Empty(t, backend.puts)
}

func TestOffload_OverThresholdWritesToBackend(t *testing.T) {
	backend := newFakeBackend()
	a := New(backend, 10)
	body := strings.Repeat("x", 100)

	inline, pointer, err := a.Offload(context.Background(), "run-1/output", body)
	require.NoError(t, err)
	assert.Equal(t, "run-1/output", pointer)
	assert.Equal(t, []byte(body), backend.puts["run-1/output"])
	assert.NotEmpty(t, inline)
}

func TestFetch_RoundTripsOffloadedBody(t *testing.T) {
	backend := newFakeBackend()
	a := New(backend, 10)
	body := strings.Repeat("y", 50)

	_, pointer, err := a.Offload(context.Background(), "run-2/output", body)
	require.NoError(t, err)

	fetched, err := a.Fetch(context.Background(), pointer)
	require.NoError(t, err)
	assert.Equal(t, body, fetched)
}

func TestPreview_ShortBodyReturnedWhole(t *testing.T) {
	body := "line1\nline2\nline3"
	assert.Equal(t, body, preview(body))
}

func TestPreview_LongBodyKeepsHeadAndTail(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "line"
	}
	body := strings.Join(lines, "\n")

	result := preview(body)
	assert.Contains(t, result, "lines archived")
	assert.True(t, strings.HasPrefix(result, "line\n"))
	assert.True(t, strings.HasSuffix(result, "line"))
}
