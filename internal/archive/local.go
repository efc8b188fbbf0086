package archive

import (
	"context"
	"os"
	"path/filepath"
)

// LocalBackend stores offloaded bodies as plain files under a base
// directory, replacing the teacher's NopStorageService (which discarded
// everything) with a real filesystem-backed implementation for
// single-node/dev deployments that set storage.backend=local.
type LocalBackend struct {
	baseDir string
}

func NewLocalBackend(baseDir string) *LocalBackend {
	return &LocalBackend{baseDir: baseDir}
}

func (b *LocalBackend) Put(ctx context.Context, key string, content []byte) error {
	path := filepath.Join(b.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

func (b *LocalBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(b.baseDir, key))
}
