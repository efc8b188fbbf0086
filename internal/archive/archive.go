// Package archive is the Output Archive: it offloads JobRun output/error
// bodies past an inline-storage threshold to an object-storage backend,
// completing the teacher's stubbed storage.StorageService/factory for real.
package archive

import (
	"context"
	"fmt"
)

// Backend is one object-storage implementation an Archiver can offload to.
type Backend interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// previewLines is how many lines from the head and tail are kept inline
// when a body is offloaded, so a user can see roughly what happened
// without fetching the full body from the backend.
const previewLines = 20

// Archiver decides whether a JobRun body fits inline or needs offloading.
type Archiver struct {
	backend        Backend
	inlineMaxBytes int
}

// New builds an Archiver. inlineMaxBytes is read from the
// storage.inline_output_max_bytes setting (default 65536).
func New(backend Backend, inlineMaxBytes int) *Archiver {
	return &Archiver{backend: backend, inlineMaxBytes: inlineMaxBytes}
}

// Offload stores body under key if it exceeds the inline threshold,
// returning the text to keep inline (the full body, or a head/tail preview)
// and a non-empty pointer when offloading happened.
func (a *Archiver) Offload(ctx context.Context, key, body string) (inline string, pointer string, err error) {
	if len(body) <= a.inlineMaxBytes {
		return body, "", nil
	}
	if err := a.backend.Put(ctx, key, []byte(body)); err != nil {
		return "", "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	return preview(body), key, nil
}

// Fetch retrieves a previously-offloaded body by its pointer.
func (a *Archiver) Fetch(ctx context.Context, pointer string) (string, error) {
	content, err := a.backend.Get(ctx, pointer)
	if err != nil {
		return "", fmt.Errorf("archive: get %s: %w", pointer, err)
	}
	return string(content), nil
}

// preview keeps the first and last previewLines lines of body, noting how
// much was elided in between.
func preview(body string) string {
	lines := splitLines(body)
	if len(lines) <= 2*previewLines {
		return body
	}
	head := lines[:previewLines]
	tail := lines[len(lines)-previewLines:]
	elided := len(lines) - 2*previewLines

	out := ""
	for _, l := range head {
		out += l + "\n"
	}
	out += fmt.Sprintf("... (%d lines archived) ...\n", elided)
	for i, l := range tail {
		out += l
		if i < len(tail)-1 {
			out += "\n"
		}
	}
	return out
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
