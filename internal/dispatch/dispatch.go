// Package dispatch runs a rendered command against a Server: locally via
// os/exec, or remotely via SSH, non-interactive or through a PTY. It owns
// the only process-spawning and network-dialing code in the core.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jsprague84/svrctlrs-sub002/internal/credential"
	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
	"github.com/jsprague84/svrctlrs-sub002/internal/render"
)

// maxOutputBytes caps how much combined stdout+stderr a single dispatch
// keeps; output past this point is dropped and a truncation marker is
// appended. internal/archive later offloads whatever is kept once it
// exceeds the archive's own inline threshold.
const maxOutputBytes = 1 << 20 // 1MiB

// killGrace is how long a process gets to exit after SIGTERM before the
// Dispatcher escalates to SIGKILL.
const killGrace = 5 * time.Second

// Result is the outcome of one dispatch.
type Result struct {
	ExitCode int
	Output   string
	TimedOut bool
}

// Dispatcher runs rendered commands against servers. SSHKeyDir holds the
// configured SSH_KEY_DIR value; the SSH path does not read it, and key
// material always comes inline from the resolved Credential.
type Dispatcher struct {
	SSHKeyDir string
}

// New builds a Dispatcher rooted at sshKeyDir.
func New(sshKeyDir string) *Dispatcher {
	return &Dispatcher{SSHKeyDir: sshKeyDir}
}

// Dispatch runs rendered.Command against server, using cred for remote
// authentication (nil when server.IsLocal). The returned context deadline
// is rendered.TimeoutSeconds; exceeding it yields a TimedOut Result and an
// orcherr.Timeout() error.
func (d *Dispatcher) Dispatch(ctx context.Context, server *model.Server, cred *credential.Material, rendered *render.Rendered) (*Result, error) {
	timeout := time.Duration(rendered.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res *Result
	var err error
	if server.IsLocal {
		res, err = d.dispatchLocal(dctx, rendered)
	} else {
		res, err = d.dispatchSSH(dctx, server, cred, rendered)
	}

	if dctx.Err() == context.DeadlineExceeded {
		if res == nil {
			res = &Result{}
		}
		res.TimedOut = true
		return res, orcherr.Timeout()
	}
	if ctx.Err() == context.Canceled {
		return res, orcherr.Cancelled()
	}
	return res, err
}

// capture bounds a combined output buffer, replacing invalid UTF-8 bytes
// and appending a truncation marker once maxOutputBytes is exceeded.
type capture struct {
	buf       bytes.Buffer
	truncated bool
}

func (c *capture) Write(p []byte) (int, error) {
	n := len(p)
	if c.truncated {
		return n, nil
	}
	remaining := maxOutputBytes - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return n, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
		c.truncated = true
	}
	c.buf.Write(p)
	return n, nil
}

func (c *capture) String() string {
	s := c.buf.String()
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	if c.truncated {
		s += fmt.Sprintf("\n... [output truncated at %d bytes]", maxOutputBytes)
	}
	return s
}
