package dispatch

import (
	"io"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/crypto/ssh"

	"github.com/jsprague84/svrctlrs-sub002/internal/credential"
	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

// Session is an open interactive PTY, local or remote. The Facade's
// open_pty_session operation wraps one of these behind a model.PtySession
// record; the session itself is never persisted.
type Session struct {
	io.Reader
	io.Writer
	closer  func() error
	resizer func(cols, rows int) error
}

// Close releases the underlying process or SSH session.
func (s *Session) Close() error { return s.closer() }

// Resize propagates a terminal resize to the underlying PTY.
func (s *Session) Resize(cols, rows int) error {
	if s.resizer == nil {
		return nil
	}
	return s.resizer(cols, rows)
}

// OpenLocalPTY starts /bin/sh in a new PTY on this host, grounded on
// github.com/creack/pty's documented Start pattern (named-not-grounded
// per DESIGN.md: no retrieval-pack repo allocates a local PTY).
func (d *Dispatcher) OpenLocalPTY(cols, rows int) (*Session, error) {
	cmd := exec.Command("/bin/sh")
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, orcherr.DispatchFailed("pty start: " + err.Error())
	}
	return &Session{
		Reader: ptmx,
		Writer: ptmx,
		closer: func() error {
			_ = ptmx.Close()
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			return nil
		},
		resizer: func(cols, rows int) error {
			return pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
		},
	}, nil
}

// OpenRemotePTY opens an interactive shell over SSH with a server-side PTY
// allocated via RequestPty, the same golang.org/x/crypto/ssh client the
// non-interactive path uses.
func (d *Dispatcher) OpenRemotePTY(server *model.Server, cred *credential.Material, cols, rows int) (*Session, error) {
	client, err := dialSSH(server, cred)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, orcherr.DispatchFailed("ssh session: " + err.Error())
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", rows, cols, modes); err != nil {
		session.Close()
		client.Close()
		return nil, orcherr.DispatchFailed("request pty: " + err.Error())
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, orcherr.DispatchFailed(err.Error())
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, orcherr.DispatchFailed(err.Error())
	}
	session.Stderr = stdoutWriter{}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, orcherr.DispatchFailed("shell: " + err.Error())
	}

	return &Session{
		Reader: stdout,
		Writer: stdin,
		closer: func() error {
			_ = session.Close()
			return client.Close()
		},
		resizer: func(cols, rows int) error {
			return session.WindowChange(rows, cols)
		},
	}, nil
}

// stdoutWriter discards stderr writes; remote PTY sessions merge
// stderr/stdout server-side once a PTY is allocated, so this is only a
// type-satisfying no-op sink.
type stdoutWriter struct{}

func (w stdoutWriter) Write(p []byte) (int, error) { return len(p), nil }
