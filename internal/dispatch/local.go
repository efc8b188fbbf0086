package dispatch

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
	"github.com/jsprague84/svrctlrs-sub002/internal/render"
)

// dispatchLocal runs rendered.Command through /bin/sh -c on this host,
// grounded on internal/executor/script.Executor's buildEnv+exec.Command
// shape, with the wall-clock SIGTERM→SIGKILL escalation the teacher never
// implements.
func (d *Dispatcher) dispatchLocal(ctx context.Context, rendered *render.Rendered) (*Result, error) {
	cmd := exec.Command("/bin/sh", "-c", rendered.Command)
	if rendered.WorkingDirectory != "" {
		cmd.Dir = rendered.WorkingDirectory
	}
	cmd.Env = mergedEnv(rendered.Environment)
	setProcessGroup(cmd)

	out := &capture{}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, orcherr.DispatchFailed(err.Error())
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return &Result{ExitCode: exitCode(err), Output: out.String()}, nil
	case <-ctx.Done():
		terminateProcessGroup(cmd)
		select {
		case <-done:
		case <-time.After(killGrace):
			killProcessGroup(cmd)
			<-done
		}
		return &Result{Output: out.String(), TimedOut: true}, ctx.Err()
	}
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func setProcessGroup(cmd *exec.Cmd) {
	if runtime.GOOS == "windows" {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
