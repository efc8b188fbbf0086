package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/jsprague84/svrctlrs-sub002/internal/credential"
	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
	"github.com/jsprague84/svrctlrs-sub002/internal/render"
)

const sshDialTimeout = 15 * time.Second

// authMethod maps a resolved Credential to an ssh.AuthMethod, grounded on
// internal/git/git.go's setupSSHEnv ("build auth material from a
// Credential-like value, fail closed on parse error") translated from a
// GIT_SSH_COMMAND wrapper into an in-process client.
func authMethod(cred *credential.Material) (ssh.AuthMethod, error) {
	switch cred.Kind {
	case model.CredentialKindSSHKey, model.CredentialKindCertificate:
		signer, err := ssh.ParsePrivateKey([]byte(cred.Secret))
		if err != nil {
			return nil, orcherr.DispatchFailed("parsing private key: " + err.Error())
		}
		return ssh.PublicKeys(signer), nil
	case model.CredentialKindPassword:
		return ssh.Password(cred.Secret), nil
	default:
		return nil, orcherr.DispatchFailed("unsupported credential kind for ssh: " + string(cred.Kind))
	}
}

func dialSSH(server *model.Server, cred *credential.Material) (*ssh.Client, error) {
	if cred == nil {
		return nil, orcherr.DispatchFailed("remote server requires a credential")
	}
	auth, err := authMethod(cred)
	if err != nil {
		return nil, err
	}
	username := cred.Username
	if server.SSHUsername != nil && *server.SSHUsername != "" {
		username = *server.SSHUsername
	}
	hostname := ""
	if server.Hostname != nil {
		hostname = *server.Hostname
	}
	config := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshDialTimeout,
	}
	addr := fmt.Sprintf("%s:%d", hostname, server.Port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, orcherr.DispatchFailed("ssh dial " + addr + ": " + err.Error())
	}
	return client, nil
}

// buildShellCommand folds working directory and environment into the
// command string itself, since many sshd configurations reject arbitrary
// SetEnv/AcceptEnv names.
func buildShellCommand(rendered *render.Rendered) string {
	var b strings.Builder
	for k, v := range rendered.Environment {
		fmt.Fprintf(&b, "export %s=%q; ", k, v)
	}
	if rendered.WorkingDirectory != "" {
		fmt.Fprintf(&b, "cd %q && ", rendered.WorkingDirectory)
	}
	b.WriteString(rendered.Command)
	return b.String()
}

func (d *Dispatcher) dispatchSSH(ctx context.Context, server *model.Server, cred *credential.Material, rendered *render.Rendered) (*Result, error) {
	client, err := dialSSH(server, cred)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, orcherr.DispatchFailed("ssh session: " + err.Error())
	}
	defer session.Close()

	out := &capture{}
	session.Stdout = out
	session.Stderr = out

	done := make(chan error, 1)
	go func() { done <- session.Run(buildShellCommand(rendered)) }()

	select {
	case err := <-done:
		return &Result{ExitCode: sshExitCode(err), Output: out.String()}, nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		select {
		case <-done:
		case <-time.After(killGrace):
			_ = session.Close()
			<-done
		}
		return &Result{Output: out.String(), TimedOut: true}, ctx.Err()
	}
}

func sshExitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus()
	}
	return -1
}
