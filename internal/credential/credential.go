// Package credential defines the opaque Credential resolver the core
// assumes per spec §1 — encryption at rest is an excluded collaborator.
package credential

import "github.com/jsprague84/svrctlrs-sub002/internal/model"

// Resolver turns a Credential row into usable secret material. The default
// implementation trusts Credential.Value is already plaintext by the time
// it reaches the core, the same assumption the teacher makes about
// AccessToken/ModuleSshKey arriving pre-resolved on TerraformJob.
type Resolver interface {
	Resolve(c *model.Credential) (Material, error)
}

// Material is the resolved secret, shaped by Kind.
type Material struct {
	Kind     model.CredentialKind
	Username string
	Secret   string // private key PEM, password, token, or certificate PEM
}

// Passthrough is the default Resolver: Value is used verbatim.
type Passthrough struct{}

func (Passthrough) Resolve(c *model.Credential) (Material, error) {
	username := ""
	if c.Username != nil {
		username = *c.Username
	}
	return Material{Kind: c.Kind, Username: username, Secret: c.Value}, nil
}
