// Package capability implements the Capability Gate: it decides whether a
// server is eligible to run a CommandTemplate before the Executor dispatches
// anything, per spec §4.3.
package capability

import (
	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

// Check evaluates tmpl against server and its detected capability rows. It
// returns nil when eligible, or a CapabilityMismatch *orcherr.Error naming
// the first unmet requirement.
//
// A local server (server.IsLocal) always passes: the spec treats local
// execution as a trusted passthrough with no capability negotiation.
func Check(server *model.Server, caps []model.ServerCapability, tmpl *model.CommandTemplate) error {
	if server.IsLocal {
		return nil
	}

	if !osFilterMatches(tmpl.OSFilter, server) {
		return orcherr.CapabilityMismatch(server.Name, tmpl.Name, "os_filter does not match server os_distro/package_manager")
	}

	have := make(map[string]bool, len(caps))
	for _, c := range caps {
		if c.Available {
			have[c.Capability] = true
		}
	}
	for _, req := range tmpl.RequiredCapabilities {
		if !have[req] {
			return orcherr.CapabilityMismatch(server.Name, tmpl.Name, "missing capability: "+req)
		}
	}
	return nil
}

func osFilterMatches(f model.OSFilter, server *model.Server) bool {
	if len(f.Distro) > 0 && !contains(f.Distro, server.OSDistro) {
		return false
	}
	if len(f.PkgManager) > 0 && !contains(f.PkgManager, server.PackageManager) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// SelectTemplate picks the most specific eligible CommandTemplate among
// candidates for server, breaking ties by OSFilter.Specificity (spec §4.3's
// "most specific filter wins" rule). When none are eligible it returns a
// CapabilityMismatch error: the last candidate's Check error, or a
// "no command template provided" mismatch when candidates is empty.
func SelectTemplate(server *model.Server, caps []model.ServerCapability, candidates []model.CommandTemplate) (*model.CommandTemplate, error) {
	var best *model.CommandTemplate
	var lastErr error
	for i := range candidates {
		t := &candidates[i]
		if err := Check(server, caps, t); err != nil {
			lastErr = err
			continue
		}
		if best == nil || t.OSFilter.Specificity() > best.OSFilter.Specificity() {
			best = t
		}
	}
	if best == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, orcherr.CapabilityMismatch(server.Name, "", "no command template provided")
	}
	return best, nil
}
