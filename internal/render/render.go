// Package render substitutes {{placeholders}} and resolves {{#if}} blocks
// in a CommandTemplate's command_string, per the grammar in spec §4.2.
//
// text/template was rejected for this: its dot-prefixed field access and
// its lack of a closing {{/if}} form don't match the spec's flat,
// Mustache-like grammar, and no example repo in the retrieval pack wires
// in a Mustache-compatible engine. This scanner is hand-written in the
// teacher's manual-string-building style (see internal/dispatch for the
// sibling command-assembly code it feeds).
package render

import (
	"fmt"
	"strings"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

// Rendered is the output of a successful render: the literal command plus
// the resolved execution parameters the Dispatcher needs.
type Rendered struct {
	Command          string
	WorkingDirectory string
	Environment      map[string]string
	TimeoutSeconds   int
}

// MergeVars merges variable maps in argument order, later maps overriding
// earlier ones. The Executor passes CommandTemplate environment →
// JobTemplate variables → JobTemplateStep variables (composite steps only)
// → Executor-supplied overrides; there is no JobType defaults tier.
func MergeVars(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Render checks required parameters, substitutes placeholders and resolves
// conditional blocks in tmpl.CommandString against vars, and returns the
// literal command plus the Dispatcher-facing execution parameters.
func Render(tmpl *model.CommandTemplate, vars map[string]string, timeoutOverride *int) (*Rendered, error) {
	for _, p := range tmpl.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := vars[p.Name]; !ok {
			return nil, orcherr.MissingVariable(p.Name)
		}
	}

	nodes, stop, _, err := parse(tmpl.CommandString, 0)
	if err != nil {
		return nil, orcherr.Invalid("command_string", err.Error())
	}
	if stop != "" {
		return nil, orcherr.Invalid("command_string", fmt.Sprintf("unexpected {{%s}}", stop))
	}

	var b strings.Builder
	eval(nodes, vars, &b)

	timeout := tmpl.TimeoutSeconds
	if timeoutOverride != nil {
		timeout = *timeoutOverride
	}
	workingDir := ""
	if tmpl.WorkingDirectory != nil {
		workingDir = *tmpl.WorkingDirectory
	}

	return &Rendered{
		Command:          b.String(),
		WorkingDirectory: workingDir,
		Environment:      tmpl.Environment,
		TimeoutSeconds:   timeout,
	}, nil
}

// RenderString applies the same placeholder/conditional grammar to an
// arbitrary string, for contexts like notification title/body templates
// that have no TemplateParameter list to validate against.
func RenderString(s string, vars map[string]string) (string, error) {
	nodes, stop, _, err := parse(s, 0)
	if err != nil {
		return "", orcherr.Invalid("template", err.Error())
	}
	if stop != "" {
		return "", orcherr.Invalid("template", fmt.Sprintf("unexpected {{%s}}", stop))
	}
	var b strings.Builder
	eval(nodes, vars, &b)
	return b.String(), nil
}

// isTruthy matches the spec's "boolean or truthy value" language: present,
// non-empty, and not a textual false.
func isTruthy(vars map[string]string, name string) bool {
	v, ok := vars[name]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0":
		return false
	default:
		return true
	}
}

// node is the parsed AST: text literals, {{var}} substitutions, and
// {{#if}} conditionals with optional {{else}} branches.
type node struct {
	kind     nodeKind
	text     string
	varName  string
	cond     string
	thenNode []node
	elseNode []node
}

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeVar
	nodeIf
)

func eval(nodes []node, vars map[string]string, b *strings.Builder) {
	for _, n := range nodes {
		switch n.kind {
		case nodeText:
			b.WriteString(n.text)
		case nodeVar:
			b.WriteString(vars[n.varName])
		case nodeIf:
			if isTruthy(vars, n.cond) {
				eval(n.thenNode, vars, b)
			} else {
				eval(n.elseNode, vars, b)
			}
		}
	}
}

// parse scans s starting at pos, stopping at end-of-string or at a bare
// {{/if}}/{{else}} marker. The returned stop string is "" at end-of-string,
// or "/if"/"else" when it stopped early; next is the offset just past the
// marker that stopped it (meaningless when stop is "").
func parse(s string, pos int) (nodes []node, stop string, next int, err error) {
	for pos < len(s) {
		open := strings.Index(s[pos:], "{{")
		if open == -1 {
			nodes = append(nodes, node{kind: nodeText, text: s[pos:]})
			return nodes, "", len(s), nil
		}
		if open > 0 {
			nodes = append(nodes, node{kind: nodeText, text: s[pos : pos+open]})
		}
		closeIdx := strings.Index(s[pos+open:], "}}")
		if closeIdx == -1 {
			return nil, "", 0, fmt.Errorf("unterminated {{ at offset %d", pos+open)
		}
		tag := strings.TrimSpace(s[pos+open+2 : pos+open+closeIdx])
		tagEnd := pos + open + closeIdx + 2

		switch {
		case tag == "/if":
			return nodes, "/if", tagEnd, nil
		case tag == "else":
			return nodes, "else", tagEnd, nil
		case strings.HasPrefix(tag, "#if "):
			condName := strings.TrimSpace(strings.TrimPrefix(tag, "#if "))
			thenNodes, branchStop, branchNext, perr := parse(s, tagEnd)
			if perr != nil {
				return nil, "", 0, perr
			}
			var elseNodes []node
			if branchStop == "else" {
				elseNodes, branchStop, branchNext, perr = parse(s, branchNext)
				if perr != nil {
					return nil, "", 0, perr
				}
			}
			if branchStop != "/if" {
				return nil, "", 0, fmt.Errorf("missing {{/if}} for {{#if %s}}", condName)
			}
			nodes = append(nodes, node{kind: nodeIf, cond: condName, thenNode: thenNodes, elseNode: elseNodes})
			pos = branchNext
			continue
		default:
			nodes = append(nodes, node{kind: nodeVar, varName: tag})
		}
		pos = tagEnd
	}
	return nodes, "", len(s), nil
}
