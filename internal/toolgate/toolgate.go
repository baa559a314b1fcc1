// Package toolgate translates agent tool invocations into permission checks.
package toolgate

import (
	"context"
	"net/url"
	"strings"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
	"mvdan.cc/sh/v3/syntax"

	"github.com/kazz187/permguard/internal/engine"
	"github.com/kazz187/permguard/internal/policy"
)

const (
	KeyPrograms = "programs"
	KeyPattern  = "pattern"
	KeyQuery    = "query"
)

// Checker is the subset of the engine the gate needs.
type Checker interface {
	Check(ctx context.Context, req engine.Request) engine.Result
}

var toolPermissions = map[string]string{
	"Bash":         "bash.execute",
	"Write":        "file.write",
	"Edit":         "file.write",
	"MultiEdit":    "file.write",
	"NotebookEdit": "file.write",
	"Read":         "file.read",
	"NotebookRead": "file.read",
	"Glob":         "file.read",
	"Grep":         "file.read",
	"LS":           "file.read",
	"WebFetch":     "network.request",
	"WebSearch":    "network.request",
}

// PermissionFor returns the permission a tool needs. Tools without a
// built-in mapping need "tool.<name>", which is unknown (and therefore
// denied) until someone registers it.
func PermissionFor(toolName string) string {
	if p, ok := toolPermissions[toolName]; ok {
		return p
	}
	return "tool." + strings.ToLower(toolName)
}

// RequestFor builds the permission request for a tool call.
func RequestFor(toolName string, input map[string]any) engine.Request {
	ctx := policy.Context{policy.KeyTool: toolName}
	str := func(key string) string {
		s, _ := input[key].(string)
		return s
	}

	switch PermissionFor(toolName) {
	case "bash.execute":
		cmd := str("command")
		ctx[policy.KeyCommand] = cmd
		programs := Programs(cmd)
		if len(programs) > 0 {
			ctx[policy.KeyProgram] = programs[0]
		}
		ctx[KeyPrograms] = strings.Join(programs, ",")
	case "file.write", "file.read":
		for _, key := range []string{"file_path", "notebook_path", "path"} {
			if p := str(key); p != "" {
				ctx[policy.KeyResource] = p
				ctx[policy.KeyPath] = p
				break
			}
		}
		if p := str("pattern"); p != "" {
			ctx[KeyPattern] = p
		}
	case "network.request":
		if raw := str("url"); raw != "" {
			ctx[policy.KeyURL] = raw
			ctx[policy.KeyResource] = raw
			if u, err := url.Parse(raw); err == nil {
				ctx[policy.KeyHost] = u.Hostname()
			}
		}
		if q := str("query"); q != "" {
			ctx[KeyQuery] = q
		}
	}
	return engine.Request{Permission: PermissionFor(toolName), Context: ctx}
}

// UnresolvedProgram stands in for a command name that cannot be known
// without running the shell, such as "$CMD" or "$(which rm)". Rules can
// match it to fail closed.
const UnresolvedProgram = "?"

// Programs lists the program names invoked by a shell command line, in order
// of appearance, including those inside pipelines, lists and substitutions.
// Quoting is resolved, so "rm" and r''m both read as rm. A command line that
// does not parse yields UnresolvedProgram.
func Programs(command string) []string {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	file, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(command), "")
	if err != nil {
		return []string{UnresolvedProgram}
	}

	var programs []string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		name, ok := staticWord(call.Args[0])
		if !ok || name == "" {
			name = UnresolvedProgram
		}
		programs = append(programs, name)
		return true
	})
	return programs
}

// staticWord returns the value a word expands to when it contains no
// expansions.
func staticWord(w *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(unescape(p.Value, func(byte) bool { return true }))
		case *syntax.SglQuoted:
			if p.Dollar && strings.Contains(p.Value, `\`) {
				return "", false
			}
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			if p.Dollar {
				return "", false
			}
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(unescape(lit.Value, func(c byte) bool {
					return strings.IndexByte("$`\"\\\n", c) >= 0
				}))
			}
		default:
			return "", false
		}
	}
	return sb.String(), true
}

// unescape drops a backslash in front of every byte escapable reports.
func unescape(s string, escapable func(byte) bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && escapable(s[i+1]) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// CanUseTool adapts the engine to the agent SDK's permission callback.
func CanUseTool(ctx context.Context, c Checker) func(string, map[string]any, claudeagent.ToolPermissionContext) (claudeagent.PermissionResult, error) {
	return func(toolName string, input map[string]any, _ claudeagent.ToolPermissionContext) (claudeagent.PermissionResult, error) {
		res := c.Check(ctx, RequestFor(toolName, input))
		if res.Granted {
			return claudeagent.PermissionResultAllow{}, nil
		}
		return claudeagent.PermissionResultDeny{Message: res.Reason}, nil
	}
}
