package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/kazz187/permguard/internal/audit"
	"github.com/kazz187/permguard/internal/engine"
	"github.com/kazz187/permguard/internal/toolgate"
)

const (
	hookAllow = "allow"
	hookDeny  = "deny"
	hookAsk   = "ask"
)

type hookInput struct {
	SessionID     string         `json:"session_id"`
	HookEventName string         `json:"hook_event_name"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	Cwd           string         `json:"cwd"`
}

type hookOutput struct {
	HookSpecificOutput hookDecision `json:"hookSpecificOutput"`
}

type hookDecision struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

func deny(reason string) hookOutput {
	return hookOutput{HookSpecificOutput: hookDecision{
		HookEventName:            "PreToolUse",
		PermissionDecision:       hookDeny,
		PermissionDecisionReason: reason,
	}}
}

// runHook never fails: anything that goes wrong is answered with a deny.
func runHook(r io.Reader, w io.Writer) {
	ctx := context.Background()
	out := func() hookOutput {
		data, err := io.ReadAll(r)
		if err != nil {
			return deny(fmt.Sprintf("permguard: failed to read hook input: %v", err))
		}
		b, err := newBootstrap(ctx)
		if err != nil {
			return deny(fmt.Sprintf("permguard: %v", err))
		}
		return decideHook(ctx, b.engine, data)
	}()
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.Error("failed to write hook output", "error", err)
	}
}

// decideHook allows a tool call only when the engine grants it. Granted
// permissions that require confirmation are handed back to the user as
// "ask".
func decideHook(ctx context.Context, eng *engine.Engine, data []byte) hookOutput {
	var in hookInput
	if err := json.Unmarshal(data, &in); err != nil {
		return deny(fmt.Sprintf("permguard: malformed hook input: %v", err))
	}
	if in.ToolName == "" {
		return deny("permguard: hook input has no tool_name")
	}

	req := toolgate.RequestFor(in.ToolName, in.ToolInput)
	if in.Cwd != "" {
		req.Context = req.Context.With("cwd", in.Cwd)
	}
	res := eng.Check(ctx, req)

	decision := hookDecision{
		HookEventName:            "PreToolUse",
		PermissionDecision:       hookDeny,
		PermissionDecisionReason: res.Reason,
	}
	if res.Granted {
		decision.PermissionDecision = hookAllow
		if p, ok := eng.Permission(req.Permission); ok && p.RequiresConfirmation && asksOnGrant(res.Source) {
			decision.PermissionDecision = hookAsk
			decision.PermissionDecisionReason = fmt.Sprintf("%s is %s risk and requires confirmation", p.Name, p.Risk)
		}
	}
	return hookOutput{HookSpecificOutput: decision}
}

// asksOnGrant reports whether a grant from source still needs the user's
// confirmation. Temporary and limited grants were confirmed when issued and
// a limited use has already been spent by Check.
func asksOnGrant(source audit.Source) bool {
	switch source {
	case audit.SourceGrant, audit.SourceRule, audit.SourceDefault:
		return true
	default:
		return false
	}
}
