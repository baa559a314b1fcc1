package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/permguard/internal/audit"
	"github.com/kazz187/permguard/internal/permission"
)

func TestConfirmationApproves(t *testing.T) {
	var got ConfirmationRequest
	e, _ := newTestEngine(t, WithConfirmationHandler(func(_ context.Context, req ConfirmationRequest) (bool, error) {
		got = req
		return true, nil
	}))
	e.Grant("file.delete")

	res := check(e, "file.delete", "resource", "/tmp/old.log")
	assert.True(t, res.Granted)
	assert.Equal(t, audit.SourceConfirmation, res.Source)
	assert.Equal(t, "file.delete", got.Permission)
	assert.Equal(t, permission.RiskHigh, got.Risk)
	assert.Equal(t, "/tmp/old.log", got.Context["resource"])
}

func TestConfirmationOverride(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetConfirmationHandler(func(context.Context, ConfirmationRequest) (bool, error) { return false, nil })
	e.Grant("file.delete")

	res := check(e, "file.delete")
	assert.False(t, res.Granted)
	assert.Equal(t, "User confirmation denied", res.Reason)

	entries := e.AuditLog(audit.FilterAll)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Result.Granted)
	assert.Equal(t, "User confirmation denied", entries[0].Result.Reason)
}

func TestConfirmationFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		handler ConfirmationHandler
		reason  string
	}{
		{
			name:    "error",
			handler: func(context.Context, ConfirmationRequest) (bool, error) { return true, errors.New("tty closed") },
			reason:  "User confirmation failed: tty closed",
		},
		{
			name:    "panic",
			handler: func(context.Context, ConfirmationRequest) (bool, error) { panic("boom") },
			reason:  "User confirmation failed: ",
		},
		{
			name: "timeout",
			handler: func(ctx context.Context, _ ConfirmationRequest) (bool, error) {
				<-ctx.Done()
				return true, nil
			},
			reason: "User confirmation failed: confirmation timed out",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, WithConfirmationHandler(tt.handler), WithConfirmationTimeout(20*time.Millisecond))
			e.Grant("bash.execute")

			res := check(e, "bash.execute")
			assert.False(t, res.Granted)
			assert.Contains(t, res.Reason, tt.reason)
			assert.Equal(t, audit.SourceConfirmation, res.Source)
			assert.Len(t, e.AuditLog(audit.FilterDenied), 1)
		})
	}
}

func TestConfirmationCancelledContext(t *testing.T) {
	e, _ := newTestEngine(t, WithConfirmationHandler(func(ctx context.Context, _ ConfirmationRequest) (bool, error) {
		<-ctx.Done()
		return true, nil
	}))
	e.Grant("system.execute")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Check(ctx, Request{Permission: "system.execute"})
	assert.False(t, res.Granted)
	assert.Equal(t, "User confirmation failed: context canceled", res.Reason)
}

func TestNoHandlerModes(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Grant("file.delete")
	res := check(e, "file.delete")
	assert.True(t, res.Granted)
	assert.Equal(t, audit.SourceGrant, res.Source)

	e, _ = newTestEngine(t, WithConfirmationMode(ConfirmFailClosed))
	e.Grant("file.delete")
	res = check(e, "file.delete")
	assert.False(t, res.Granted)
	assert.Equal(t, ReasonConfirmationRequired, res.Reason)
}

func TestConfirmationOnlyGatesPermanentGrants(t *testing.T) {
	calls := 0
	e, _ := newTestEngine(t, WithConfirmationHandler(func(context.Context, ConfirmationRequest) (bool, error) {
		calls++
		return false, nil
	}))
	e.GrantWithLimit("bash.execute", 1)
	e.GrantTemporary("system.execute", noon.Add(time.Hour))

	assert.True(t, check(e, "bash.execute").Granted)
	assert.True(t, check(e, "system.execute").Granted)
	assert.Zero(t, calls)

	// Not requiring confirmation, so the handler is never asked.
	e.Grant("file.write")
	assert.True(t, check(e, "file.write").Granted)
	assert.Zero(t, calls)
}

func TestParseConfirmationMode(t *testing.T) {
	m, err := ParseConfirmationMode("closed")
	require.NoError(t, err)
	assert.Equal(t, ConfirmFailClosed, m)
	_, err = ParseConfirmationMode("ajar")
	assert.Error(t, err)
}
