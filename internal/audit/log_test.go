package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/permguard/internal/policy"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memRepo struct {
	entries []*Entry
	err     error
}

func (m *memRepo) Create(_ context.Context, e *Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRepo) Get(context.Context, string) (*Entry, error) { return nil, errors.New("unused") }

func (m *memRepo) List(context.Context, Filter) ([]*Entry, error) { return m.entries, nil }

func decision(name string, granted bool) Decision {
	return Decision{Permission: name, Granted: granted, Timestamp: epoch, Context: policy.Context{"resource": "/tmp/" + name}}
}

func TestLogFilterAndCopy(t *testing.T) {
	l := NewLog()
	ctx := context.Background()
	l.Append(ctx, decision("a", true))
	l.Append(ctx, decision("b", false))
	l.Append(ctx, decision("c", true))

	all := l.Entries(FilterAll)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Permission)
	assert.Less(t, all[0].ID, all[1].ID)

	granted := l.Entries(FilterGranted)
	require.Len(t, granted, 2)
	assert.Equal(t, "c", granted[1].Permission)

	denied := l.Entries(FilterDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "b", denied[0].Permission)

	all[0].Permission = "mutated"
	all[0].Context["resource"] = "mutated"
	fresh := l.Entries(FilterAll)
	assert.Equal(t, "a", fresh[0].Permission)
	assert.Equal(t, "/tmp/a", fresh[0].Context["resource"])
}

func TestLogAppendDetachesFromDecision(t *testing.T) {
	l := NewLog()
	exp := epoch.Add(time.Hour)
	remaining := 2
	d := decision("a", true)
	d.ExpiresAt = &exp
	d.RemainingUses = &remaining
	d.Rule = &policy.Rule{Pattern: "a", Allow: true}

	returned := l.Append(context.Background(), d)

	d.Rule.Pattern = "changed"
	*d.RemainingUses = 99
	*d.ExpiresAt = epoch
	d.Context["resource"] = "changed"
	returned.Result.Rule.Allow = false
	*returned.Result.RemainingUses = 42

	stored := l.Entries(FilterAll)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].Result.Rule)
	assert.Equal(t, "a", stored[0].Result.Rule.Pattern)
	assert.True(t, stored[0].Result.Rule.Allow)
	assert.Equal(t, 2, *stored[0].Result.RemainingUses)
	assert.Equal(t, exp, *stored[0].Result.ExpiresAt)
	assert.Equal(t, "/tmp/a", stored[0].Context["resource"])
}

func TestLogTrim(t *testing.T) {
	l := NewLog()
	for _, name := range []string{"a", "b", "c", "d"} {
		l.Append(context.Background(), decision(name, true))
	}
	l.Trim(10)
	assert.Equal(t, 4, l.Len())
	l.Trim(2)
	entries := l.Entries(FilterAll)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Permission)
	l.Trim(-1)
	assert.Zero(t, l.Len())
}

func TestLogSink(t *testing.T) {
	repo := &memRepo{}
	l := NewLog(WithSink(repo))
	e := l.Append(context.Background(), decision("a", false))
	require.Len(t, repo.entries, 1)
	assert.Equal(t, e.ID, repo.entries[0].ID)

	repo.err = errors.New("disk full")
	l.Append(context.Background(), decision("b", false))
	assert.Equal(t, 2, l.Len())
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{"": FilterAll, "all": FilterAll, "granted": FilterGranted, "denied": FilterDenied} {
		got, err := ParseFilter(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFilter("maybe")
	assert.Error(t, err)
}
