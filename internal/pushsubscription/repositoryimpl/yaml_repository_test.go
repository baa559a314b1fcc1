package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/permguard/internal/pushsubscription"
	"github.com/kazz187/permguard/pkg/cerr"
	"github.com/kazz187/permguard/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(s)

	sub := &pushsubscription.Subscription{
		ID: "01HZX", Endpoint: "https://push.example/abc", P256dhKey: "k", AuthKey: "a",
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, sub))
	assert.True(t, cerr.IsCode(repo.Create(ctx, sub), cerr.AlreadyExists))

	found, err := repo.FindByEndpoint(ctx, "https://push.example/abc")
	require.NoError(t, err)
	assert.Equal(t, "01HZX", found.ID)

	_, err = repo.FindByEndpoint(ctx, "https://push.example/other")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	require.NoError(t, repo.Delete(ctx, sub.ID))
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.True(t, cerr.IsCode(repo.Delete(ctx, sub.ID), cerr.NotFound))
}
