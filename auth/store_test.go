package auth_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/habedi/monitorctl/auth"
	"github.com/habedi/monitorctl/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mu        sync.Mutex
	token     *db.Token
	getErr    error
	upsertErr error
	upserts   int
	clears    int
}

func (m *mockRepo) Get(context.Context) (*db.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.getErr
}

func (m *mockRepo) Upsert(_ context.Context, token *db.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.token = token
	return nil
}

func (m *mockRepo) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.token = nil
	return nil
}

func TestNewStoreSeedsFromRepository(t *testing.T) {
	repo := &mockRepo{token: &db.Token{AccessToken: "a1", RefreshToken: "r1"}}
	store, err := auth.NewStore(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, "a1", store.AccessToken())
	assert.Equal(t, "r1", store.RefreshToken())
	assert.True(t, store.Authenticated())
}

func TestNewStoreIgnoresPairWithoutAccessToken(t *testing.T) {
	repo := &mockRepo{token: &db.Token{RefreshToken: "r1"}}
	store, err := auth.NewStore(context.Background(), repo)
	require.NoError(t, err)
	assert.Empty(t, store.AccessToken())
	assert.Empty(t, store.RefreshToken())
	assert.False(t, store.Authenticated())
}

func TestNewStorePropagatesRepositoryError(t *testing.T) {
	repo := &mockRepo{getErr: errors.New("disk on fire")}
	_, err := auth.NewStore(context.Background(), repo)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestSetTokensPersistsPair(t *testing.T) {
	repo := &mockRepo{}
	store, err := auth.NewStore(context.Background(), repo)
	require.NoError(t, err)

	require.NoError(t, store.SetTokens("a2", "r2"))
	assert.Equal(t, "a2", store.AccessToken())
	require.NotNil(t, repo.token)
	assert.Equal(t, "r2", repo.token.RefreshToken)
}

func TestSetTokensRequiresAccessToken(t *testing.T) {
	store, err := auth.NewStore(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, store.SetTokens("a1", "r1"))
	assert.True(t, store.Refreshable())

	assert.ErrorIs(t, store.SetTokens("", "r2"), auth.ErrMissingAccessToken)
	assert.Equal(t, "a1", store.AccessToken(), "a rejected pair leaves the old one in place")
}

func TestSetTokensAccessOnlySession(t *testing.T) {
	store, err := auth.NewStore(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, store.SetTokens("legacy", ""))
	assert.True(t, store.Authenticated())
	assert.False(t, store.Refreshable())
}

func TestSetTokensKeepsMemoryWhenPersistFails(t *testing.T) {
	repo := &mockRepo{upsertErr: errors.New("read-only")}
	store, err := auth.NewStore(context.Background(), repo)
	require.NoError(t, err)

	err = store.SetTokens("a3", "r3")
	assert.ErrorContains(t, err, "read-only")
	assert.Equal(t, "a3", store.AccessToken())
	assert.Equal(t, "r3", store.RefreshToken())
}

func TestClearTokensIsIdempotent(t *testing.T) {
	repo := &mockRepo{token: &db.Token{AccessToken: "a1", RefreshToken: "r1"}}
	store, err := auth.NewStore(context.Background(), repo)
	require.NoError(t, err)

	require.NoError(t, store.ClearTokens())
	require.NoError(t, store.ClearTokens())
	assert.Empty(t, store.AccessToken())
	assert.Empty(t, store.RefreshToken())
	assert.Nil(t, repo.token)
	assert.Equal(t, 2, repo.clears)
}

func TestStoreWithSQLiteRepository(t *testing.T) {
	gdb, err := db.Open(t.TempDir() + "/tokens.db")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := db.NewTokenRepository(gdb)

	first, err := auth.NewStore(context.Background(), repo)
	require.NoError(t, err)
	require.NoError(t, first.SetTokens("a1", "r1"))

	second, err := auth.NewStore(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, "a1", second.AccessToken(), "a new process picks up the saved pair")
}

func TestConcurrentSetAndClearKeepRepositoryInSync(t *testing.T) {
	repo := &mockRepo{}
	store, err := auth.NewStore(context.Background(), repo)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.SetTokens(fmt.Sprintf("a%d", i), fmt.Sprintf("r%d", i))
		}(i)
		go func() {
			defer wg.Done()
			_ = store.ClearTokens()
		}()
	}
	wg.Wait()

	access, refresh := store.AccessToken(), store.RefreshToken()
	stored, err := repo.Get(context.Background())
	require.NoError(t, err)
	if access == "" {
		assert.Nil(t, stored, "memory is empty, so the repository must be too")
		return
	}
	require.NotNil(t, stored)
	assert.Equal(t, access, stored.AccessToken)
	assert.Equal(t, refresh, stored.RefreshToken)
}
