package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	return s.keys[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = "1"
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "mk:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func TestCheckAndMarkProcessed(t *testing.T) {
	t.Parallel()

	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := manager.CheckAndMarkProcessed(ctx, "settlements", "mkp_abc")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = manager.CheckAndMarkProcessed(ctx, "settlements", "mkp_abc")
	require.NoError(t, err)
	assert.True(t, seen)

	// another consumer has its own marker space
	seen, err = manager.CheckAndMarkProcessed(ctx, "notifications", "mkp_abc")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDeleteAllowsRetry(t *testing.T) {
	t.Parallel()

	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = manager.CheckAndMarkProcessed(ctx, "settlements", "mkp_abc")
	require.NoError(t, err)
	require.NoError(t, manager.Delete(ctx, "settlements", "mkp_abc"))

	seen, err := manager.CheckAndMarkProcessed(ctx, "settlements", "mkp_abc")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestValidation(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)

	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "", "mkp_abc")
	assert.Error(t, err)
	_, err = manager.CheckAndMarkProcessed(context.Background(), "settlements", " ")
	assert.Error(t, err)
}
