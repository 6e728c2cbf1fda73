package redis_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence/persistencetest"
	"github.com/dukex/relay/pkg/persistence/redis"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersistence(t *testing.T) (*redis.Persistence, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	return redis.NewFromClient(slog.Default(), client, redis.WithPrefix("test:")), mr
}

func TestPersistence_Contract(t *testing.T) {
	p, _ := newTestPersistence(t)

	persistencetest.Run(t, p)
}

func TestPersistence_UsesPrefixAndIndexes(t *testing.T) {
	p, mr := newTestPersistence(t)

	err := p.ExecutionRepository().Save(t.Context(), &models.Execution{
		ID:         "exec-1",
		ScenarioID: "sc-1",
		Status:     models.ExecutionStatusRunning,
		StartTime:  time.Now(),
	})
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:execution:exec-1"))

	members, err := mr.SMembers("test:executions:status:running")
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-1"}, members)
}

func TestLocker_TryLock(t *testing.T) {
	p, mr := newTestPersistence(t)
	locker := redis.NewLocker(p.Client(), "test:")
	ctx := t.Context()

	unlock, err := locker.TryLock(ctx, "execution:e1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:execution:e1"))

	_, err = locker.TryLock(ctx, "execution:e1", 5*time.Second)
	assert.ErrorIs(t, err, redis.ErrLockHeld)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:execution:e1"))

	unlock, err = locker.TryLock(ctx, "execution:e1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestLocker_ExpiredLockCanBeTaken(t *testing.T) {
	p, mr := newTestPersistence(t)
	locker := redis.NewLocker(p.Client(), "test:")
	ctx := t.Context()

	stale, err := locker.TryLock(ctx, "execution:e2", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	unlock, err := locker.TryLock(ctx, "execution:e2", time.Second)
	require.NoError(t, err)

	// the stale owner cannot release the new owner's lock
	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("test:lock:execution:e2"))

	require.NoError(t, unlock(ctx))
}
