package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisOtpRepo(t *testing.T) {
	_, rdb := newTestRedis(t)
	otpRepoContract(t, NewRedisOtpRepo(rdb))
}

func TestRedisOtpRepo_KeysExpireWithRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	r := NewRedisOtpRepo(rdb)
	ctx := context.Background()

	owner := model.OwnerRef{Kind: model.KindUser, ID: uuid.New()}
	rec := newRecord(owner, time.Now())
	require.NoError(t, r.Insert(ctx, rec, true))

	key := recordKey(owner, rec.ID.String())
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0))

	mr.FastForward(6 * time.Minute)
	assert.False(t, mr.Exists(key))

	_, err := r.LatestActive(ctx, owner, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := r.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
