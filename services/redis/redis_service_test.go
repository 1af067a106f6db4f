package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNewRedisService(t *testing.T) {
	mr := miniredis.RunT(t)

	svc, err := NewRedisService(&RedisConfig{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.Ping(context.Background()))
}

func TestNewRedisServiceUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err := NewRedisService(&RedisConfig{Host: host, Port: port})
	require.Error(t, err)
}

func TestRedisServiceKeyValue(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	var kv KeyValue = NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	_, err := kv.Get(ctx, "balance:1")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, kv.Set(ctx, "balance:1", 7407, time.Minute))
	val, err := kv.Get(ctx, "balance:1")
	require.NoError(t, err)
	require.Equal(t, "7407", val)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "balance:1")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, kv.Set(ctx, "balance:1", 1, 0))
	require.NoError(t, kv.Delete(ctx, "balance:1"))
	require.False(t, mr.Exists("balance:1"))
}
