package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	c := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	prev := client
	SetClient(c)
	t.Cleanup(func() { SetClient(prev) })
	return mr
}

func TestLease_AcquireAndRelease(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()

	l, err := AcquireLease(ctx, "aggregate:client-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(l.Key()))

	_, err = AcquireLease(ctx, "aggregate:client-a", time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, l.Release(ctx))
	assert.False(t, mr.Exists(l.Key()))

	again, err := AcquireLease(ctx, "aggregate:client-a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLease_ReleaseDoesNotDropForeignToken(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()

	l, err := AcquireLease(ctx, "payout", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	other, err := AcquireLease(ctx, "payout", time.Minute)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx))
	assert.True(t, mr.Exists(other.Key()), "expired holder must not release the new lease")

	var nilLease *Lease
	assert.NoError(t, nilLease.Release(ctx))
}

func TestPublish_AppendsToStream(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()

	id, err := Publish(ctx, ProtocolInstructionStream, map[string]interface{}{"id": "abc", "amount": "10"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := mr.Stream(ProtocolInstructionStream)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Values, "abc")
}

func TestBasicOps_Miniredis(t *testing.T) {
	useMiniredis(t)
	ctx := context.Background()

	require.NoError(t, Set(ctx, "k", "v", time.Minute))
	v, err := Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	ok, err := SetNX(ctx, "k", "w", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, Del(ctx, "k"))
}
