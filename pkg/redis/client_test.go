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

func TestInitInvalidURL(t *testing.T) {
	err := Init("://invalid-url", "")
	assert.Error(t, err)
}

func TestInit_PingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	prev := GetClient()
	t.Cleanup(func() { SetClient(prev) })

	require.NoError(t, Init("redis://"+srv.Addr(), ""))
	require.NotNil(t, GetClient())
	assert.Equal(t, srv.Addr(), GetClient().Options().Addr)
}

func TestInit_PasswordOverridesURL(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.RequireAuth("s3cret")
	prev := GetClient()
	t.Cleanup(func() { SetClient(prev) })

	require.NoError(t, Init("redis://"+srv.Addr(), "s3cret"))
	assert.Equal(t, "s3cret", GetClient().Options().Password)
}

func TestPingClient_UnreachableEndpoint(t *testing.T) {
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:0",
		DialTimeout: 50 * time.Millisecond,
	})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Error(t, pingClient(ctx, c))
}

func TestSetNX_UnreachableRedis(t *testing.T) {
	prev := GetClient()
	t.Cleanup(func() { SetClient(prev) })
	SetClient(goredis.NewClient(&goredis.Options{
		Addr:         "127.0.0.1:0",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := SetNX(ctx, "k", "v", time.Second)
	assert.Error(t, err)
}
