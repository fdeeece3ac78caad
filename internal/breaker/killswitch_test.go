package breaker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvKillSwitchReadsLive(t *testing.T) {
	ctx := context.Background()
	ks := NewEnvKillSwitch("TEST_KILL_SWITCH")

	t.Setenv("TEST_KILL_SWITCH", "")
	assert.False(t, ks.Enabled(ctx))

	t.Setenv("TEST_KILL_SWITCH", "true")
	assert.True(t, ks.Enabled(ctx))

	require.NoError(t, ks.Set(ctx, false))
	assert.False(t, ks.Enabled(ctx))
}

func TestRedisKillSwitch(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fallback := NewStaticKillSwitch(true)
	ks := NewRedisKillSwitch(client, "", fallback, nil)

	assert.True(t, ks.Enabled(ctx), "absent key uses the fallback")

	require.NoError(t, ks.Set(ctx, false))
	assert.False(t, ks.Enabled(ctx))
	val, err := mr.Get(DefaultRedisKillSwitchKey)
	require.NoError(t, err)
	assert.Equal(t, "false", val)

	mr.Set(DefaultRedisKillSwitchKey, "true")
	assert.True(t, ks.Enabled(ctx))

	mr.Close()
	assert.True(t, ks.Enabled(ctx), "unreachable redis falls back")
}
