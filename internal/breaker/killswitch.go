package breaker

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unclebandit/autoposter/internal/logging"
)

// KillSwitch is the operator override, read live on every circuit check.
type KillSwitch interface {
	Enabled(ctx context.Context) bool
}

// SettableKillSwitch can be flipped from the admin surface.
type SettableKillSwitch interface {
	KillSwitch
	Set(ctx context.Context, enabled bool) error
}

// EnvKillSwitch reads an environment variable on each call.
type EnvKillSwitch struct {
	Key string
}

func NewEnvKillSwitch(key string) *EnvKillSwitch {
	return &EnvKillSwitch{Key: key}
}

func (k *EnvKillSwitch) Enabled(context.Context) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(k.Key)))
	return err == nil && v
}

// Set only affects the current process.
func (k *EnvKillSwitch) Set(_ context.Context, enabled bool) error {
	return os.Setenv(k.Key, strconv.FormatBool(enabled))
}

// StaticKillSwitch is an in-memory switch.
type StaticKillSwitch struct {
	v atomic.Bool
}

func NewStaticKillSwitch(enabled bool) *StaticKillSwitch {
	k := &StaticKillSwitch{}
	k.v.Store(enabled)
	return k
}

func (k *StaticKillSwitch) Enabled(context.Context) bool { return k.v.Load() }

func (k *StaticKillSwitch) Set(_ context.Context, enabled bool) error {
	k.v.Store(enabled)
	return nil
}

const DefaultRedisKillSwitchKey = "autoposter:kill_switch"

// RedisKillSwitch shares the switch between the server and worker processes.
// The environment value is the fallback when the key is absent or Redis is down.
type RedisKillSwitch struct {
	client   goredis.UniversalClient
	key      string
	fallback KillSwitch
	logger   logging.Logger
}

func NewRedisKillSwitch(client goredis.UniversalClient, key string, fallback KillSwitch, logger logging.Logger) *RedisKillSwitch {
	if key == "" {
		key = DefaultRedisKillSwitchKey
	}
	if fallback == nil {
		fallback = NewStaticKillSwitch(false)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RedisKillSwitch{client: client, key: key, fallback: fallback, logger: logger}
}

func (k *RedisKillSwitch) Enabled(ctx context.Context) bool {
	val, err := k.client.Get(ctx, k.key).Result()
	if err == goredis.Nil {
		return k.fallback.Enabled(ctx)
	}
	if err != nil {
		k.logger.WithError(err).Warn("Kill switch lookup failed, using fallback")
		return k.fallback.Enabled(ctx)
	}
	v, err := strconv.ParseBool(val)
	return err == nil && v
}

func (k *RedisKillSwitch) Set(ctx context.Context, enabled bool) error {
	return k.client.Set(ctx, k.key, strconv.FormatBool(enabled), 0).Err()
}
