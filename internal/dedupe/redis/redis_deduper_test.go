package redis

import (
	"context"
	"testing"
	"time"

	"teamrelay/internal/config"
	rdb "teamrelay/internal/stores/redis"
	"teamrelay/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Test Helpers ==========
func setupTestRedisForDeduper(t *testing.T) (*miniredis.Miniredis, *rdb.Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := &rdb.Client{
		Client: goredis.NewClient(&goredis.Options{
			Addr: mr.Addr(),
		}),
	}

	return mr, client
}

func createTestDedupeConfig(prefix string, ttl time.Duration) *config.DedupeConfig {
	return &config.DedupeConfig{
		Backend: config.DedupeRedis,
		Prefix:  prefix,
		TTL:     ttl,
	}
}

// ========== Constructor Tests ==========

func TestNewRedisDeduper_Success(t *testing.T) {
	_, rdb := setupTestRedisForDeduper(t)
	defer rdb.Close()

	cfg := createTestDedupeConfig("test:dedupe:", time.Minute)

	deduper, err := NewRedisDeduper(testutil.Logger(), cfg, rdb)

	require.NoError(t, err)
	assert.NotNil(t, deduper)
	assert.Equal(t, "test:dedupe:", deduper.prefix)
	assert.Equal(t, time.Minute, deduper.ttl)
	assert.Equal(t, rdb, deduper.rdb)
}

func TestNewRedisDeduper_NilConfig(t *testing.T) {
	_, rdb := setupTestRedisForDeduper(t)
	defer rdb.Close()

	deduper, err := NewRedisDeduper(testutil.Logger(), nil, rdb)

	assert.Error(t, err)
	assert.Nil(t, deduper)
	assert.Contains(t, err.Error(), "config is required")
}

func TestNewRedisDeduper_NilRedis(t *testing.T) {
	cfg := createTestDedupeConfig("test:dedupe:", time.Minute)

	deduper, err := NewRedisDeduper(testutil.Logger(), cfg, nil)

	assert.Error(t, err)
	assert.Nil(t, deduper)
	assert.Contains(t, err.Error(), "redis client is required")
}

func TestNewRedisDeduper_ZeroTTL(t *testing.T) {
	_, rdb := setupTestRedisForDeduper(t)
	defer rdb.Close()

	deduper, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("x:", 0), rdb)

	assert.Error(t, err)
	assert.Nil(t, deduper)
}

func TestNewRedisDeduper_DefaultPrefix(t *testing.T) {
	_, rdb := setupTestRedisForDeduper(t)
	defer rdb.Close()

	deduper, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("", time.Minute), rdb)

	require.NoError(t, err)
	assert.Equal(t, "dedupe:", deduper.prefix)
}

// ========== Seen Tests ==========

func TestRedisDedupe_Seen_FirstTime(t *testing.T) {
	mr, rdb := setupTestRedisForDeduper(t)
	defer mr.Close()
	defer rdb.Close()

	deduper, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("test:dedupe:", time.Minute), rdb)
	require.NoError(t, err)

	ctx := context.Background()

	seen, err := deduper.Seen(ctx, "a@example.com|Team A")

	require.NoError(t, err)
	assert.False(t, seen, "first time key should not be marked as seen")

	val, err := rdb.Get(ctx, "test:dedupe:a@example.com|Team A").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", val)

	ttl, err := rdb.TTL(ctx, "test:dedupe:a@example.com|Team A").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisDedupe_Seen_SecondTime(t *testing.T) {
	mr, rdb := setupTestRedisForDeduper(t)
	defer mr.Close()
	defer rdb.Close()

	deduper, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("test:dedupe:", time.Minute), rdb)
	require.NoError(t, err)

	ctx := context.Background()
	key := "b@example.com|Team B"

	seen, err := deduper.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = deduper.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen, "second time key should be marked as seen")
}

func TestRedisDedupe_Seen_ExpiresAfterTTL(t *testing.T) {
	mr, rdb := setupTestRedisForDeduper(t)
	defer mr.Close()
	defer rdb.Close()

	deduper, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("test:dedupe:", time.Minute), rdb)
	require.NoError(t, err)

	ctx := context.Background()
	key := "c@example.com|Team C"

	seen, err := deduper.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	mr.FastForward(30 * time.Second)
	seen, err = deduper.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(31 * time.Second)
	seen, err = deduper.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen, "after ttl key must be recorded again")
}

func TestRedisDedupe_Seen_MultipleKeys(t *testing.T) {
	mr, rdb := setupTestRedisForDeduper(t)
	defer mr.Close()
	defer rdb.Close()

	deduper, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("test:dedupe:", time.Hour), rdb)
	require.NoError(t, err)

	ctx := context.Background()

	testCases := []struct {
		key        string
		shouldSeen bool
	}{
		{"a|1", false}, // First time
		{"b|2", false}, // First time
		{"a|1", true},  // Duplicate
		{"c|3", false}, // First time
		{"b|2", true},  // Duplicate
		{"c|3", true},  // Duplicate
	}

	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			seen, err := deduper.Seen(ctx, tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.shouldSeen, seen)
		})
	}
}

func TestRedisDedupe_Seen_PrefixIsolation(t *testing.T) {
	mr, rdb := setupTestRedisForDeduper(t)
	defer mr.Close()
	defer rdb.Close()

	deduper1, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("dedupe:relay1:", time.Hour), rdb)
	require.NoError(t, err)

	deduper2, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("dedupe:relay2:", time.Hour), rdb)
	require.NoError(t, err)

	ctx := context.Background()
	key := "shared@example.com|Shared"

	seen, err := deduper1.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = deduper1.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = deduper2.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen, "different prefix should have separate deduplication")
}

func TestRedisDedupe_Seen_RedisDown(t *testing.T) {
	mr, rdb := setupTestRedisForDeduper(t)
	defer rdb.Close()

	deduper, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("test:dedupe:", time.Minute), rdb)
	require.NoError(t, err)

	mr.Close()

	seen, err := deduper.Seen(context.Background(), "k|v")
	assert.Error(t, err)
	assert.False(t, seen)
	assert.Error(t, deduper.Health(context.Background()))
}
