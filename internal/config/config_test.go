package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViper(values map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, value := range values {
		v.Set(key, value)
	}
	return v
}

func TestDefaultsMatchArenaTuning(t *testing.T) {
	cfg, err := fromViper(newViper(map[string]interface{}{
		"jwt.secret": "secret",
		"redis.url":  "redis://localhost:6379/0",
	}))
	require.NoError(t, err)

	require.Equal(t, StoreRedis, cfg.StoreBackend)
	require.Equal(t, 5*time.Second, cfg.GradingTimeout)
	require.Equal(t, 5*time.Second, cfg.SweepInterval)
	require.Equal(t, 30*time.Minute, cfg.WaitingIdle)
	require.Equal(t, time.Hour, cfg.CompletedRetention)
	require.Equal(t, 10*time.Minute, cfg.CancelledRetention)
	require.Equal(t, 5*time.Minute, cfg.QueueTimeout)
	require.Equal(t, 24*time.Hour, cfg.StoreTTL)
	require.Equal(t, time.Hour, cfg.IntegrityTTL)
	require.Equal(t, 30*time.Second, cfg.MinThinkTime)
	require.Equal(t, 5, cfg.MaxPerMinute)
	require.Equal(t, 30*24*time.Hour, cfg.SimilarityWindow)
	require.Equal(t, "casual", cfg.DefaultMode)
	require.Equal(t, 2, cfg.DefaultMaxPlayers)
	require.Equal(t, 3, cfg.DefaultMaxRounds)
	require.Equal(t, 10*time.Minute, cfg.DefaultRoundTimeLimit)
	require.Equal(t, time.Hour, cfg.DefaultSessionTimeLimit)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Empty(t, cfg.KafkaBrokers)
}

func TestLoadValidatesBackendAndSecrets(t *testing.T) {
	_, err := fromViper(newViper(map[string]interface{}{"redis.url": "redis://localhost:6379"}))
	require.ErrorContains(t, err, "jwt secret")

	_, err = fromViper(newViper(map[string]interface{}{"jwt.secret": "s"}))
	require.ErrorContains(t, err, "redis url")

	cfg, err := fromViper(newViper(map[string]interface{}{
		"jwt.secret":    "s",
		"store.backend": "DynamoDB",
		"kafka.brokers": "kafka-1:9092, kafka-2:9092,",
	}))
	require.NoError(t, err)
	require.Equal(t, StoreDynamoDB, cfg.StoreBackend)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)

	_, err = fromViper(newViper(map[string]interface{}{"jwt.secret": "s", "store.backend": "memcached"}))
	require.ErrorContains(t, err, "unknown store backend")

	_, err = fromViper(newViper(map[string]interface{}{"jwt.secret": "s", "redis.url": "redis://x", "grading.timeout": "soon"}))
	require.ErrorContains(t, err, "grading.timeout")
}

func TestLoadReadsPrefixedEnvironment(t *testing.T) {
	t.Setenv("ARENA_JWT_SECRET", "from-env")
	t.Setenv("ARENA_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("ARENA_GRADING_TIMEOUT", "2s")
	t.Setenv("ARENA_APP_PORT", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.JWTSecret)
	require.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	require.Equal(t, 2*time.Second, cfg.GradingTimeout)
	require.Equal(t, ":9090", cfg.HTTPAddress())
}
