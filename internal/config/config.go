package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
)

// Config holds runtime configuration values for the arena service.
type Config struct {
	AppName      string
	AppEnv       string
	AppPort      string
	DatabaseURL  string
	RedisURL     string
	NATSURL      string
	ChannelBase  string
	JWTSecret    string
	CORSOrigins  string
	SeedEnabled  bool
	SeedToken    string
	MetricsToken string

	StoreBackend string
	StoreTTL     time.Duration
	DynamoTable  string
	DynamoRegion string
	DynamoURL    string

	KafkaBrokers    []string
	KafkaAuditTopic string
	AuditBuffer     int

	GradingTimeout time.Duration
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string

	SandboxEnabled   bool
	DockerHost       string
	SandboxTimeout   time.Duration
	SandboxMemoryMB  int
	SandboxCPUShares int

	SweepInterval      time.Duration
	WaitingIdle        time.Duration
	CompletedRetention time.Duration
	CancelledRetention time.Duration
	QueueTimeout       time.Duration

	IntegrityTTL     time.Duration
	MinThinkTime     time.Duration
	MaxPerMinute     int
	SimilarityWindow time.Duration

	DefaultMode             string
	DefaultLanguage         string
	DefaultDifficulty       string
	DefaultMaxPlayers       int
	DefaultMaxRounds        int
	DefaultRoundTimeLimit   time.Duration
	DefaultSessionTimeLimit time.Duration

	SubmitRateLimit  int
	StreamKeepAlive  time.Duration
	ShutdownDeadline time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}
	return fmt.Sprintf(":%s", c.AppPort)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "GEMA Arena")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("channel.base", "arena")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("seed.enabled", false)

	v.SetDefault("store.backend", StoreRedis)
	v.SetDefault("store.ttl", "24h")
	v.SetDefault("dynamodb.table", "arena-sessions")

	v.SetDefault("kafka.audit_topic", "arena.security-events")
	v.SetDefault("audit.buffer", 256)

	v.SetDefault("grading.timeout", "5s")
	v.SetDefault("openai.model", "gpt-4o-mini")

	v.SetDefault("sandbox.enabled", false)
	v.SetDefault("sandbox.timeout", "3s")
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.cpu_shares", 512)

	v.SetDefault("sweep.interval", "5s")
	v.SetDefault("sweep.waiting_idle", "30m")
	v.SetDefault("sweep.completed_retention", "1h")
	v.SetDefault("sweep.cancelled_retention", "10m")
	v.SetDefault("queue.timeout", "5m")

	v.SetDefault("integrity.ttl", "1h")
	v.SetDefault("integrity.min_think_time", "30s")
	v.SetDefault("integrity.max_per_minute", 5)
	v.SetDefault("similarity.window", "720h")

	v.SetDefault("session.mode", "casual")
	v.SetDefault("session.language", "python")
	v.SetDefault("session.difficulty", "medium")
	v.SetDefault("session.max_players", 2)
	v.SetDefault("session.max_rounds", 3)
	v.SetDefault("session.round_time_limit", "10m")
	v.SetDefault("session.time_limit", "60m")

	v.SetDefault("rate_limit.submit_per_minute", 20)
	v.SetDefault("stream.keepalive", "30s")
	v.SetDefault("shutdown.deadline", "10s")
}

// Load reads configuration values from ARENA_* environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var parseErr error
	duration := func(key string) time.Duration {
		raw := strings.TrimSpace(v.GetString(key))
		d, err := time.ParseDuration(raw)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		return d
	}

	cfg := Config{
		AppName:      v.GetString("app.name"),
		AppEnv:       v.GetString("app.env"),
		AppPort:      v.GetString("app.port"),
		DatabaseURL:  v.GetString("database.url"),
		RedisURL:     v.GetString("redis.url"),
		NATSURL:      v.GetString("nats.url"),
		ChannelBase:  v.GetString("channel.base"),
		JWTSecret:    v.GetString("jwt.secret"),
		CORSOrigins:  v.GetString("cors.allow_origins"),
		SeedEnabled:  v.GetBool("seed.enabled"),
		SeedToken:    v.GetString("seed.token"),
		MetricsToken: v.GetString("metrics.token"),

		StoreBackend: strings.ToLower(strings.TrimSpace(v.GetString("store.backend"))),
		StoreTTL:     duration("store.ttl"),
		DynamoTable:  v.GetString("dynamodb.table"),
		DynamoRegion: v.GetString("dynamodb.region"),
		DynamoURL:    v.GetString("dynamodb.endpoint"),

		KafkaBrokers:    splitList(v.GetString("kafka.brokers")),
		KafkaAuditTopic: v.GetString("kafka.audit_topic"),
		AuditBuffer:     v.GetInt("audit.buffer"),

		GradingTimeout: duration("grading.timeout"),
		OpenAIAPIKey:   v.GetString("openai.api_key"),
		OpenAIBaseURL:  v.GetString("openai.base_url"),
		OpenAIModel:    v.GetString("openai.model"),

		SandboxEnabled:   v.GetBool("sandbox.enabled"),
		DockerHost:       v.GetString("docker.host"),
		SandboxTimeout:   duration("sandbox.timeout"),
		SandboxMemoryMB:  v.GetInt("sandbox.memory_mb"),
		SandboxCPUShares: v.GetInt("sandbox.cpu_shares"),

		SweepInterval:      duration("sweep.interval"),
		WaitingIdle:        duration("sweep.waiting_idle"),
		CompletedRetention: duration("sweep.completed_retention"),
		CancelledRetention: duration("sweep.cancelled_retention"),
		QueueTimeout:       duration("queue.timeout"),

		IntegrityTTL:     duration("integrity.ttl"),
		MinThinkTime:     duration("integrity.min_think_time"),
		MaxPerMinute:     v.GetInt("integrity.max_per_minute"),
		SimilarityWindow: duration("similarity.window"),

		DefaultMode:             v.GetString("session.mode"),
		DefaultLanguage:         v.GetString("session.language"),
		DefaultDifficulty:       v.GetString("session.difficulty"),
		DefaultMaxPlayers:       v.GetInt("session.max_players"),
		DefaultMaxRounds:        v.GetInt("session.max_rounds"),
		DefaultRoundTimeLimit:   duration("session.round_time_limit"),
		DefaultSessionTimeLimit: duration("session.time_limit"),

		SubmitRateLimit:  v.GetInt("rate_limit.submit_per_minute"),
		StreamKeepAlive:  duration("stream.keepalive"),
		ShutdownDeadline: duration("shutdown.deadline"),
	}
	if parseErr != nil {
		return Config{}, parseErr
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.StoreBackend {
	case StoreRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("redis url is required for the redis store backend")
		}
	case StoreDynamoDB:
		if cfg.DynamoTable == "" {
			return Config{}, fmt.Errorf("dynamodb table is required for the dynamodb store backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
