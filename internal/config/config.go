package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string   `mapstructure:"PORT"`
	Env                   string   `mapstructure:"ENV"`
	LogLevel              string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL           string   `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer            string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience          string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey        string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins           []string `mapstructure:"CORS_ORIGINS"`
	MessagingDriver       string   `mapstructure:"MESSAGING_DRIVER"`
	RedisURL              string   `mapstructure:"REDIS_URL"`
	MQTTBroker            string   `mapstructure:"MQTT_BROKER"`
	MQTTClientID          string   `mapstructure:"MQTT_CLIENT_ID"`
	KafkaBrokers          []string `mapstructure:"KAFKA_BROKERS"`
	HighPriorityQueue     string   `mapstructure:"HIGH_PRIORITY_QUEUE"`
	AuditBatchConcurrency int      `mapstructure:"AUDIT_BATCH_CONCURRENCY"`
	SeedPatients          []string `mapstructure:"SEED_PATIENTS"`
	RateLimitRPS          float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit             string   `mapstructure:"BODY_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"MESSAGING_DRIVER", "REDIS_URL", "MQTT_BROKER", "MQTT_CLIENT_ID", "KAFKA_BROKERS",
	"HIGH_PRIORITY_QUEUE", "AUDIT_BATCH_CONCURRENCY", "SEED_PATIENTS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
}

// listKeys hold comma separated values in the environment.
var listKeys = []string{"CORS_ORIGINS", "KAFKA_BROKERS", "SEED_PATIENTS"}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_ISSUER", "triage-server")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MESSAGING_DRIVER", "websocket")
	v.SetDefault("MQTT_CLIENT_ID", "triage-server")
	v.SetDefault("HIGH_PRIORITY_QUEUE", "triage_high_priority")
	v.SetDefault("AUDIT_BATCH_CONCURRENCY", 16)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "64K")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for _, k := range listKeys {
		list := splitList(v.GetString(k))
		switch k {
		case "CORS_ORIGINS":
			cfg.CORSOrigins = list
		case "KAFKA_BROKERS":
			cfg.KafkaBrokers = list
		case "SEED_PATIENTS":
			cfg.SeedPatients = list
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesMemoryStore reports whether repositories live in process memory. Only
// development may run without Postgres.
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == "" && c.IsDev()
}

// Validate refuses configurations that would lose data or skip auth outside
// development.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && !c.IsDev() {
		return fmt.Errorf("DATABASE_URL is required when ENV=%q", c.Env)
	}
	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY of at least 32 bytes is required when ENV=%q", c.Env)
	}

	switch strings.ToLower(c.MessagingDriver) {
	case "websocket":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when MESSAGING_DRIVER=redis")
		}
	case "mqtt":
		if c.MQTTBroker == "" {
			return fmt.Errorf("MQTT_BROKER is required when MESSAGING_DRIVER=mqtt")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when MESSAGING_DRIVER=kafka")
		}
	default:
		return fmt.Errorf("MESSAGING_DRIVER must be redis, mqtt, kafka or websocket, got %q", c.MessagingDriver)
	}

	if c.AuditBatchConcurrency < 1 {
		return fmt.Errorf("AUDIT_BATCH_CONCURRENCY must be positive, got %d", c.AuditBatchConcurrency)
	}
	return nil
}
