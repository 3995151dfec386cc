package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Remote   RemoteConfig
	Registry RegistryConfig
	Sync     SyncConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RemoteConfig points at the central PID authority. All four of TokenURL,
// PostURL, Username and Password must be set for remote registration to be
// enabled; otherwise the service runs in local-only mode.
type RemoteConfig struct {
	TokenURL    string
	PostURL     string
	FixPidV2URL string
	Username    string
	Password    string
	Timeout     time.Duration
	MaxRetries  int
}

// RegistryConfig tunes local registry behaviour.
type RegistryConfig struct {
	CacheTTL        time.Duration
	MaxPidAttempts  int
	MaxStoreRetries int
}

// SyncConfig controls the background synchronization worker.
type SyncConfig struct {
	Enabled    bool
	Workers    int
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Enabled:  v.GetBool("REDIS_ENABLED"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Remote = RemoteConfig{
		TokenURL:    v.GetString("PID_REMOTE_TOKEN_URL"),
		PostURL:     v.GetString("PID_REMOTE_POST_URL"),
		FixPidV2URL: v.GetString("PID_REMOTE_FIX_PID_V2_URL"),
		Username:    v.GetString("PID_REMOTE_USERNAME"),
		Password:    v.GetString("PID_REMOTE_PASSWORD"),
		Timeout:     parseDuration(v.GetString("PID_REMOTE_TIMEOUT"), 15*time.Second),
		MaxRetries:  v.GetInt("PID_REMOTE_MAX_RETRIES"),
	}

	cfg.Registry = RegistryConfig{
		CacheTTL:        parseDuration(v.GetString("REGISTRY_CACHE_TTL"), 10*time.Minute),
		MaxPidAttempts:  v.GetInt("REGISTRY_MAX_PID_ATTEMPTS"),
		MaxStoreRetries: v.GetInt("REGISTRY_MAX_STORE_RETRIES"),
	}

	cfg.Sync = SyncConfig{
		Enabled:    v.GetBool("SYNC_ENABLED"),
		Workers:    v.GetInt("SYNC_WORKERS"),
		Interval:   parseDuration(v.GetString("SYNC_INTERVAL"), 10*time.Minute),
		BatchSize:  v.GetInt("SYNC_BATCH_SIZE"),
		MaxRetries: v.GetInt("SYNC_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("SYNC_RETRY_DELAY"), time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/pid_provider")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pid_provider")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_ENABLED", false)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "pid-provider")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PID_REMOTE_TOKEN_URL", "")
	v.SetDefault("PID_REMOTE_POST_URL", "")
	v.SetDefault("PID_REMOTE_FIX_PID_V2_URL", "")
	v.SetDefault("PID_REMOTE_USERNAME", "")
	v.SetDefault("PID_REMOTE_PASSWORD", "")
	v.SetDefault("PID_REMOTE_TIMEOUT", "15s")
	v.SetDefault("PID_REMOTE_MAX_RETRIES", 5)

	v.SetDefault("REGISTRY_CACHE_TTL", "10m")
	v.SetDefault("REGISTRY_MAX_PID_ATTEMPTS", 50)
	v.SetDefault("REGISTRY_MAX_STORE_RETRIES", 3)

	v.SetDefault("SYNC_ENABLED", false)
	v.SetDefault("SYNC_WORKERS", 2)
	v.SetDefault("SYNC_INTERVAL", "10m")
	v.SetDefault("SYNC_BATCH_SIZE", 100)
	v.SetDefault("SYNC_MAX_RETRIES", 3)
	v.SetDefault("SYNC_RETRY_DELAY", "1s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
