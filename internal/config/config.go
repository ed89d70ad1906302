package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

// BackendConfig points at the hosted storage and functions endpoints.
type BackendConfig struct {
	StorageURL    string
	StorageBucket string
	ServiceKey    string
	FunctionsURL  string
}

type SyncConfig struct {
	PollInterval   time.Duration
	StaleTime      time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Channel        string
}

type TimeoutConfig struct {
	UniquenessCheck time.Duration
	Insert          time.Duration
	Write           time.Duration
	Fetch           time.Duration
}

type TasksConfig struct {
	IDMaxAttempts   int
	UndoWindow      time.Duration
	SignedURLTTL    time.Duration
	BulkConcurrency int
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Backend     BackendConfig
	Sync        SyncConfig
	Timeouts    TimeoutConfig
	Tasks       TasksConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()
	setDefaults(v)

	_ = v.ReadInConfig()

	cfg := fromViper(v)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("BACKEND_STORAGE_BUCKET", "task-photos")

	v.SetDefault("SYNC_POLL_INTERVAL", 5*time.Second)
	v.SetDefault("SYNC_STALE_TIME", 10*time.Second)
	v.SetDefault("SYNC_MAX_RETRIES", 3)
	v.SetDefault("SYNC_RETRY_BASE_DELAY", time.Second)
	v.SetDefault("SYNC_RETRY_MAX_DELAY", 30*time.Second)
	v.SetDefault("SYNC_CHANNEL", "tasks_changes")

	v.SetDefault("TIMEOUT_UNIQUENESS_CHECK", 10*time.Second)
	v.SetDefault("TIMEOUT_INSERT", 15*time.Second)
	v.SetDefault("TIMEOUT_WRITE", 15*time.Second)
	v.SetDefault("TIMEOUT_FETCH", 10*time.Second)

	v.SetDefault("TASK_ID_MAX_ATTEMPTS", 5)
	v.SetDefault("UNDO_WINDOW", 5*time.Second)
	v.SetDefault("SIGNED_URL_TTL", time.Hour)
	v.SetDefault("BULK_CONCURRENCY", 4)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Backend: BackendConfig{
			StorageURL:    v.GetString("BACKEND_STORAGE_URL"),
			StorageBucket: v.GetString("BACKEND_STORAGE_BUCKET"),
			ServiceKey:    v.GetString("BACKEND_SERVICE_KEY"),
			FunctionsURL:  v.GetString("BACKEND_FUNCTIONS_URL"),
		},
		Sync: SyncConfig{
			PollInterval:   v.GetDuration("SYNC_POLL_INTERVAL"),
			StaleTime:      v.GetDuration("SYNC_STALE_TIME"),
			MaxRetries:     v.GetInt("SYNC_MAX_RETRIES"),
			RetryBaseDelay: v.GetDuration("SYNC_RETRY_BASE_DELAY"),
			RetryMaxDelay:  v.GetDuration("SYNC_RETRY_MAX_DELAY"),
			Channel:        v.GetString("SYNC_CHANNEL"),
		},
		Timeouts: TimeoutConfig{
			UniquenessCheck: v.GetDuration("TIMEOUT_UNIQUENESS_CHECK"),
			Insert:          v.GetDuration("TIMEOUT_INSERT"),
			Write:           v.GetDuration("TIMEOUT_WRITE"),
			Fetch:           v.GetDuration("TIMEOUT_FETCH"),
		},
		Tasks: TasksConfig{
			IDMaxAttempts:   v.GetInt("TASK_ID_MAX_ATTEMPTS"),
			UndoWindow:      v.GetDuration("UNDO_WINDOW"),
			SignedURLTTL:    v.GetDuration("SIGNED_URL_TTL"),
			BulkConcurrency: v.GetInt("BULK_CONCURRENCY"),
		},
	}
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT %d is out of range", cfg.HTTP.Port)
	}
	if cfg.Sync.PollInterval <= 0 {
		return fmt.Errorf("SYNC_POLL_INTERVAL must be positive")
	}
	if cfg.Sync.RetryBaseDelay > cfg.Sync.RetryMaxDelay {
		return fmt.Errorf("SYNC_RETRY_BASE_DELAY must not exceed SYNC_RETRY_MAX_DELAY")
	}
	if cfg.Tasks.IDMaxAttempts <= 0 {
		return fmt.Errorf("TASK_ID_MAX_ATTEMPTS must be positive")
	}
	return nil
}
