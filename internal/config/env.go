package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/kazz187/permguard/internal/engine"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// APIKey guards the HTTP API. Only serve requires it.
	APIKey string `envconfig:"API_KEY"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".permguard/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"permguard/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type EngineEnv struct {
	ConfirmationMode    string        `envconfig:"CONFIRMATION_MODE" default:"open"`
	ConfirmationTimeout time.Duration `envconfig:"CONFIRMATION_TIMEOUT" default:"2m"`
	AuditPersist        bool          `envconfig:"AUDIT_PERSIST" default:"true"`
	AuditMaxEntries     int           `envconfig:"AUDIT_MAX_ENTRIES" default:"10000"`
	WatchConfig         bool          `envconfig:"WATCH_CONFIG" default:"true"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"admin@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	EngineEnv
	VAPIDEnv
}

const namespace = "PERMGUARD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if _, err := engine.ParseConfirmationMode(env.ConfirmationMode); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// EngineOptions translates the environment into engine options.
func (e *EngineEnv) EngineOptions() []engine.Option {
	mode, err := engine.ParseConfirmationMode(e.ConfirmationMode)
	if err != nil {
		mode = engine.ConfirmFailOpen
	}
	return []engine.Option{
		engine.WithConfirmationMode(mode),
		engine.WithConfirmationTimeout(e.ConfirmationTimeout),
	}
}
