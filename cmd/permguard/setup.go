package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kazz187/permguard/internal/audit"
	auditrepo "github.com/kazz187/permguard/internal/audit/repositoryimpl"
	"github.com/kazz187/permguard/internal/config"
	"github.com/kazz187/permguard/internal/engine"
	configrepo "github.com/kazz187/permguard/internal/engine/repositoryimpl"
	"github.com/kazz187/permguard/pkg/clog"
	"github.com/kazz187/permguard/pkg/storage"
)

// setupLogger installs the default logger. Commands that talk on stdout log
// to stderr.
func setupLogger(env *config.Env, w io.Writer) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(w, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func openStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		store, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return store, nil
	case "local", "":
		store, err := storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", env.StorageEnv.Type)
	}
}

// bootstrap is the shared start-up of every command: env, logger, storage
// and an engine loaded from the stored config.
type bootstrap struct {
	env        *config.Env
	store      storage.Storage
	configRepo *configrepo.YAMLRepository
	auditRepo  *auditrepo.YAMLRepository
	engine     *engine.Engine
}

func newBootstrap(ctx context.Context, opts ...engine.Option) (*bootstrap, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	setupLogger(env, os.Stderr)

	store, err := openStorage(ctx, env)
	if err != nil {
		return nil, err
	}
	b := &bootstrap{
		env:        env,
		store:      store,
		configRepo: configrepo.NewYAMLRepository(store),
		auditRepo:  auditrepo.NewYAMLRepository(store),
	}

	var logOpts []audit.LogOption
	if env.AuditPersist {
		logOpts = append(logOpts, audit.WithSink(b.auditRepo))
	}
	engineOpts := append(env.EngineOptions(), engine.WithAuditLog(audit.NewLog(logOpts...)))
	b.engine = engine.New(append(engineOpts, opts...)...)

	found, err := b.engine.LoadConfig(ctx, b.configRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !found {
		slog.DebugContext(ctx, "no stored config, using built-in permissions and deny-by-default policy")
	}
	return b, nil
}
