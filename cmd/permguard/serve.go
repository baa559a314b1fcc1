package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/permguard/internal/confirmation"
	configrepo "github.com/kazz187/permguard/internal/engine/repositoryimpl"
	"github.com/kazz187/permguard/internal/pushnotification"
	pushsubrepo "github.com/kazz187/permguard/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/permguard/internal/reload"
	"github.com/kazz187/permguard/internal/server"
	"github.com/kazz187/permguard/pkg/clock"
	"github.com/kazz187/permguard/pkg/storage"
)

const auditTrimInterval = time.Minute

func runServe() error {
	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	b, err := newBootstrap(ctx)
	if err != nil {
		return err
	}
	if b.env.APIKey == "" {
		return errors.New("PERMGUARD_API_KEY must be set to serve the API")
	}

	// Setup push notification
	pushSubRepo := pushsubrepo.NewYAMLRepository(b.store)
	pushSender := pushnotification.NewSender(&b.env.VAPIDEnv, pushSubRepo)
	registrar := pushnotification.NewRegistrar(&b.env.VAPIDEnv, pushSubRepo, clock.Real())

	brokerOpts := []confirmation.Option{}
	if pushSender.Enabled() {
		brokerOpts = append(brokerOpts, confirmation.WithNotifier(pushSender))
	}
	broker := confirmation.NewBroker(brokerOpts...)
	b.engine.SetConfirmationHandler(broker.Confirm)

	// Config hot reload only works against the local filesystem.
	if local, ok := b.store.(*storage.LocalStorage); ok && b.env.WatchConfig {
		w := reload.NewWatcher(local.Path(configrepo.ConfigPath), b.engine, reload.WithReloadHook(func(changed bool, err error) {
			if err != nil {
				slog.Error("failed to reload config", "error", err)
				return
			}
			if changed {
				slog.Info("config reloaded")
			}
		}))
		if err := w.Start(ctx); err != nil {
			return err
		}
	}

	srv := server.NewServer(b.env, b.engine, b.configRepo, broker, registrar)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		if b.env.AuditMaxEntries <= 0 {
			return nil
		}
		ticker := time.NewTicker(auditTrimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				b.engine.TrimAuditLog(b.env.AuditMaxEntries)
			}
		}
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	return p.Wait()
}
