package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/sheetdrop/sheetdrop/internal/artifact"
	"github.com/sheetdrop/sheetdrop/internal/config"
	"github.com/sheetdrop/sheetdrop/internal/convo"
	"github.com/sheetdrop/sheetdrop/internal/handlers"
	"github.com/sheetdrop/sheetdrop/internal/logger"
	"github.com/sheetdrop/sheetdrop/internal/server"
	"github.com/sheetdrop/sheetdrop/internal/session"
	"github.com/sheetdrop/sheetdrop/internal/store"
	"github.com/sheetdrop/sheetdrop/internal/tabular"
	"github.com/sheetdrop/sheetdrop/internal/version"
	"github.com/sheetdrop/sheetdrop/internal/whatsapp"
)

func provideConfig() (config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

type storeResult struct {
	fx.Out

	Store  store.Store
	Memory *store.Memory
}

func provideStore(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) storeResult {
	s, mem := store.Open(context.Background(), log, cfg.Store.RedisURL)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if closer, ok := s.(store.Closer); ok {
				return closer.Close()
			}
			return nil
		},
	})
	return storeResult{Store: s, Memory: mem}
}

// provideSweeper schedules the fallback store's expiry sweep. The
// remote backend reaps via native TTL and needs no help.
func provideSweeper(lc fx.Lifecycle, mem *store.Memory, log *slog.Logger) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc("@every 30m", func() {
		if reaped := mem.Sweep(); reaped > 0 {
			log.Debug("swept expired entries", slog.Int("count", reaped))
		}
	})
	if err != nil {
		log.Error("schedule sweep failed", slog.Any("error", err))
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return c
}

func provideSessions(s store.Store) *session.Service {
	return session.NewService(s)
}

func provideArtifacts(cfg config.Config, s store.Store, log *slog.Logger) *artifact.Service {
	return artifact.NewService(log, s, cfg.Server.BaseURL,
		cfg.Store.ArtifactTTL(), cfg.Download.Passwords)
}

func provideWhatsApp(cfg config.Config, log *slog.Logger) *whatsapp.Client {
	return whatsapp.NewClient(log, cfg.Twilio.AccountSID,
		cfg.Twilio.AuthToken, cfg.Twilio.From)
}

func provideConvo(
	cfg config.Config,
	log *slog.Logger,
	sessions *session.Service,
	artifacts *artifact.Service,
	client *whatsapp.Client,
) *convo.Service {
	format := tabular.Format(strings.ToLower(strings.TrimSpace(cfg.Download.Format)))
	return convo.NewService(log, sessions, artifacts, client, client,
		cfg.Access.Allowed, cfg.Twilio.TemplateSID, format)
}

func provideServer(
	lc fx.Lifecycle,
	cfg config.Config,
	log *slog.Logger,
	webhook *handlers.WebhookHandler,
	download *handlers.DownloadHandler,
	ping *handlers.PingHandler,
) *server.Server {
	srv := server.NewServer(log, cfg.Server.Addr, webhook, download, ping)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", slog.Any("error", err))
				}
			}()
			log.Info("sheetdrop started",
				slog.String("addr", cfg.Server.Addr),
				slog.String("version", version.GetInfo()),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
	return srv
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStore,
			provideSweeper,
			provideSessions,
			provideArtifacts,
			provideWhatsApp,
			provideConvo,
			handlers.NewWebhookHandler,
			handlers.NewDownloadHandler,
			handlers.NewPingHandler,
			provideServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),
		fx.Invoke(func(*server.Server, *cron.Cron) {}),
	).Run()
}
