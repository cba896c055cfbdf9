// Package main запускает HTTP-сервер сервиса аукционов artbid.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/artbid/internal/config"
	"github.com/mmeshcher/artbid/internal/handler"
	"github.com/mmeshcher/artbid/internal/middleware"
	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/notify"
	"github.com/mmeshcher/artbid/internal/repository"
	"github.com/mmeshcher/artbid/internal/service"
)

func main() {
	bootstrap, _ := zap.NewProduction()
	defer bootstrap.Sync()

	cfg, err := config.Parse()
	if err != nil {
		bootstrap.Sugar().Fatalw("configuration error", "error", err.Error())
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		bootstrap.Sugar().Fatalw("logger initialization error", "error", err.Error())
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(cfg)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		sugar.Fatalw("notification backend error", "error", err.Error())
	}
	defer publisher.Close()

	dispatcher := notify.NewDispatcher(publisher, logger)

	svc := service.NewService(repo, dispatcher, logger, service.Options{
		Policy:        model.BidPolicy{AllowSelfOutbid: cfg.AllowSelfOutbid},
		BcryptCost:    cfg.BcryptCost,
		SweepInterval: cfg.SweepInterval,
	})
	defer svc.Close()

	if cfg.AdminLogin != "" {
		_, err := svc.RegisterAdmin(ctx, cfg.AdminLogin, cfg.AdminPassword)
		if err != nil && !errors.Is(err, repository.ErrUserExists) {
			sugar.Fatalw("admin bootstrap error", "error", err.Error())
		}
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	adminAuth := middleware.NewAdminAuth(cfg.AdminJWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, adminAuth)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// диспетчер останавливается после сервера, чтобы события последних запросов ушли
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})

	g.Go(func() error {
		svc.StartLifecycleSweeper(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting artbid server",
			"addr", cfg.RunAddress,
			"storage", storageName(cfg),
			"notify", cfg.Backends(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		stopDispatch()
		if err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func storageName(cfg *config.Config) string {
	if cfg.DatabaseURI == "" {
		return "memory"
	}
	return "postgres"
}

func openRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		return repository.NewMemoryRepository(nil), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI, nil)
}

func buildPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (notify.Publisher, error) {
	var pubs notify.MultiPublisher

	for _, name := range cfg.Backends() {
		var (
			p   notify.Publisher
			err error
		)
		switch name {
		case "log":
			p = notify.NewLogPublisher(logger)
		case "nats":
			p, err = notify.NewNATSPublisher(ctx, cfg.NATSURL)
		case "rabbitmq":
			p, err = notify.NewRabbitPublisher(cfg.RabbitMQURL)
		case "redis":
			p, err = notify.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		case "webhook":
			if cfg.WebhookURL == "" {
				err = errors.New("WEBHOOK_URL is required for the webhook backend")
			} else {
				p = notify.NewWebhookPublisher(cfg.WebhookURL)
			}
		default:
			err = fmt.Errorf("unknown notification backend %q", name)
		}
		if err != nil {
			_ = pubs.Close()
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		pubs = append(pubs, p)
	}

	switch len(pubs) {
	case 0:
		return notify.NewLogPublisher(logger), nil
	case 1:
		return pubs[0], nil
	}
	return pubs, nil
}
