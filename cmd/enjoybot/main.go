package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/jituformyself-glitch/enjoy-bot/bot/handlers"
	"github.com/jituformyself-glitch/enjoy-bot/bot/registration"
	"github.com/jituformyself-glitch/enjoy-bot/bot/retention"
	"github.com/jituformyself-glitch/enjoy-bot/bot/storage"
	"github.com/jituformyself-glitch/enjoy-bot/core/config"
	"github.com/jituformyself-glitch/enjoy-bot/core/database"
	"github.com/jituformyself-glitch/enjoy-bot/core/logger"
	"github.com/jituformyself-glitch/enjoy-bot/core/telegram"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("enjoybot: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	window := time.Duration(cfg.Registration.RetentionDays) * 24 * time.Hour
	engine := registration.New(store, registration.Options{
		GroupLink:        cfg.Registration.GroupLink,
		AdminID:          cfg.Telegram.AdminID,
		Retention:        window,
		AcceptTypedPhone: cfg.Registration.AcceptTypedPhone,
	})
	sweeper := retention.NewSweeper(store, window, cfg.Registration.SweepSchedule)

	h := handlers.New(engine)
	reg := telegram.NewRegistry()
	h.RegisterCommands(reg)

	runOpts := telegram.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Middlewares: telegram.DefaultMiddlewares(cfg, h.OnRateLimited),
		Routes:      h.Routes(reg, cfg.Telegram.AdminID),
		OnStart: func(ctx context.Context, rt telegram.Runtime) error {
			if err := sweeper.Start(); err != nil {
				return err
			}
			logger.L.With("component", "app").Info("app ready",
				slog.String("event", "ready"),
				slog.String("storage", cfg.Storage.Backend),
			)
			return nil
		},
		OnStop: func(ctx context.Context, rt telegram.Runtime) error {
			logger.L.With("component", "app").Info("shutting down...",
				slog.String("event", "shutdown"),
			)
			sweeper.Stop()
			return nil
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return telegram.RunTelegram(ctx, runOpts)
}

func buildStore(cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		dbCfg := database.Config{
			Host:           cfg.Storage.Database.Host,
			Port:           cfg.Storage.Database.Port,
			User:           cfg.Storage.Database.User,
			Password:       cfg.Storage.Database.Password,
			Name:           cfg.Storage.Database.Name,
			SSLMode:        cfg.Storage.Database.SSLMode,
			MaxConnections: cfg.Storage.Database.MaxConnections,
		}
		if err := database.RunMigrations(dbCfg); err != nil {
			return nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		db, err := database.Connect(dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("database initialization failed: %w", err)
		}
		return storage.NewPostgresStore(db), func() { _ = db.Close() }, nil
	default:
		return storage.NewFileStore(cfg.Storage.FilePath), func() {}, nil
	}
}
