package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"papertrade/internal/cache"
	"papertrade/internal/config"
	"papertrade/internal/db"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/notify"
	"papertrade/internal/oracle"
	"papertrade/internal/position"
	"papertrade/internal/repository"
	gormrepository "papertrade/internal/repository/gorm"
	"papertrade/internal/repository/memory"
	"papertrade/internal/risk"
	"papertrade/internal/settings"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	db     *db.DB
	repo   repository.Repository
	cache  cache.Store

	metrics  *metrics.Metrics
	settings *settings.Service
	ledger   *ledger.Ledger
	oracle   oracle.Oracle
	manager  *position.Manager
	monitor  *risk.Monitor
}

func loadApp(migrate bool) (*app, error) {
	cfg, err := config.Load(cfgFile, envOnly)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}

	a := &app{cfg: cfg, logger: log}
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "memory":
		log.Warn("using in-memory store; state is lost on exit")
		a.repo = memory.New()
	case "", "postgres":
		conn, err := db.Open(cfg.DB)
		if err != nil {
			return nil, errors.Wrap(err, "db open")
		}
		if err := db.SetTimezone(conn, cfg.DB.Timezone); err != nil {
			log.Warn("failed to set timezone", zap.Error(err))
		}
		if migrate {
			if err := db.AutoMigrate(conn); err != nil {
				_ = db.Close(conn)
				return nil, errors.Wrap(err, "auto-migrate")
			}
		}
		a.db = conn
		a.repo = gormrepository.New(conn.Gorm)
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	a.cache = cache.New(cfg.Cache)
	a.metrics = metrics.New(cfg.App.Name)
	a.settings = settings.New(a.repo)
	a.ledger = ledger.New(a.repo, ledger.ConfigFrom(cfg.Accounts), log, a.metrics)
	a.oracle = oracle.New(cfg.Oracle, a.cache, log)

	a.manager = position.NewManager(position.ParamsFrom(cfg.Risk), a.repo, a.ledger, a.oracle, log)
	a.manager.Features = a.settings
	a.manager.Metrics = a.metrics
	a.manager.SettleOnLiquidation = cfg.Risk.SettleOnLiquidation
	a.manager.Alerter = notify.NewWebhook(cfg.Notify, cfg.App.Name, log)

	a.monitor = risk.NewMonitor(cfg.Risk, a.manager, a.ledger, a.oracle, log)
	a.monitor.Flags = a.settings
	a.monitor.Metrics = a.metrics
	return a, nil
}

func (a *app) ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return db.Ping(ctx, a.db)
}

func (a *app) close() {
	if closer, ok := a.cache.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	_ = db.Close(a.db)
	_ = a.logger.Sync()
}
