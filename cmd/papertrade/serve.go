package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "papertrade/docs"
	cronrunner "papertrade/internal/cron"
	"papertrade/internal/handler"
	"papertrade/internal/settings"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled risk jobs",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	if err := a.settings.EnsureDefaults(cmd.Context()); err != nil {
		logger.Warn("init default feature switches failed", zap.Error(err))
	}

	if strings.EqualFold(a.cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.CORS())
	engine.Use(handler.WriteAudit(logger))

	(&handler.HealthHandler{Ping: a.ping}).Register(engine)
	(&handler.AccountHandler{Ledger: a.ledger}).Register(engine)
	(&handler.PositionHandler{Manager: a.manager, Orders: a.repo}).Register(engine)
	(&handler.RiskHandler{Monitor: a.monitor}).Register(engine)
	(&handler.SettingsHandler{Settings: a.settings}).Register(engine)
	engine.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    a.cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Cron.Enabled {
		runner := cronrunner.New(logger, ctx)
		if _, err := runner.Add("risk_sweep", a.cfg.Cron.RiskSweep, func(ctx context.Context) error {
			_, err := a.monitor.RunOnce(ctx)
			return err
		}); err != nil {
			logger.Warn("cron register risk sweep failed", zap.Error(err))
		}
		if _, err := runner.Add("interest_accrual", a.cfg.Cron.InterestAccrual, func(ctx context.Context) error {
			if !a.settings.IsEnabled(ctx, settings.FeatureInterestAccrual, true) {
				return nil
			}
			n, err := a.manager.AccrueAllInterest(ctx, time.Now().UTC())
			if n > 0 {
				logger.Info("margin interest accrued", zap.Int("positions", n))
			}
			return err
		}); err != nil {
			logger.Warn("cron register interest accrual failed", zap.Error(err))
		}
		runner.Start()
		defer runner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", a.cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err = <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return err
}
