package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/carepath-api/api/swagger"
	"github.com/noah-isme/carepath-api/internal/handler"
	internalmiddleware "github.com/noah-isme/carepath-api/internal/middleware"
	"github.com/noah-isme/carepath-api/pkg/config"
	"github.com/noah-isme/carepath-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/carepath-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/carepath-api/pkg/middleware/requestid"
	"github.com/noah-isme/carepath-api/pkg/tracing"
)

// @title CarePath API
// @version 1.0.0
// @description Patients, care programs, sessions, medications and reports.
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "carepath-api",
		Short:         "CarePath healthcare program API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config and the logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	return cfg, logr
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr := bootstrap()
			defer logr.Sync() //nolint:errcheck
			return runServer(cfg, logr)
		},
	}
}

func runServer(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		provider, err := tracing.Init(ctx, tracing.Config{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			Environment:    cfg.Env,
			OTLPEndpoint:   cfg.Tracing.Endpoint,
			SampleRate:     cfg.Tracing.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logr.Warn("tracing shutdown failed", zap.Error(err))
			}
		}()
	}

	a, err := newApp(cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	h := a.handlers()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.WithResponseMeta())
	r.Use(internalmiddleware.Metrics(a.metrics))
	if cfg.Tracing.Enabled {
		r.Use(tracing.Middleware())
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Register(r.Group(cfg.APIPrefix), h, internalmiddleware.JWT(a.auth))

	if cfg.Sweep.Enabled {
		a.sweeps.Start(ctx)
		defer a.sweeps.Stop()
		logr.Info("sweep scheduler started", zap.Duration("interval", cfg.Sweep.Interval))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logr.Info("server stopped")
	return nil
}
