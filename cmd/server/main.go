package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"

	"newsletter-go/internal/app"
	"newsletter-go/internal/config"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/telemetry"
)

func main() {
	cliApp := &cli.App{
		Name:  "newsletter",
		Usage: "newsletter subscriptions and content notification dispatch",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "optional .env file loaded before the environment",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "port", Usage: "listen port, overrides PORT"},
				},
				Action: serve,
			},
			{
				Name:   "dispatch",
				Usage:  "send all pending notifications once and print the report",
				Action: dispatch,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(c *cli.Context) (*config.Config, *logging.ContextLogger, func(), error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, nil, nil, err
	}
	if port := c.String("port"); port != "" {
		cfg.Port = port
	}

	logger := logging.NewLogger(cfg.LogLevel).WithService(cfg.ServiceName, cfg.ServiceVersion)

	tp, err := telemetry.InitTracing(cfg.ServiceName, cfg.ServiceVersion, cfg.TracingStdout)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	shutdown := func() {
		if err := telemetry.ShutdownTracing(context.Background(), tp); err != nil {
			logger.WithError(err).Error("Error shutting down tracer provider")
		}
	}
	return cfg, logger, shutdown, nil
}

func build(cfg *config.Config, logger *logging.ContextLogger) (*app.Application, error) {
	return app.Build(&app.Config{
		Settings:       cfg,
		Logger:         logger,
		TracerProvider: otel.GetTracerProvider(),
	})
}

func serve(c *cli.Context) error {
	cfg, logger, shutdownTracing, err := setup(c)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	application, err := build(cfg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		_ = application.Close()
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

func dispatch(c *cli.Context) error {
	cfg, logger, shutdownTracing, err := setup(c)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	application, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	results, err := application.GetDispatcher().DispatchPending(c.Context)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if len(results) == 0 {
		return enc.Encode(map[string]string{"message": "No pending notifications"})
	}
	return enc.Encode(map[string]interface{}{
		"success":   true,
		"processed": len(results),
		"results":   results,
	})
}

func migrate(c *cli.Context) error {
	cfg, logger, shutdownTracing, err := setup(c)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	if cfg.StoreBackend != config.StoreMySQL {
		return errors.New("migrate requires STORE_BACKEND=mysql")
	}
	if err := repository.MigrateUp(cfg.MySQLDSN); err != nil {
		return err
	}
	logger.Info("Database migrations applied")
	return nil
}
