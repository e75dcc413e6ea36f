// ffsqueeze/main.go
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

	"ffsqueeze/api"
	"ffsqueeze/config"
	"ffsqueeze/ffmpeg"
	"ffsqueeze/logging"
	"ffsqueeze/task"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	// 1. Parse flags and load configuration
	fs := config.Flags()
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ffsqueeze [flags] [FILE...]\n\nWith files, encodes them and exits. Without, serves the HTTP API.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	// 2. Initialize the encoder pipeline
	driver, err := ffmpeg.NewDriver(cfg, logging.Component(logger, "ffmpeg"))
	if err != nil {
		logger.Fatalf("Failed to initialize ffmpeg driver: %v", err)
	}
	prober := ffmpeg.NewProber(cfg, logging.Component(logger, "probe"))

	// 3. Initialize the task manager with the prober and driver
	taskManager, err := task.NewManager(cfg, logging.Component(logger, "task"), prober, driver)
	if err != nil {
		logger.Fatalf("Failed to initialize task manager: %v", err)
	}

	if files := fs.Args(); len(files) > 0 {
		os.Exit(runBatch(logging.Component(logger, "cli"), taskManager, files))
	}
	serve(cfg, logger, taskManager)
}

func serve(cfg *config.Config, logger *logrus.Logger, taskManager *task.Manager) {
	router := api.SetupRouter(taskManager, cfg, logging.Component(logger, "api"))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskManager.Start(ctx)

	if !cfg.AuthEnable {
		logger.Warn("API authentication is disabled; any client that reaches the port can submit batches for any readable file")
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %s", err)
		}
	}()

	<-ctx.Done()

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	logger.Info("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}
