// SPDX-License-Identifier: AGPL-3.0-or-later

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

	"github.com/spf13/cobra"

	"github.com/musergi/ospreid/internal/api"
	"github.com/musergi/ospreid/internal/cli"
	"github.com/musergi/ospreid/internal/config"
	"github.com/musergi/ospreid/internal/engine"
	"github.com/musergi/ospreid/internal/logging"
	"github.com/musergi/ospreid/internal/runtime"
	"github.com/musergi/ospreid/internal/scheduler"
	"github.com/musergi/ospreid/internal/store"
	"github.com/musergi/ospreid/internal/store/memstore"
	"github.com/musergi/ospreid/internal/store/sqlstore"
)

func main() {
	var rootCmd *cobra.Command
	rootCmd = cli.NewRootCommand(func(configPath string) error {
		verbose, err := rootCmd.PersistentFlags().GetBool("verbose")
		if err != nil {
			return err
		}
		return serve(configPath, verbose)
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(configPath string, verbose bool) error {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Default()
	}
	cfg.ApplyEnv(os.LookupEnv)

	log := logging.NewLogger(cfg.Verbose || verbose)

	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Error("closing store failed", logging.NewField("error", err))
		}
	}()

	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	if err := seedTemplates(ctx, s, cfg); err != nil {
		return fmt.Errorf("seeding templates: %w", err)
	}

	rt := &runtime.Docker{Bin: cfg.ContainerEngine}
	eng := engine.New(s, rt, log)

	sched := scheduler.New(s, eng, log)
	schedCtx, cancelSched := context.WithCancel(context.Background())
	go sched.Run(schedCtx)
	defer cancelSched()

	srv := api.New(s, eng, log)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logging.NewField("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		log.Info("shutting down", logging.NewField("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		return memstore.New(), nil
	}
	return sqlstore.Open(cfg.DatabaseURL)
}

func seedTemplates(ctx context.Context, s store.Store, cfg *config.Config) error {
	seeder, ok := s.(store.TemplateSeeder)
	if !ok {
		return nil
	}
	for _, tmpl := range cfg.Templates {
		if err := seeder.AddTemplate(ctx, tmpl.StoreTemplate()); err != nil {
			return err
		}
	}
	return nil
}
