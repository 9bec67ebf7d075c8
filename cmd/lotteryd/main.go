// Package main runs lotteryd, the HTTP front end for the lottery settlement
// engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/lottery_engine/internal/config"
	"github.com/R3E-Network/lottery_engine/internal/identity"
	"github.com/R3E-Network/lottery_engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file (ignored when missing)")
	issueToken := flag.String("issue-token", "", "print a JWT for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lotteryd: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		if cfg.Auth.JWTSecret == "" {
			fmt.Fprintln(os.Stderr, "lotteryd: auth.jwt_secret is required to issue tokens")
			os.Exit(1)
		}
		token, err := identity.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer).Issue(*issueToken, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lotteryd: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	log := logger.New(cfg.Log)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("lotteryd stopped")
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":            cfg.Server.Addr,
			"storage":         cfg.Storage.Driver,
			"oracle":          cfg.Oracle.Driver,
			"auth":            cfg.Auth.Mode,
			"boundary_policy": cfg.Engine.BoundaryPolicy,
		}).Info("lotteryd listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("lotteryd stopped cleanly")
	return nil
}
