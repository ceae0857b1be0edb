// Package main starts the mock tea admin backend, setting up configuration,
// logging, the database, repositories, services, handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/teaadmin/internal/config"
	"github.com/atinyakov/teaadmin/internal/db"
	"github.com/atinyakov/teaadmin/internal/logger"
	"github.com/atinyakov/teaadmin/internal/repository"
	"github.com/atinyakov/teaadmin/internal/server/handler/http"
	"github.com/atinyakov/teaadmin/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options, err := config.Parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	if options.DevLoginEnabled() {
		if err := db.Seed(ctx, postgresDB, service.HashPassword); err != nil {
			zapLogger.Fatal("cannot seed demo accounts", zap.Error(err))
		}
	}

	// Purge expired captchas.
	db.StartCaptchaCleaner(ctx, postgresDB, time.Minute, zapLogger)

	// Initialize repositories.
	userRepo := repository.NewPostgresUserRepository(postgresDB)
	captchaRepo := repository.NewPostgresCaptchaRepository(postgresDB)
	permissionRepo := repository.NewPostgresPermissionRepository(postgresDB)

	// Initialize business-logic services.
	authService := service.NewAuthService(
		userRepo, captchaRepo, permissionRepo,
		service.NewTokenIssuer(options.JWTSecret, options.TokenTTL),
		service.Options{CaptchaTTL: options.CaptchaTTL, DevLogin: options.DevLoginEnabled()},
	)

	// Create HTTP handlers and the router.
	authHandler := &http.AuthHandler{AuthService: authService}
	rbacHandler := &http.RBACHandler{AuthService: authService}
	router := http.NewRouter(authHandler, rbacHandler, authService, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zapLogger.Info("starting server",
		zap.String("addr", options.Port),
		zap.String("env", options.Env),
		zap.Bool("tls", options.UseTLS()),
		zap.Bool("dev_login", options.DevLoginEnabled()),
	)

	if options.UseTLS() {
		// Load server TLS certificate and key.
		cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
		if err != nil {
			zapLogger.Fatal("failed to load server TLS cert/key", zap.Error(err))
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		err = server.ListenAndServeTLS("", "")
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			zapLogger.Fatal("failed to start HTTPS server", zap.Error(err))
		}
		return
	}

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
