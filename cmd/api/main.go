package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/app"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/auth"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/config"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/events"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/websocket"
)

func main() {
	flags := pflag.NewFlagSet("api", pflag.ExitOnError)
	cfgFile := flags.String("config", "", "config file path")
	flags.String("port", "8080", "HTTP listen port")
	flags.String("db-driver", "postgres", "database driver (postgres, sqlite)")
	flags.String("dsn", "", "database DSN")
	flags.Bool("auto-migrate", true, "migrate the schema on startup")
	flags.String("redis-addr", "", "redis address, empty disables caching and event fan-out")
	flags.String("program-id", "", "program id used to derive pool and escrow addresses")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*cfgFile, flags)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	config.SetupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub()
	local := events.Multi{hub, events.Log{}}

	exchange, err := app.New(ctx, cfg, local)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize exchange")
	}
	defer exchange.Close()

	ws := websocket.NewServer(hub, cfg.Server.AllowedOrigins)
	ws.Start()
	defer ws.Stop()

	if exchange.Redis != nil {
		go func() {
			if err := exchange.Relay(ctx, local); err != nil {
				logrus.WithError(err).Error("Event relay stopped")
			}
		}()
	}

	authMiddleware := auth.NewAuthMiddleware(cfg.Auth.NonceWindow)
	router := newRouter(exchange, ws, authMiddleware)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Starting NFT AMM API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	logrus.Info("Server exited")
}
