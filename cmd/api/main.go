package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/SirClappington/guildq/internal/config"
	"github.com/SirClappington/guildq/internal/flow"
	"github.com/SirClappington/guildq/internal/httpapi"
	"github.com/SirClappington/guildq/internal/logging"
	"github.com/SirClappington/guildq/internal/queue"
	"github.com/SirClappington/guildq/internal/storage"
)

func main() {
	cfg := config.MustLoad()
	zl, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.FromZap(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("redis unavailable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	queues, err := queue.NewRegistry(store, cfg.QueuePriorities)
	if err != nil {
		logger.Error("queue registry", "error", err)
		os.Exit(1)
	}
	flows := flow.NewStore(store, cfg.FlowTTL)
	api := httpapi.New(flows, flow.NewService(flows, queues, logger), store, logger)

	srv := &http.Server{Addr: cfg.APIAddr, Handler: api.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api listening", "addr", cfg.APIAddr)
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err = multierr.Append(err, store.Close()); err != nil {
		logger.Error("shutdown", "error", err)
	}
	_ = zl.Sync()
}
