package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/app"
	"github.com/EcoWatch/EcoWatch-Backend/internal/config"
	"github.com/EcoWatch/EcoWatch-Backend/internal/geocoding"
	"github.com/EcoWatch/EcoWatch-Backend/internal/logging"
	"github.com/EcoWatch/EcoWatch-Backend/internal/media"
	"github.com/EcoWatch/EcoWatch-Backend/internal/seeds"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load(".env.local")
	cfg := config.LoadFromEnv()

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("[server] invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(cfg, log)
	if err != nil {
		log.Fatal("[server] failed to open store", zap.Error(err))
	}
	defer closeStore()

	if cfg.Seed {
		if _, err := seeds.SeedAll(ctx, store, log); err != nil {
			log.Fatal("[server] seeding failed", zap.Error(err))
		}
	}

	blobs, err := media.Open(ctx, cfg)
	if err != nil {
		log.Fatal("[server] failed to open media store", zap.Error(err))
	}

	deps := app.Deps{Config: cfg, Store: store, Media: blobs, Log: log}
	if cfg.GoogleMapsKey != "" {
		deps.Geocoder = geocoding.NewClient(cfg.GoogleMapsKey)
	}
	a := app.New(deps)
	defer a.Close()

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("[server] shutdown failed", zap.Error(err))
		}
	}()

	log.Info("[server] listening",
		zap.String("port", cfg.Port),
		zap.String("storage", string(cfg.Storage)),
		zap.String("media", string(cfg.Media)),
		zap.Bool("geocoding", deps.Geocoder != nil))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("[server] failed", zap.Error(err))
	}
}
