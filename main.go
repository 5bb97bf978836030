package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"desci-meme/config"
	"desci-meme/market"
	"desci-meme/services"
	"desci-meme/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	owner, err := market.ParseAddress(cfg.FactoryOwner)
	if err != nil {
		logging.Fatal("Invalid FACTORY_OWNER", zap.Error(err))
	}

	db, err := storage.OpenDB(cfg, logging)
	if err != nil {
		logging.Fatal("Failed to open database", zap.Error(err))
	}

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)
	registry := services.NewRegistryService(owner, cfg.TokenDecimals, storage.NewLedger(db), logging, metrics)
	if err := registry.Restore(context.Background()); err != nil {
		logging.Fatal("Failed to restore registry from journal", zap.Error(err))
	}
	logging.Info("Factory ready",
		zap.Stringer("owner", registry.Factory.Owner()),
		zap.Stringer("factory", registry.Factory.Address()),
		zap.Int("tokens", registry.Factory.TokenCount()))

	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("Failed to create S3 client", zap.Error(err))
	}
	bucket := storage.NewBucket(s3Client, cfg.S3Bucket, cfg.S3URL)
	content := services.NewContentService(db, bucket, logging, cfg.MaxContentBytes)
	snapshots := services.NewSnapshotService(bucket, logging, metrics, cfg.KeepSnapshots)

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(routerDeps{
		APIKey:   cfg.APISecretKey,
		Registry: registry,
		Content:  content,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logging,
	})

	// Setup Cron
	cronScheduler := cron.New()
	_, err = cronScheduler.AddFunc(cfg.SnapshotSchedule, func() {
		logging.Info("Running scheduled snapshot job...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		key, err := snapshots.Run(ctx, registry.Factory)
		if err != nil {
			logging.Error("Snapshot job failed", zap.Error(err))
			return
		}
		logging.Info("Snapshot job completed", zap.String("key", key))
	})
	if err != nil {
		logging.Fatal("Invalid SNAPSHOT_SCHEDULE", zap.String("schedule", cfg.SnapshotSchedule), zap.Error(err))
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}
