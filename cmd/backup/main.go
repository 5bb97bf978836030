package main

import (
	"context"
	"log"
	"time"

	"desci-meme/config"
	"desci-meme/market"
	"desci-meme/services"
	"desci-meme/storage"

	"go.uber.org/zap"
)

// Einmaliger Snapshot der Registry: Journal aus der DB lesen, in eine frische
// Factory einspielen, als gzip-JSON nach S3 laden und alte Snapshots rotieren.
func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()
	logging.Info("Starte Snapshot-Prozess...")

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Fehler beim Laden der Konfiguration", zap.Error(err))
	}
	owner, err := market.ParseAddress(cfg.FactoryOwner)
	if err != nil {
		logging.Fatal("Ungültiger FACTORY_OWNER", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// 1. Journal einlesen
	db, err := storage.OpenDB(cfg, logging)
	if err != nil {
		logging.Fatal("Fehler beim Öffnen der Datenbank", zap.Error(err))
	}
	events, err := storage.NewLedger(db).Events(ctx)
	if err != nil {
		logging.Fatal("Fehler beim Lesen des Journals", zap.Error(err))
	}

	// 2. Stand rekonstruieren
	factory := market.NewFactory(market.FactoryConfig{Owner: owner, Decimals: cfg.TokenDecimals})
	if err := factory.Replay(ctx, events); err != nil {
		logging.Fatal("Journal konnte nicht eingespielt werden", zap.Error(err))
	}
	logging.Info("Journal eingespielt", zap.Int("events", len(events)), zap.Int("tokens", factory.TokenCount()))

	// 3. Hochladen und rotieren
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("Fehler beim Erstellen des S3-Clients", zap.Error(err))
	}
	snapshots := services.NewSnapshotService(storage.NewBucket(s3Client, cfg.S3Bucket, cfg.S3URL), logging, nil, cfg.KeepSnapshots)
	key, err := snapshots.Run(ctx, factory)
	if err != nil {
		logging.Fatal("Snapshot fehlgeschlagen", zap.String("key", key), zap.Error(err))
	}

	logging.Info("Snapshot-Prozess erfolgreich abgeschlossen.", zap.String("key", key))
}
