package storage

import (
	"fmt"

	"desci-meme/config"
	"desci-meme/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB öffnet die Datenbank gemäß DB_DRIVER und führt die Auto-Migration aus.
func OpenDB(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.DBPath))
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	log.Info("Successfully connected to database.", zap.String("driver", cfg.DBDriver))

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite öffnet eine SQLite-Datenbank. Ein leerer Pfad ergibt eine In-Memory-Datenbank
// unter dem gegebenen Namen, die zwischen Verbindungen geteilt wird.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenMemory öffnet eine leere, benannte In-Memory-Datenbank.
func OpenMemory(name string) (*gorm.DB, error) {
	return OpenSQLite("file:" + name + "?mode=memory&cache=shared")
}

// Migrate legt die Tabellen für Journal, Konten und Inhalte an.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.LedgerEvent{}, &models.Account{}, &models.ContentObject{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func sqliteDSN(path string) string {
	if path == "" {
		return "file::memory:?cache=shared"
	}
	return path
}
