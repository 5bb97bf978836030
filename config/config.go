package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	// postgres oder sqlite (lokaler Betrieb, DB_PATH; leer = In-Memory)
	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"`
	DBPath     string `envconfig:"DB_PATH"`
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Owner der Factory; nur er darf Konten aufladen
	FactoryOwner  string `envconfig:"FACTORY_OWNER" required:"true"`
	TokenDecimals uint8  `envconfig:"TOKEN_DECIMALS" default:"18"`

	S3Key    string `envconfig:"S3_KEY" required:"true"`
	S3Secret string `envconfig:"S3_SECRET" required:"true"`
	S3URL    string `envconfig:"S3_URL" required:"true"`
	S3Region string `envconfig:"S3_REGION" required:"true"`
	S3Bucket string `envconfig:"S3_BUCKET" required:"true"`

	// Snapshots der Registry nach S3
	SnapshotSchedule string `envconfig:"SNAPSHOT_SCHEDULE" default:"0 * * * *"`
	KeepSnapshots    int    `envconfig:"KEEP_SNAPSHOTS" default:"24"`

	MaxContentBytes int64 `envconfig:"MAX_CONTENT_BYTES" default:"26214400"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	switch c.DBDriver {
	case "postgres":
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return nil, fmt.Errorf("DB_HOST, DB_USER and DB_NAME are required for the postgres driver")
		}
	case "sqlite":
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.TokenDecimals == 0 || c.TokenDecimals > 36 {
		return nil, fmt.Errorf("TOKEN_DECIMALS must be between 1 and 36, got %d", c.TokenDecimals)
	}
	if c.KeepSnapshots < 1 {
		return nil, fmt.Errorf("KEEP_SNAPSHOTS must be at least 1, got %d", c.KeepSnapshots)
	}
	return &c, nil
}
