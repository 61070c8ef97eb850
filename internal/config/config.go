package config

import (
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config carries the process configuration, loaded from the environment
// (a .env file is picked up automatically when present).
type Config struct {
	HTTPPort string

	DBType string
	DBPath string
	DBUrl  string

	RedisAddr    string
	KafkaBrokers string
	Compression  string
	SyncToken    string
}

func LoadConfig() *Config {
	return &Config{
		HTTPPort:     getEnv("MANUSCRIPT_HTTP_PORT", "4100"),
		DBType:       getEnv("MANUSCRIPT_DB_TYPE", "sqlite"),
		DBPath:       getEnv("MANUSCRIPT_DB_PATH", "manuscript.db"),
		DBUrl:        os.Getenv("MANUSCRIPT_DB_URL"),
		RedisAddr:    os.Getenv("MANUSCRIPT_REDIS_ADDR"),
		KafkaBrokers: os.Getenv("MANUSCRIPT_KAFKA_BROKERS"),
		Compression:  getEnv("MANUSCRIPT_COMPRESSION", "gzip"),
		SyncToken:    os.Getenv("MANUSCRIPT_SYNC_TOKEN"),
	}
}

// GetDb opens the configured database.
func GetDb(cnf *Config) *gorm.DB {
	var db *gorm.DB
	var err error

	switch cnf.DBType {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cnf.DBUrl), &gorm.Config{})
	default:
		db, err = gorm.Open(sqlite.Open(cnf.DBPath), &gorm.Config{})
	}
	if err != nil {
		logrus.Fatalf("error connecting to database: %v", err)
	}

	return db
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
