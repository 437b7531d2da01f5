package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
)

type StorageConfig interface {
	GetDatabaseURL() string
	GetDatabaseMigrate() bool
	GetRedisURL() string
	GetLockPrefix() string
	GetEncryptionKey() ([]byte, error)
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetDatabaseURL returns the Postgres DSN. Empty means the in-memory stores are used.
func (Storage) GetDatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func (Storage) GetDatabaseMigrate() bool {
	return GetEnv("DB_MIGRATE", "true") == "true"
}

// GetRedisURL accepts either REDIS_URL (redis://...) or a bare REDIS_ADDR host:port.
func (Storage) GetRedisURL() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return "redis://" + addr
	}
	return ""
}

func (Storage) GetLockPrefix() string {
	return GetEnv("LOCK_PREFIX", "integrations:refresh:")
}

// GetEncryptionKey decodes CREDENTIALS_ENCRYPTION_KEY as hex or base64. The key
// must be 32 bytes.
func (Storage) GetEncryptionKey() ([]byte, error) {
	raw := os.Getenv("CREDENTIALS_ENCRYPTION_KEY")
	if raw == "" {
		return nil, fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY is not set")
	}
	if key, err := hex.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY must decode to 32 bytes")
}
