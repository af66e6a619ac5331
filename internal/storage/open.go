package storage

import (
	"context"
	"errors"
	"strings"

	logx "wablast/pkg/logx"
)

// Store is the minimal persistence API used by core.
type Store interface {
	ListContacts(ctx context.Context) ([]ContactRecord, error)
	UpsertContacts(ctx context.Context, recs []ContactRecord) error
	AddSentCount(ctx context.Context, phone string, n int) error
	SentCount(ctx context.Context, phone string) (int64, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
