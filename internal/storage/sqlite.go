package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "wablast/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListContacts(ctx context.Context) ([]ContactRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, name, active FROM contacts ORDER BY name, phone`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContactRecord
	for rows.Next() {
		var (
			rec    ContactRecord
			active int
		)
		if err := rows.Scan(&rec.Phone, &rec.Name, &active); err != nil {
			return nil, err
		}
		rec.Active = active != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertContacts(ctx context.Context, recs []ContactRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().Format(time.RFC3339Nano)
	for _, rec := range recs {
		if strings.TrimSpace(rec.Phone) == "" {
			continue
		}
		active := 0
		if rec.Active {
			active = 1
		}
		// First writer of a phone keeps its name; later rows only refresh
		// the active flag, matching in-memory roster dedup.
		_, err := tx.ExecContext(ctx,
			`INSERT INTO contacts(phone, name, active, updated_at) VALUES(?,?,?,?)
			 ON CONFLICT(phone) DO UPDATE SET active=excluded.active, updated_at=excluded.updated_at`,
			rec.Phone, rec.Name, active, now,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AddSentCount(ctx context.Context, phone string, n int) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if phone == "" || n <= 0 {
		return nil
	}
	now := time.Now().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts(phone, name, active, sent_count, updated_at) VALUES(?,'',1,?,?)
		 ON CONFLICT(phone) DO UPDATE SET sent_count = sent_count + excluded.sent_count, updated_at=excluded.updated_at`,
		phone, n, now,
	)
	return err
}

func (s *sqliteStore) SentCount(ctx context.Context, phone string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT sent_count FROM contacts WHERE phone = ?`, phone).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
