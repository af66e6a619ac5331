package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"wablast/internal/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppSentCountRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := writeConfig(t, fmt.Sprintf(`
whatsapp:
  session_db: %s
contacts:
  driver: sqlite
  path: %s
`, filepath.Join(dir, "wa.db"), filepath.Join(dir, "contacts.db")))

	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer func() { _ = a.Stop(context.Background()) }()

	ctx := context.Background()
	if n, err := a.SentCount(ctx, "0812-3456-7890"); err != nil || n != 0 {
		t.Fatalf("SentCount before any sends = (%d, %v), want (0, nil)", n, err)
	}

	if err := a.store.AddSentCount(ctx, "6281234567890", 2); err != nil {
		t.Fatalf("AddSentCount: %v", err)
	}

	// The raw spelling is normalized before the lookup, so both forms read
	// the same counter.
	if n, err := a.SentCount(ctx, "0812-3456-7890"); err != nil || n != 2 {
		t.Fatalf("SentCount(raw) = (%d, %v), want (2, nil)", n, err)
	}
	if n, err := a.SentCount(ctx, "6281234567890"); err != nil || n != 2 {
		t.Fatalf("SentCount(canonical) = (%d, %v), want (2, nil)", n, err)
	}

	if _, err := a.SentCount(ctx, "not-a-phone"); err == nil {
		t.Fatal("SentCount accepted an invalid phone")
	}
}

func TestAppSentCountWithoutStorage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := writeConfig(t, fmt.Sprintf(`
whatsapp:
  session_db: %s
`, filepath.Join(dir, "wa.db")))

	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer func() { _ = a.Stop(context.Background()) }()

	if _, err := a.SentCount(context.Background(), "6281234567890"); !errors.Is(err, storage.ErrDisabled) {
		t.Fatalf("got %v, want storage.ErrDisabled", err)
	}
}
