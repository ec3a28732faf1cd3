package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const snapshotSuffix = ".db.enc"

// Config holds snapshot configuration.
type Config struct {
	// Dir is the directory snapshots are written to. Empty disables snapshots.
	Dir string
	// DBPath is the path of the live database file.
	DBPath string
	// Passphrase encrypts snapshots at rest. Required when Dir is set.
	Passphrase string
	// Keep is the number of snapshots retained after each run.
	Keep int
}

// Enabled reports whether the configuration is complete enough to take snapshots.
func (c Config) Enabled() bool {
	return c.Dir != "" && c.Passphrase != ""
}

// Snapshot describes one encrypted snapshot on disk.
type Snapshot struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager takes encrypted snapshots of the database file and prunes old ones.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	db     *sql.DB
	logger *slog.Logger

	lastRun time.Time
	lastErr error
}

// NewManager creates a snapshot manager. The database handle is used to
// checkpoint the WAL before copying the file.
func NewManager(cfg Config, db *sql.DB, logger *slog.Logger) *Manager {
	if cfg.Keep <= 0 {
		cfg.Keep = 14
	}
	return &Manager{cfg: cfg, db: db, logger: logger}
}

// Run takes one snapshot and prunes beyond the retention count. Concurrent
// calls serialize.
func (m *Manager) Run(ctx context.Context) error {
	if !m.cfg.Enabled() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.snapshot(ctx)
	m.lastRun = time.Now().UTC()
	m.lastErr = err
	if err != nil {
		m.logger.Error("snapshot failed", "error", err)
		return err
	}

	if err := m.prune(); err != nil {
		m.logger.Warn("snapshot prune failed", "error", err)
	}
	return nil
}

// LastRun returns the time and outcome of the most recent run.
func (m *Manager) LastRun() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun, m.lastErr
}

func (m *Manager) snapshot(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.Dir, 0700); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	// Checkpoint WAL so the main file contains all committed data.
	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	dbCopy := filepath.Join(os.TempDir(), fmt.Sprintf("burrow-snapshot-%s.db", timestamp))
	defer os.Remove(dbCopy)

	if err := copyFile(m.cfg.DBPath, dbCopy); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return err
	}

	dst := filepath.Join(m.cfg.Dir, "burrow-"+timestamp+snapshotSuffix)
	if err := EncryptFile(dbCopy, dst, m.cfg.Passphrase, salt); err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}

	m.logger.Info("snapshot written", "path", dst)
	return nil
}

// List returns snapshots in the configured directory, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Path:      filepath.Join(m.cfg.Dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

func (m *Manager) prune() error {
	snapshots, err := m.List()
	if err != nil {
		return err
	}
	for _, old := range snapshots[min(m.cfg.Keep, len(snapshots)):] {
		if err := os.Remove(old.Path); err != nil {
			return fmt.Errorf("remove old snapshot: %w", err)
		}
		m.logger.Debug("pruned snapshot", "path", old.Path)
	}
	return nil
}

// Restore decrypts the snapshot at srcPath into dstPath and verifies the
// result is a consistent database. The live database is never touched; the
// operator swaps files while the server is stopped.
func (m *Manager) Restore(srcPath, dstPath string) error {
	if err := DecryptFile(srcPath, dstPath, m.cfg.Passphrase); err != nil {
		return fmt.Errorf("decrypt snapshot: %w", err)
	}

	restored, err := sql.Open("sqlite", dstPath)
	if err != nil {
		return fmt.Errorf("open restored database: %w", err)
	}
	defer restored.Close()

	var integrity string
	if err := restored.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("restored database failed integrity check: %s", integrity)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
