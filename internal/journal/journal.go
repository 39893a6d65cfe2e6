// Package journal keeps a small sqlite record of live mounts so that mounts
// left behind by a crashed process can be found and removed on the next
// start.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	_ "modernc.org/sqlite"

	"cryptfolder/internal/errors"
	"cryptfolder/internal/log"
)

const schemaVersion = 1

// Entry is one recorded mount.
type Entry struct {
	ID        string
	Source    string
	MountPath string
	Driver    string
	PID       int
	StartedAt time.Time
}

// Journal is the mount journal database.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("journal: failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("journal: failed to open database: %w", err)
	}
	// One connection keeps sqlite locking simple for a single process.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := os.Chmod(path, 0600); err != nil {
		log.Warn("could not restrict journal permissions", log.String("path", path), log.Err(err))
	}
	return &Journal{db: db}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("journal: failed to read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS mounts (
			id TEXT NOT NULL,
			source TEXT NOT NULL,
			mount_path TEXT NOT NULL UNIQUE,
			driver TEXT NOT NULL,
			pid INTEGER NOT NULL,
			started_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("journal: failed to create tables: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("journal: failed to set schema version: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e, replacing any earlier entry for the same mount path.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO mounts (id, source, mount_path, driver, pid, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.Source, e.MountPath, e.Driver, e.PID, e.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("journal: failed to record mount: %w", err)
	}
	return nil
}

// Remove deletes the entry for mountPath. Removing a missing entry is fine.
func (j *Journal) Remove(ctx context.Context, mountPath string) error {
	if _, err := j.db.ExecContext(ctx, "DELETE FROM mounts WHERE mount_path = ?", mountPath); err != nil {
		return fmt.Errorf("journal: failed to remove mount: %w", err)
	}
	return nil
}

// List returns every entry, oldest first.
func (j *Journal) List(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, source, mount_path, driver, pid, started_at FROM mounts ORDER BY started_at, mount_path")
	if err != nil {
		return nil, fmt.Errorf("journal: failed to list mounts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started int64
		if err := rows.Scan(&e.ID, &e.Source, &e.MountPath, &e.Driver, &e.PID, &started); err != nil {
			return nil, fmt.Errorf("journal: failed to read mount: %w", err)
		}
		e.StartedAt = time.Unix(0, started)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Unmounter ends a mount by path.
type Unmounter interface {
	ForceUnmount(path string) error
}

// Planner checks and removes mount directories.
type Planner interface {
	Mounted(path string) (bool, error)
	Cleanup(path string) error
}

// Recover cleans up after processes that died with mounts still recorded.
// Entries owned by a process that is still alive are left alone. An entry
// is removed only once its mount is gone and its directory deleted; it
// returns the entries it cleared.
func (j *Journal) Recover(ctx context.Context, u Unmounter, p Planner) ([]Entry, error) {
	entries, err := j.List(ctx)
	if err != nil {
		return nil, err
	}

	var recovered []Entry
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		if ownerAlive(e.PID) {
			log.Debug("mount owner still running, skipping", log.String("path", e.MountPath), log.Int("pid", e.PID))
			continue
		}

		log.Info("recovering stale mount", log.String("path", e.MountPath), log.String("source", e.Source))
		if mounted, err := p.Mounted(e.MountPath); err == nil && mounted {
			if err := u.ForceUnmount(e.MountPath); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if err := p.Cleanup(e.MountPath); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := j.Remove(ctx, e.MountPath); err != nil {
			errs = append(errs, err)
			continue
		}
		recovered = append(recovered, e)
	}
	return recovered, errors.Join(errs...)
}

// ownerAlive is swapped in tests.
var ownerAlive = func(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	if pid <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}
