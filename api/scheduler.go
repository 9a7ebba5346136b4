/*
scheduler.go - Periodic backup scheduler

PURPOSE:
  Periodically writes a full-state bundle to the backup directory so a
  corrupted database can be recovered with POST /api/restore.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Skips the write when the ledger version has not moved since the last
    backup
  - Writes to a temporary file and renames, so a crash never leaves a
    truncated bundle behind

CONFIGURATION:
  - Interval: How often to check (default: 10 minutes)
  - Enabled:  Whether scheduler is active (default: true)

USAGE:
  scheduler := NewBackupScheduler(ledger, "backups")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Backup and Restore endpoints
  - ledger/bundle.go: Bundle format
*/
package api

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warp/canteen-ledger/ledger"
)

// BackupScheduler handles automated backups.
type BackupScheduler struct {
	Ledger   *ledger.Ledger
	Dir      string
	Interval time.Duration
	Enabled  bool

	now         func() time.Time
	ticker      *time.Ticker
	stop        chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	runMu       sync.Mutex
	lastVersion uint64
	written     bool
}

// NewBackupScheduler creates a new scheduler.
func NewBackupScheduler(l *ledger.Ledger, dir string) *BackupScheduler {
	return &BackupScheduler{
		Ledger:   l,
		Dir:      dir,
		Interval: 10 * time.Minute,
		Enabled:  true,
		now:      time.Now,
	}
}

// Start begins the scheduler.
func (bs *BackupScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		log.Println("[Backup] Disabled, not starting")
		return
	}
	if bs.ticker != nil {
		return
	}

	bs.ticker = time.NewTicker(bs.Interval)
	bs.stop = make(chan struct{})
	bs.wg.Add(1)

	go bs.run(bs.ticker, bs.stop)

	log.Printf("[Backup] Started with interval: %v, dir: %s", bs.Interval, bs.Dir)
}

// Stop stops the scheduler and waits for a backup in progress.
func (bs *BackupScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker != nil {
		bs.ticker.Stop()
		close(bs.stop)
		bs.wg.Wait()
		bs.ticker = nil
		log.Println("[Backup] Stopped")
	}
}

func (bs *BackupScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer bs.wg.Done()

	for {
		select {
		case <-ticker.C:
			bs.checkAndWrite()
		case <-stop:
			return
		}
	}
}

func (bs *BackupScheduler) checkAndWrite() {
	path, err := bs.RunNow()
	if err != nil {
		log.Printf("[Backup] Error writing backup: %v", err)
		return
	}
	if path != "" {
		log.Printf("[Backup] Wrote %s", path)
	}
}

// RunNow writes a backup if the ledger changed since the last one. It
// returns the written path, or "" when nothing changed.
func (bs *BackupScheduler) RunNow() (string, error) {
	bs.runMu.Lock()
	defer bs.runMu.Unlock()

	snap := bs.Ledger.Snapshot()
	if bs.written && snap.Version == bs.lastVersion {
		return "", nil
	}

	now := bs.now()
	data, err := ledger.EncodeBundle(snap, now)
	if err != nil {
		return "", fmt.Errorf("encode bundle: %w", err)
	}

	if err := os.MkdirAll(bs.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(bs.Dir, backupFileName(now))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename backup: %w", err)
	}

	bs.lastVersion = snap.Version
	bs.written = true
	return path, nil
}

func backupFileName(at time.Time) string {
	return fmt.Sprintf("cantina-backup-%s.json", at.Format("20060102-150405"))
}
