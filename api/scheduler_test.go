package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/canteen-ledger/ledger"
)

func TestBackupScheduler_WritesOnlyWhenChanged(t *testing.T) {
	// GIVEN: A ledger with one person and a scheduler on a temp dir
	l := ledger.New()
	_, err := l.AddPerson(ledger.NewPerson{Name: "Ana", InitialDeposit: decimal.RequireFromString("10")})
	require.NoError(t, err)

	dir := t.TempDir()
	now := testNow
	bs := NewBackupScheduler(l, dir)
	bs.now = func() time.Time { return now }

	// WHEN: The first run happens
	path, err := bs.RunNow()
	require.NoError(t, err)

	// THEN: A bundle is written and can be decoded
	assert.Equal(t, filepath.Join(dir, "cantina-backup-20250712-150000.json"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	snap, err := ledger.DecodeBundle(data)
	require.NoError(t, err)
	assert.Len(t, snap.People, 1)

	// WHEN: Nothing changed
	path, err = bs.RunNow()
	require.NoError(t, err)
	assert.Empty(t, path)

	// WHEN: The ledger changes
	now = now.Add(time.Minute)
	_, err = l.AddPerson(ledger.NewPerson{Name: "Bruno"})
	require.NoError(t, err)
	path, err = bs.RunNow()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cantina-backup-20250712-150100.json"), path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBackupScheduler_StartStop(t *testing.T) {
	bs := NewBackupScheduler(ledger.New(), t.TempDir())
	bs.Interval = time.Hour

	bs.Start()
	bs.Start()
	bs.Stop()
	bs.Stop()
}

func TestBackupScheduler_Disabled(t *testing.T) {
	bs := NewBackupScheduler(ledger.New(), t.TempDir())
	bs.Enabled = false

	bs.Start()
	assert.Nil(t, bs.ticker)
	bs.Stop()
}

func TestBackupScheduler_UnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	bs := NewBackupScheduler(ledger.New(), filepath.Join(file, "backups"))
	_, err := bs.RunNow()

	assert.Error(t, err)
}
