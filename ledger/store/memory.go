// Package store provides in-memory ledger.Persister and
// ledger.SettlementRecorder implementations.
package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/warp/canteen-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	snapshot    []byte // JSON, so callers can never alias stored state
	settlements []ledger.SettlementRecord
	saves       int

	// SaveErr, when set, is returned by every Save and SaveSettlement.
	SaveErr error
}

func NewMemory() *Memory {
	return &Memory{}
}

// Load returns the last saved snapshot, or an empty one.
func (m *Memory) Load(_ context.Context) (ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return ledger.Snapshot{
			People:   []ledger.Person{},
			Products: []ledger.Product{},
			Branding: ledger.DefaultBranding(),
		}, nil
	}
	var s ledger.Snapshot
	if err := json.Unmarshal(m.snapshot, &s); err != nil {
		return ledger.Snapshot{}, err
	}
	return s, nil
}

// Save replaces the stored snapshot.
func (m *Memory) Save(_ context.Context, s ledger.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.snapshot = data
	m.saves++
	return nil
}

// Saves returns how many snapshots have been written.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// SaveSettlement appends a settlement record. Append-only.
func (m *Memory) SaveSettlement(_ context.Context, r ledger.SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.settlements = append(m.settlements, r)
	return nil
}

// ListSettlements returns settlement records, newest first.
func (m *Memory) ListSettlements(_ context.Context) ([]ledger.SettlementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.SettlementRecord, 0, len(m.settlements))
	for i := len(m.settlements) - 1; i >= 0; i-- {
		result = append(result, m.settlements[i])
	}
	return result, nil
}
