package history

import (
	"sync"

	"github.com/aonescu/remedy/internal/types"
)

// Store records what the agent did and what the RCA collaborator concluded.
// Reads come from the HTTP surface; writes come from the leading control
// loop.
type Store interface {
	RecordAction(record types.ActionRecord) error
	RecentActions(limit int) ([]types.ActionRecord, error)
	SetRCA(report types.RCAReport) error
	LastRCA() (types.RCAReport, bool)
	Ping() error
	Close() error
}

const memoryStoreCap = 1000

// MemoryStore is the in-memory fallback used when no database is
// configured. It keeps the most recent actions and the last RCA report.
type MemoryStore struct {
	mu      sync.RWMutex
	actions []types.ActionRecord
	rca     types.RCAReport
	hasRCA  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) RecordAction(record types.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions = append(s.actions, record)
	if len(s.actions) > memoryStoreCap {
		s.actions = s.actions[len(s.actions)-memoryStoreCap:]
	}
	return nil
}

// RecentActions returns up to limit records, most recent first.
func (s *MemoryStore) RecentActions(limit int) ([]types.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.actions)
	if limit > 0 && limit < n {
		n = limit
	}
	results := make([]types.ActionRecord, 0, n)
	for i := len(s.actions) - 1; i >= 0 && len(results) < n; i-- {
		results = append(results, s.actions[i])
	}
	return results, nil
}

func (s *MemoryStore) SetRCA(report types.RCAReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rca = report
	s.hasRCA = true
	return nil
}

func (s *MemoryStore) LastRCA() (types.RCAReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rca, s.hasRCA
}

func (s *MemoryStore) Ping() error { return nil }

func (s *MemoryStore) Close() error { return nil }
