package memory

import (
	"context"
	"sync"
	"time"
)

// maxStoredTurns caps the per-user history held in process memory. The
// response engine only prompts with the last few turns; anything beyond the
// cap would never be read.
const maxStoredTurns = 50

// Memstore is a process-local Store backed by a map. State is lost on
// restart; it serves tests, single-node deployments and the degraded mode
// behind [NewFallback].
type Memstore struct {
	mu       sync.RWMutex
	profiles map[profileKey]*Profile
}

type profileKey struct {
	tenantID string
	userID   string
}

// NewMemstore creates an empty Memstore.
func NewMemstore() *Memstore {
	return &Memstore{profiles: make(map[profileKey]*Profile)}
}

// GetProfile implements Store.
func (m *Memstore) GetProfile(ctx context.Context, tenantID, userID string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[profileKey{tenantID, userID}]
	if !ok {
		return Profile{TenantID: tenantID, UserID: userID}, nil
	}
	out := *p
	out.History = make([]Turn, len(p.History))
	copy(out.History, p.History)
	return out, nil
}

// SaveProfile implements Store.
func (m *Memstore) SaveProfile(ctx context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.ensureLocked(p.TenantID, p.UserID)
	cur.FirstName = p.FirstName
	cur.LongTermMemory = p.LongTermMemory
	cur.UpdatedAt = time.Now()
	return nil
}

// AppendTurns implements Store.
func (m *Memstore) AppendTurns(ctx context.Context, tenantID, userID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.ensureLocked(tenantID, userID)
	cur.History = append(cur.History, turns...)
	if n := len(cur.History); n > maxStoredTurns {
		cur.History = append(cur.History[:0:0], cur.History[n-maxStoredTurns:]...)
	}
	cur.UpdatedAt = time.Now()
	return nil
}

// RecentTurns implements Store.
func (m *Memstore) RecentTurns(ctx context.Context, tenantID, userID string, limit int) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[profileKey{tenantID, userID}]
	if !ok {
		return []Turn{}, nil
	}
	history := p.History
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Turn, len(history))
	copy(out, history)
	return out, nil
}

// Close implements Store.
func (m *Memstore) Close() error { return nil }

func (m *Memstore) ensureLocked(tenantID, userID string) *Profile {
	key := profileKey{tenantID, userID}
	p, ok := m.profiles[key]
	if !ok {
		p = &Profile{TenantID: tenantID, UserID: userID}
		m.profiles[key] = p
	}
	return p
}

var _ Store = (*Memstore)(nil)
