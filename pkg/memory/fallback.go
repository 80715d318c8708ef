package memory

import (
	"context"
	"log/slog"
)

// Fallback routes every call to a primary Store and degrades to an
// in-process [Memstore] when the primary fails. Writes always land in the
// shadow store as well, so a user keeps their conversation context across a
// database outage within the same process lifetime.
type Fallback struct {
	primary Store
	shadow  *Memstore
}

// NewFallback wraps primary with in-process degradation.
func NewFallback(primary Store) *Fallback {
	return &Fallback{primary: primary, shadow: NewMemstore()}
}

// GetProfile implements Store.
func (f *Fallback) GetProfile(ctx context.Context, tenantID, userID string) (Profile, error) {
	p, err := f.primary.GetProfile(ctx, tenantID, userID)
	if err != nil {
		slog.Warn("memory primary unavailable, serving in-process profile",
			"tenant_id", tenantID, "user_id", userID, "err", err)
		return f.shadow.GetProfile(ctx, tenantID, userID)
	}
	return p, nil
}

// SaveProfile implements Store.
func (f *Fallback) SaveProfile(ctx context.Context, p Profile) error {
	_ = f.shadow.SaveProfile(ctx, p)
	if err := f.primary.SaveProfile(ctx, p); err != nil {
		slog.Warn("memory primary rejected profile write",
			"tenant_id", p.TenantID, "user_id", p.UserID, "err", err)
	}
	return nil
}

// AppendTurns implements Store.
func (f *Fallback) AppendTurns(ctx context.Context, tenantID, userID string, turns ...Turn) error {
	_ = f.shadow.AppendTurns(ctx, tenantID, userID, turns...)
	if err := f.primary.AppendTurns(ctx, tenantID, userID, turns...); err != nil {
		slog.Warn("memory primary rejected history write",
			"tenant_id", tenantID, "user_id", userID, "err", err)
	}
	return nil
}

// RecentTurns implements Store.
func (f *Fallback) RecentTurns(ctx context.Context, tenantID, userID string, limit int) ([]Turn, error) {
	turns, err := f.primary.RecentTurns(ctx, tenantID, userID, limit)
	if err != nil {
		slog.Warn("memory primary unavailable, serving in-process history",
			"tenant_id", tenantID, "user_id", userID, "err", err)
		return f.shadow.RecentTurns(ctx, tenantID, userID, limit)
	}
	return turns, nil
}

// Close implements Store. It closes the primary; the shadow holds no
// resources.
func (f *Fallback) Close() error {
	return f.primary.Close()
}

var _ Store = (*Fallback)(nil)
