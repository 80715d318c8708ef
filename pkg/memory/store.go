// Package memory defines the per-user conversation memory store.
//
// Each (tenant, user) pair owns one Profile: identity facts the assistant
// has learned plus the recent conversation history the response engine feeds
// back into the LLM prompt. Tenants are strictly isolated; a store must
// never return one tenant's profile for another tenant's key.
//
// Two implementations ship with the gateway: [Memstore], a process-local
// map, and the postgres subpackage for durable storage. [NewFallback]
// combines them so a database outage degrades to in-process memory instead
// of failing turns.
package memory

import (
	"context"
	"time"
)

// Roles recorded in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one recorded utterance in a conversation.
type Turn struct {
	// Role is RoleUser or RoleAssistant.
	Role string
	// Content is the utterance text.
	Content string
	// At is when the turn was recorded.
	At time.Time
}

// Profile is everything remembered about one user within one tenant.
type Profile struct {
	TenantID string
	UserID   string

	// FirstName is the user's preferred name, when known.
	FirstName string

	// LongTermMemory is free-form text of durable facts, injected into the
	// system prompt.
	LongTermMemory string

	// History is the recent conversation, oldest first.
	History []Turn

	// UpdatedAt is when the profile was last written.
	UpdatedAt time.Time
}

// Store is the abstraction over any conversation memory backend.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// GetProfile returns the profile for (tenantID, userID). A user never
	// seen before yields a zero-valued profile with the keys filled in, not
	// an error.
	GetProfile(ctx context.Context, tenantID, userID string) (Profile, error)

	// SaveProfile upserts the identity fields (FirstName, LongTermMemory)
	// of the profile. It does not touch recorded history.
	SaveProfile(ctx context.Context, p Profile) error

	// AppendTurns records conversation turns for (tenantID, userID) in
	// order.
	AppendTurns(ctx context.Context, tenantID, userID string, turns ...Turn) error

	// RecentTurns returns up to limit of the most recent turns, oldest
	// first. limit <= 0 means no cap.
	RecentTurns(ctx context.Context, tenantID, userID string, limit int) ([]Turn, error)

	// Close releases backend resources.
	Close() error
}
