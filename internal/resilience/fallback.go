package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Chain] either failed or had
// an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// ChainConfig configures the per-entry circuit breaker created for each
// provider in a [Chain]. The breaker Name is overridden per entry.
type ChainConfig struct {
	Breaker BreakerConfig
}

// chainEntry pairs a provider with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Chain holds a primary and zero or more fallbacks of the same provider type,
// each behind its own circuit breaker. Entries are tried in registration
// order; open breakers are skipped.
//
// Entries must be registered before the chain is used. Once calls are in
// flight, Chain is safe for concurrent use.
type Chain[T any] struct {
	entries []chainEntry[T]
	cfg     ChainConfig
}

// NewChain creates a [Chain] with primary as its first entry.
func NewChain[T any](primary T, primaryName string, cfg ChainConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback provider, tried after all previously added entries.
func (c *Chain[T]) Add(name string, fallback T) {
	bc := c.cfg.Breaker
	bc.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(bc),
	})
}

// Len returns the number of registered entries.
func (c *Chain[T]) Len() int {
	return len(c.entries)
}

// Try runs fn against each entry in order until one succeeds. Returns
// [ErrAllFailed] wrapped around the last error when every entry fails.
func (c *Chain[T]) Try(fn func(T) error) error {
	_, err := TryResult(c, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// TryResult runs fn against each entry of the chain until one succeeds,
// returning its result. A package-level function because Go methods cannot
// introduce type parameters.
func TryResult[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.entries {
		entry := &c.entries[i]
		if !entry.breaker.Allow() {
			slog.Debug("skipping provider, circuit open", "provider", entry.name)
			lastErr = ErrCircuitOpen
			continue
		}
		result, err := fn(entry.value)
		entry.breaker.Record(err)
		if err == nil {
			return result, nil
		}
		lastErr = err
		slog.Warn("provider failed, trying next",
			"provider", entry.name, "error", err)
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
