package airtable

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitState is a snapshot of the advisory request budget Airtable
// reports through the ratelimit-remaining and ratelimit-reset headers.
type RateLimitState struct {
	Remaining int
	Reset     time.Time
}

// state is the mutable per-credential state of a Client: the rate-limit
// budget and the table-metadata cache. It is owned by the Client instance,
// never global, and guarded for concurrent workers in the same process.
// The budget is advisory, not a hard gate; no cross-process coordination.
type state struct {
	mu sync.Mutex

	haveBudget bool
	limit      RateLimitState

	tables map[string]cachedTables
}

type cachedTables struct {
	tables    []Table
	fetchedAt time.Time
}

func newState() *state {
	return &state{tables: make(map[string]cachedTables)}
}

// waitForBudget blocks until the advisory budget allows another request, or
// the context is done.
func (s *state) waitForBudget(ctx context.Context) error {
	s.mu.Lock()
	wait := time.Duration(0)
	if s.haveBudget && s.limit.Remaining <= 0 {
		wait = time.Until(s.limit.Reset)
	}
	s.mu.Unlock()

	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// observeHeaders refreshes the budget from a response's rate-limit hints.
// Responses without the headers leave the budget untouched.
func (s *state) observeHeaders(h http.Header, now time.Time) {
	remainingRaw := h.Get("ratelimit-remaining")
	if remainingRaw == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return
	}

	resetAfter := 0
	if resetRaw := h.Get("ratelimit-reset"); resetRaw != "" {
		if parsed, err := strconv.Atoi(resetRaw); err == nil {
			resetAfter = parsed
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.haveBudget = true
	s.limit.Remaining = remaining
	s.limit.Reset = now.Add(time.Duration(resetAfter) * time.Second)
}

// RateLimit returns the last observed budget snapshot.
func (c *Client) RateLimit() (RateLimitState, bool) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	return c.st.limit, c.st.haveBudget
}

func (s *state) cachedTables(baseID string, now time.Time) ([]Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := s.tables[baseID]
	if !ok || now.Sub(cached.fetchedAt) > metadataCacheTTL {
		return nil, false
	}
	return cached.tables, true
}

func (s *state) storeTables(baseID string, tables []Table, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[baseID] = cachedTables{tables: tables, fetchedAt: now}
}
