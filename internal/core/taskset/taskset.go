// Package taskset tracks which games have a lifecycle task in flight.
//
// Membership is the only guard against resolving a game twice, so Claim must
// be a single atomic test-and-set. Nothing here is persisted across restarts;
// recovery re-derives in-flight work from ledger state.
package taskset

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/governor/internal/core/domain"
)

// TaskSet is a concurrent set of game ids with an active task.
type TaskSet interface {
	// Claim inserts id if absent and reports whether it did.
	Claim(ctx context.Context, id domain.GameID) (bool, error)

	// Release removes id. Releasing an absent id is a no-op.
	Release(ctx context.Context, id domain.GameID) error
}

// Extender is implemented by task sets whose claims expire. Holders must call
// Extend well within TTL for as long as the task runs.
type Extender interface {
	// Extend pushes the claim's expiry out by TTL. It reports false when the
	// claim is no longer held by this process.
	Extend(ctx context.Context, id domain.GameID) (bool, error)

	TTL() time.Duration
}

// Memory is the in-process TaskSet.
type Memory struct {
	mu  sync.Mutex
	ids map[domain.GameID]struct{}
}

// NewMemory creates an empty in-memory task set.
func NewMemory() *Memory {
	return &Memory{ids: make(map[domain.GameID]struct{})}
}

func (m *Memory) Claim(_ context.Context, id domain.GameID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[id]; ok {
		return false, nil
	}
	m.ids[id] = struct{}{}
	return true, nil
}

func (m *Memory) Release(_ context.Context, id domain.GameID) error {
	m.mu.Lock()
	delete(m.ids, id)
	m.mu.Unlock()
	return nil
}

// Contains reports whether id is currently claimed.
func (m *Memory) Contains(id domain.GameID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok
}

// Len returns the number of claimed ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}
