/*
Package lending coordinates exclusive per-card lend/return operations.

PURPOSE:
  A card can be tapped at any workstation, so two lend attempts for the
  same card may arrive concurrently. This package serializes mutations
  per card with a bounded wait, reinterprets a quick second tap of the
  same card as the reverse operation (the retouch window), and owns the
  lend/return orchestration against the ledger store.

KEY PARTS:
  - LockManager (locks.go):   per-card exclusive locks, bounded wait
  - RetouchState (retouch.go): atomically-swapped last-operation record
  - Controller (controller.go): Lend/Return state machine

SEE ALSO:
  - ledger: store contracts and error taxonomy
  - summary: converts the returned card's taps into ledger entries
*/
package lending

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/transitpass/cardledger/ledger"
)

// DefaultLockTimeout is the bounded wait for a card's lock. Deployments
// override it via config; tests inject much shorter values.
const DefaultLockTimeout = 5 * time.Second

// =============================================================================
// LOCK MANAGER - Lazily-created per-card exclusive locks
// =============================================================================

// LockManager hands out exclusive locks keyed by card idm. Operations on
// different cards never contend; a second operation on the same card waits
// up to the configured timeout and then fails with ErrOperationInProgress.
type LockManager struct {
	mu      sync.Mutex
	locks   map[ledger.CardIdm]*semaphore.Weighted
	timeout time.Duration
}

func NewLockManager(timeout time.Duration) *LockManager {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &LockManager{
		locks:   make(map[ledger.CardIdm]*semaphore.Weighted),
		timeout: timeout,
	}
}

// Acquire takes the card's exclusive lock, waiting at most the configured
// timeout. On success it returns the release func; the caller must invoke
// it on every exit path. On timeout (or caller cancellation) it returns
// ErrOperationInProgress.
func (m *LockManager) Acquire(ctx context.Context, idm ledger.CardIdm) (func(), error) {
	sem := m.lockFor(idm)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, ledger.ErrOperationInProgress
	}
	return func() { sem.Release(1) }, nil
}

// lockFor returns the card's semaphore, creating it on first use. Locks
// are never removed; the registry grows with the card fleet, which is
// bounded and small.
func (m *LockManager) lockFor(idm ledger.CardIdm) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()

	sem, ok := m.locks[idm]
	if !ok {
		sem = semaphore.NewWeighted(1)
		m.locks[idm] = sem
	}
	return sem
}
