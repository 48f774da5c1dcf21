/*
Package mutation rewrites regions of a card's ledger while preserving the
running-balance invariant.

PURPOSE:
  Three administrative operations share one responsibility: rewrite a
  contiguous or grouped region of a card's ledger atomically, reversibly
  where stated, and never partially.

  Merge:   absorb >=2 rows into the earliest-dated survivor, with an undo
           snapshot saved before anything is touched
  Unmerge: the exact inverse, replaying the snapshot id-for-id
  Split:   fan one row out into one row per detail group
  Import:  validate an external batch against the full reconstructed
           per-card balance chain before any write

VALIDATION DISCIPLINE:
  Every operation validates fully in memory before its first write.
  A validation or consistency failure leaves the store untouched; a store
  failure after validation is wrapped and reported, never papered over.

CONCURRENCY:
  These operations are invoked from a single administrative flow and do
  not take the per-card lock themselves; serializing concurrent
  administrative edits is the caller's job.
*/
package mutation

import (
	"time"

	"github.com/transitpass/cardledger/ledger"
)

// Service executes the ledger mutation operations against a store.
type Service struct {
	store ledger.Store
	now   func() time.Time
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store, now: time.Now}
}
