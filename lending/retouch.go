package lending

import (
	"sync/atomic"
	"time"

	"github.com/transitpass/cardledger/ledger"
)

// DefaultRetouchWindow is how long after a successful operation a repeat
// tap of the same card is read as a correction.
const DefaultRetouchWindow = 30 * time.Second

type OperationKind string

const (
	OpLend   OperationKind = "lend"
	OpReturn OperationKind = "return"
)

// lastOperation is the small record swapped atomically on every successful
// lend/return. It is immutable once published.
type lastOperation struct {
	Card ledger.CardIdm
	Kind OperationKind
	At   time.Time
}

// =============================================================================
// RETOUCH STATE - Explicit, injected, thread-safe
// =============================================================================

// RetouchState holds the most recent successful operation. It is injected
// into the controller rather than kept as ambient package state so tests
// can construct isolated instances.
type RetouchState struct {
	window time.Duration
	now    func() time.Time
	last   atomic.Pointer[lastOperation]
}

func NewRetouchState(window time.Duration) *RetouchState {
	if window <= 0 {
		window = DefaultRetouchWindow
	}
	return &RetouchState{window: window, now: time.Now}
}

// Record publishes op as the most recent successful operation.
func (s *RetouchState) Record(idm ledger.CardIdm, kind OperationKind) {
	s.last.Store(&lastOperation{Card: idm, Kind: kind, At: s.now()})
}

// IsRetouchWithinTimeout reports whether idm was the subject of the most
// recent successful operation within the window. True means a second tap
// of this card is almost certainly the user's corrective re-tap and should
// be interpreted as the reverse operation.
func (s *RetouchState) IsRetouchWithinTimeout(idm ledger.CardIdm) bool {
	last := s.last.Load()
	if last == nil || last.Card != idm {
		return false
	}
	return s.now().Sub(last.At) <= s.window
}

// LastKind returns the kind of the most recent operation on idm, or "" if
// idm is not the most recent subject. Callers use it to pick the reverse
// operation during a retouch.
func (s *RetouchState) LastKind(idm ledger.CardIdm) OperationKind {
	last := s.last.Load()
	if last == nil || last.Card != idm {
		return ""
	}
	return last.Kind
}

// ClearHistory resets the state unconditionally, e.g. at session boundaries.
func (s *RetouchState) ClearHistory() {
	s.last.Store(nil)
}
