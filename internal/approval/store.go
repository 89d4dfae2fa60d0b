package approval

import (
	"sync"

	"go.uber.org/zap"
)

// State is a point-in-time copy of the store's four-field tuple. The zero
// value is the initial state: no checkpoint, not processing, empty history,
// no error.
type State struct {
	// Checkpoint is the active pause point, nil when the pipeline is running.
	Checkpoint *CheckpointInfo

	// Processing is true while a submit or resume request is in flight.
	Processing bool

	// History holds reviewer feedback for the active checkpoint, in
	// submission order.
	History []CheckpointFeedback

	// Err is the last submission error message, empty when there is none.
	Err string
}

// Equal reports value equality between two snapshots.
func (s State) Equal(o State) bool {
	if s.Processing != o.Processing || s.Err != o.Err {
		return false
	}
	if !s.Checkpoint.Equal(o.Checkpoint) {
		return false
	}
	if len(s.History) != len(o.History) {
		return false
	}
	for i := range s.History {
		if !s.History[i].Equal(o.History[i]) {
			return false
		}
	}
	return true
}

// Store holds the checkpoint review state. All mutation goes through the
// methods below; every operation is total and never fails. Writers are
// serialized by an internal mutex so the event listener and the UI goroutine
// may share one instance.
type Store struct {
	logger *zap.Logger

	mu         sync.RWMutex
	checkpoint *CheckpointInfo
	processing bool
	history    []CheckpointFeedback
	errMsg     string
	subs       map[uint64]func(State)
	nextSub    uint64

	// notifyMu serializes subscriber delivery; deliveredSeq (under notifyMu)
	// tracks the newest snapshot handed out so a slow writer cannot deliver
	// an older state after a newer one.
	notifyMu     sync.Mutex
	notifySeq    uint64
	deliveredSeq uint64
}

// NewStore creates a store in the initial state. A nil logger disables logging.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger: logger,
		subs:   make(map[uint64]func(State)),
	}
}

// SetCheckpoint replaces the active checkpoint, or clears checkpoint identity
// when cp is nil. Feedback history and the error message are always reset in
// the same update; they never survive a checkpoint transition. The processing
// flag is left alone.
func (s *Store) SetCheckpoint(cp *CheckpointInfo) {
	s.mutate(func() {
		s.checkpoint = cp.Clone()
		s.history = nil
		s.errMsg = ""
	})
	if cp != nil {
		s.logger.Debug("checkpoint set",
			zap.String("checkpoint_id", cp.CheckpointID),
			zap.String("task_id", cp.TaskID),
			zap.String("phase", string(cp.Phase)),
		)
	}
}

// SetProcessing sets the in-flight flag. No other field is touched.
func (s *Store) SetProcessing(flag bool) {
	s.mutate(func() {
		s.processing = flag
	})
}

// SetFeedbackHistory replaces the history wholesale, used when hydrating from
// a backend fetch. Entries are not validated against the current checkpoint.
func (s *Store) SetFeedbackHistory(history []CheckpointFeedback) {
	s.mutate(func() {
		s.history = cloneHistory(history)
	})
}

// AddFeedback appends one submission to the history. Prior entries and their
// order are preserved; duplicates by ID are the caller's problem.
func (s *Store) AddFeedback(item CheckpointFeedback) {
	s.mutate(func() {
		s.history = append(s.history, cloneFeedback(item))
	})
}

// SetError records the last submission error message. An empty message clears
// it. The checkpoint and history are never touched.
func (s *Store) SetError(message string) {
	s.mutate(func() {
		s.errMsg = message
	})
}

// Clear resets all four fields to their initial values in one update. Called
// when the pipeline resumes past the checkpoint or abandons it.
func (s *Store) Clear() {
	s.mutate(func() {
		s.checkpoint = nil
		s.processing = false
		s.history = nil
		s.errMsg = ""
	})
}

// Snapshot returns a defensive copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Checkpoint returns a copy of the active checkpoint, nil when there is none.
func (s *Store) Checkpoint() *CheckpointInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoint.Clone()
}

// Processing reports whether a submit or resume request is in flight.
func (s *Store) Processing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processing
}

// Subscribe registers fn to be called with a snapshot after every state
// change. Writes that leave the state value-equal do not notify. Snapshots
// arrive monotonically: an older state is never delivered after a newer one,
// though intermediate states may be skipped under concurrent writes. fn may
// read the store but must not call its mutating methods. The
// returned cancel func unregisters; it is safe to call more than once.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// mutate applies fn under the write lock and notifies subscribers when the
// resulting state differs from the prior one. Each changing write is stamped
// with a sequence number under the write lock; delivery happens under the
// notification mutex, which drops a snapshot whenever a newer one has already
// been handed out. Subscribers therefore see monotonically newer states even
// with concurrent writers, and run without the write lock held so they may
// read the store.
func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	before := s.snapshotLocked()
	fn()
	after := s.snapshotLocked()

	var subs []func(State)
	var seq uint64
	if !after.Equal(before) {
		s.notifySeq++
		seq = s.notifySeq
		subs = make([]func(State), 0, len(s.subs))
		for _, fn := range s.subs {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	if subs == nil {
		return
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq < s.deliveredSeq {
		// A newer snapshot already went out; this one is stale.
		return
	}
	s.deliveredSeq = seq
	for _, fn := range subs {
		fn(after)
	}
}

func (s *Store) snapshotLocked() State {
	return State{
		Checkpoint: s.checkpoint.Clone(),
		Processing: s.processing,
		History:    cloneHistory(s.history),
		Err:        s.errMsg,
	}
}
