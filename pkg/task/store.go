package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/taskforge/pkg/shared/logging"
)

// StateChange is delivered to subscribers on every status transition
// (spec §4.1 "subscription hook").
type StateChange struct {
	TaskID   string
	VTID     string
	From     Status
	To       Status
	Snapshot State
}

// Subscriber receives state changes. Implementations must not block —
// the store invokes subscribers synchronously from the scheduler
// goroutine (spec §5: "single writer = the scheduler").
type Subscriber func(StateChange)

// Store holds task state records keyed by internal id. It is safe for
// concurrent mutation by the scheduler and concurrent reads by
// observers (spec §4.1, invariant-adjacent to spec §5's shared-resource
// rules: single writer, many readers).
type Store struct {
	mu          sync.RWMutex
	tasks       map[string]*State
	subscribers []Subscriber
	log         *logrus.Logger
}

// NewStore constructs an empty store.
func NewStore(log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{tasks: make(map[string]*State), log: log}
}

// Subscribe registers a subscriber for state-change notifications.
// Returns an unsubscribe function.
func (s *Store) Subscribe(sub Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.subscribers)
	s.subscribers = append(s.subscribers, sub)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.subscribers) {
			s.subscribers[idx] = nil
		}
	}
}

// Submit stores a new task in status pending (spec §3 "Lifecycle").
// The caller is expected to have already assigned t.ID (typically a
// uuid minted by the orchestrator at submission time).
func (s *Store) Submit(t Task) *State {
	st := &State{Task: t, Status: StatusPending, SubmittedAt: time.Now()}
	s.Put(st)
	return st
}

// Put inserts or replaces a task's state record directly. Used by the
// orchestrator when it already holds a fully-formed initial State.
func (s *Store) Put(st *State) {
	s.mu.Lock()
	s.tasks[st.Task.ID] = st
	s.mu.Unlock()
}

// Get returns a copy-free pointer to the live state record, or false if
// the task is unknown. Callers must not mutate the returned value
// outside the scheduler goroutine.
func (s *Store) Get(id string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tasks[id]
	return st, ok
}

// Transition moves a task to a new status and notifies subscribers. It
// is the only sanctioned way to mutate Status, enforcing invariant 1 of
// spec §3 (every transition follows the declared graph) — callers pass
// the already-validated target status; the state-machine legality check
// itself lives in package orchestrator, which is the sole writer.
func (s *Store) Transition(id string, to Status) error {
	s.mu.Lock()
	st, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s: not found", id)
	}
	from := st.Status
	st.Status = to
	snapshot := *st
	subs := append([]Subscriber(nil), s.subscribers...)
	s.mu.Unlock()

	s.log.WithFields(logging.NewFields().VTID(st.Task.VTID).Operation("transition").Logrus()).
		Debugf("%s -> %s", from, to)

	change := StateChange{TaskID: id, VTID: st.Task.VTID, From: from, To: to, Snapshot: snapshot}
	for _, sub := range subs {
		if sub != nil {
			sub(change)
		}
	}
	return nil
}

// ListByStatus returns all tasks currently in the given status.
func (s *Store) ListByStatus(status Status) []*State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*State
	for _, st := range s.tasks {
		if st.Status == status {
			out = append(out, st)
		}
	}
	return out
}

// ListByDomain returns all tasks classified under the given domain.
func (s *Store) ListByDomain(domain Domain) []*State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*State
	for _, st := range s.tasks {
		if st.Task.Domain == domain {
			out = append(out, st)
		}
	}
	return out
}

// Evict removes a terminal task from the in-memory store (spec §3
// "destroyed when evicted ... after reaching a terminal status plus a
// retention window"). The retention window itself is enforced by the
// caller (typically a janitor goroutine); Evict is unconditional.
func (s *Store) Evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// Count returns the number of tasks currently held, for diagnostics.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
