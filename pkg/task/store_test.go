package task

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SubmitAndGet(t *testing.T) {
	s := NewStore(nil)
	st := s.Submit(Task{ID: "t1", VTID: "VTID-00001", Domain: DomainBackend})

	assert.Equal(t, StatusPending, st.Status)

	got, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "VTID-00001", got.Task.VTID)
	assert.Equal(t, 1, s.Count())
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore(nil)
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestStore_TransitionNotifiesSubscribers(t *testing.T) {
	s := NewStore(nil)
	s.Submit(Task{ID: "t1", VTID: "VTID-00001"})

	var mu sync.Mutex
	var seen []StateChange
	unsub := s.Subscribe(func(c StateChange) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c)
	})
	defer unsub()

	require.NoError(t, s.Transition("t1", StatusRouting))
	require.NoError(t, s.Transition("t1", StatusDispatched))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, StatusPending, seen[0].From)
	assert.Equal(t, StatusRouting, seen[0].To)
	assert.Equal(t, StatusRouting, seen[1].From)
	assert.Equal(t, StatusDispatched, seen[1].To)
}

func TestStore_TransitionUnknownTask(t *testing.T) {
	s := NewStore(nil)
	err := s.Transition("nope", StatusRouting)
	assert.Error(t, err)
}

func TestStore_ListByStatusAndDomain(t *testing.T) {
	s := NewStore(nil)
	s.Submit(Task{ID: "a", Domain: DomainBackend})
	s.Submit(Task{ID: "b", Domain: DomainFrontend})
	require.NoError(t, s.Transition("a", StatusRouting))

	assert.Len(t, s.ListByStatus(StatusPending), 1)
	assert.Len(t, s.ListByStatus(StatusRouting), 1)
	assert.Len(t, s.ListByDomain(DomainBackend), 1)
	assert.Len(t, s.ListByDomain(DomainFrontend), 1)
}

func TestStore_Evict(t *testing.T) {
	s := NewStore(nil)
	s.Submit(Task{ID: "a"})
	s.Evict("a")
	assert.Equal(t, 0, s.Count())
}

func TestState_PushRetryReason(t *testing.T) {
	st := &State{}
	st.PushRetryReason("false completion: missing_files")
	st.PushRetryReason("false completion: stale mtime")

	assert.Equal(t, 2, st.RetryCount)
	assert.Equal(t, st.RetryCount, len(st.RetryReasons))
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []Status{StatusPending, StatusRouting, StatusDispatched, StatusInProgress, StatusVerifying, StatusRetryPending} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}
