package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/taskforge/pkg/task"
)

func TestRedisBroadcaster_PublishesStateChanges(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	b := task.NewRedisBroadcaster(mr.Addr(), "taskforge.state", nil)
	defer b.Close()

	store := task.NewStore(nil)
	unsub := store.Subscribe(b.Subscriber())
	defer unsub()

	st := store.Submit(task.Task{ID: "t1", VTID: "VTID-1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	received := make(chan struct{}, 1)
	var gotFrom, gotTo task.Status
	go func() {
		_ = b.Listen(ctx, func(taskID, vtid string, from, to task.Status) {
			gotFrom, gotTo = from, to
			received <- struct{}{}
		})
	}()

	// Give the subscriber goroutine a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, store.Transition(st.Task.ID, task.StatusRouting))

	select {
	case <-received:
		require.Equal(t, task.StatusPending, gotFrom)
		require.Equal(t, task.StatusRouting, gotTo)
	case <-ctx.Done():
		t.Fatal("timed out waiting for redis broadcast")
	}
}

func TestRedisBroadcaster_ListenReturnsOnContextCancel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	b := task.NewRedisBroadcaster(mr.Addr(), "taskforge.state", nil)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = b.Listen(ctx, func(string, string, task.Status, task.Status) {})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
