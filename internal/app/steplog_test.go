package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStepLogSeqStrictlyIncreasing(t *testing.T) {
	l := NewStepLog()

	for i := 0; i < 5; i++ {
		l.Append("STEP", nil)
	}

	snap := l.Snapshot()
	require.Len(t, snap, 5)
	for i := 1; i < len(snap); i++ {
		require.Greater(t, snap[i].Seq, snap[i-1].Seq)
	}
}

func TestStepLogSeqSurvivesClear(t *testing.T) {
	l := NewStepLog()

	l.Append("ONE", nil)
	l.Append("TWO", nil)
	last := l.Snapshot()[1].Seq

	l.Clear()
	require.Empty(t, l.Snapshot())

	entry := l.Append("THREE", nil)
	require.Greater(t, entry.Seq, last)
}

func TestStepLogSubscribeNotifiesOnAppend(t *testing.T) {
	l := NewStepLog()
	ch, cancel := l.Subscribe()
	defer cancel()

	l.Append("STEP", map[string]string{"k": "v"})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after append")
	}
}

func TestStepLogSlowSubscriberNeverBlocksAppend(t *testing.T) {
	l := NewStepLog()
	_, cancel := l.Subscribe()
	defer cancel()

	// Nobody drains the channel; appends must still return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			l.Append("STEP", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("append blocked on slow subscriber")
	}
	require.Len(t, l.Snapshot(), 10)
}

func TestStepLogCancelledSubscriberGetsNoNotify(t *testing.T) {
	l := NewStepLog()
	ch, cancel := l.Subscribe()
	cancel()

	l.Append("STEP", nil)

	select {
	case <-ch:
		t.Fatal("cancelled subscriber was notified")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStepLogSnapshotIsACopy(t *testing.T) {
	l := NewStepLog()
	l.Append("STEP", nil)

	snap := l.Snapshot()
	snap[0].Step = "MUTATED"

	require.Equal(t, "STEP", l.Snapshot()[0].Step)
}
