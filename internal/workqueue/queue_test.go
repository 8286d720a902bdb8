package workqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPriorityOrderWithFIFOTieBreak(t *testing.T) {
	q := NewQueue()

	require.NoError(t, q.Put("low", 1, PriorityLow))
	require.NoError(t, q.Put("high-1", 2, PriorityHigh))
	require.NoError(t, q.Put("medium", 3, PriorityMedium))
	require.NoError(t, q.Put("high-2", 4, PriorityHigh))

	var symbols []string
	for i := 0; i < 4; i++ {
		item, ok := q.TryGet()
		require.True(t, ok)
		symbols = append(symbols, item.Symbol)
	}
	require.Equal(t, []string{"high-1", "high-2", "medium", "low"}, symbols)
}

func TestBoundedPutRejects(t *testing.T) {
	q := NewQueue(WithMaxSize(2))

	require.NoError(t, q.Put("A", nil, PriorityMedium))
	require.NoError(t, q.Put("B", nil, PriorityMedium))

	err := q.Put("C", nil, PriorityHigh)
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, 2, q.Len(), "rejection must not mutate the queue")

	// rejected item never appears
	first, ok := q.TryGet()
	require.True(t, ok)
	require.Equal(t, "A", first.Symbol)
}

func TestGetBlocksUntilPut(t *testing.T) {
	q := NewQueue()

	done := make(chan *Item, 1)
	go func() {
		item, err := q.Get(context.Background(), time.Second)
		if err == nil {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Put("AAPL", "bar", PriorityHigh))

	select {
	case item := <-done:
		require.Equal(t, "AAPL", item.Symbol)
	case <-time.After(time.Second):
		t.Fatal("blocked Get never received the item")
	}
}

func TestGetTimeout(t *testing.T) {
	q := NewQueue()

	start := time.Now()
	_, err := q.Get(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestGetHonorsContext(t *testing.T) {
	q := NewQueue()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := q.Get(ctx, 0)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestTryGetEmpty(t *testing.T) {
	q := NewQueue()
	_, ok := q.TryGet()
	require.False(t, ok)
}

func TestSequenceIsMonotonic(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Put("A", nil, PriorityMedium))
	require.NoError(t, q.Put("B", nil, PriorityMedium))

	first, _ := q.TryGet()
	second, _ := q.TryGet()
	require.Less(t, first.Seq, second.Seq)
}

func TestManagerDefaultsToMedium(t *testing.T) {
	m := NewManager()
	require.Equal(t, PriorityMedium, m.PriorityFor("AAPL"))

	m.SetPriority("AAPL", PriorityHigh)
	require.Equal(t, PriorityHigh, m.PriorityFor("AAPL"))
	require.Equal(t, PriorityMedium, m.PriorityFor("TSLA"))

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, PriorityHigh, snap["AAPL"])
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("HIGH")
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("urgent")
	require.Error(t, err)
}
