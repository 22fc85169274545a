package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_PublishStoresAndBroadcasts(t *testing.T) {
	t.Parallel()

	svc := NewService(10)
	events, cancel := svc.Subscribe()
	defer cancel()

	n := NewNotification(TypeThreat, PriorityCritical, "threats detected", "12 threats on screen").
		WithMetadata("count", 12)
	svc.Publish(n)

	select {
	case got := <-events:
		assert.Equal(t, n.ID, got.ID)
		assert.Equal(t, 12, got.Metadata["count"])
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification")
	}

	stored, ok := svc.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, "threats detected", stored.Title)
}

func TestService_EvictsOldestBeyondMaxStored(t *testing.T) {
	t.Parallel()

	svc := NewService(3)
	first := NewNotification(TypeSystem, PriorityLow, "first", "")
	svc.Publish(first)
	for range 3 {
		svc.Publish(NewNotification(TypeSystem, PriorityLow, "later", ""))
	}

	_, ok := svc.Get(first.ID)
	assert.False(t, ok, "oldest notification evicted")
	assert.Len(t, svc.List(), 3)
}

func TestService_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	svc := NewService(100)
	_, cancel := svc.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Publish more than the subscriber buffer without draining it.
		for range subscriberBufferSize * 2 {
			svc.Publish(NewNotification(TypeSystem, PriorityLow, "flood", ""))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestService_SubscriberReceivesClone(t *testing.T) {
	t.Parallel()

	svc := NewService(10)
	events, cancel := svc.Subscribe()
	defer cancel()

	n := NewNotification(TypeThreat, PriorityHigh, "original", "").WithMetadata("k", "v")
	svc.Publish(n)

	got := <-events
	got.Metadata["k"] = "mutated"

	stored, ok := svc.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, "v", stored.Metadata["k"], "subscriber mutation does not leak into the store")
}

func TestService_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	svc := NewService(10)
	_, cancel := svc.Subscribe()

	cancel()
	cancel()
	assert.Zero(t, svc.SubscriberCount())

	// Publishing after unsubscribe must not panic on the closed channel.
	svc.Publish(NewNotification(TypeSystem, PriorityLow, "after", ""))
}

func TestService_ListNewestFirst(t *testing.T) {
	t.Parallel()

	svc := NewService(10)
	a := NewNotification(TypeSystem, PriorityLow, "a", "")
	a.Timestamp = time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	b := NewNotification(TypeSystem, PriorityLow, "b", "")
	b.Timestamp = time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	svc.Publish(a)
	svc.Publish(b)

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Title)
}

func TestPriorityForSeverity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PriorityCritical, PriorityForSeverity("many"))
	assert.Equal(t, PriorityHigh, PriorityForSeverity("warning"))
	assert.Equal(t, PriorityMedium, PriorityForSeverity("few"))
	assert.Equal(t, PriorityLow, PriorityForSeverity("presence"))
	assert.Equal(t, PriorityMedium, PriorityForSeverity("bogus"))
}
