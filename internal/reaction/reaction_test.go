package reaction

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayane-dev/zombiewatch-go/internal/arbiter"
	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/detector"
	"github.com/ayane-dev/zombiewatch-go/internal/notification"
	"github.com/ayane-dev/zombiewatch-go/internal/voice"
)

func TestSeverityFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SeverityMany, SeverityFor(12, 0, 0.7))
	assert.Equal(t, SeverityMany, SeverityFor(10, 0, 0.7))
	assert.Equal(t, SeverityWarning, SeverityFor(7, 0, 0.7))
	assert.Equal(t, SeverityFew, SeverityFor(1, 0, 0.7))
	assert.Equal(t, SeverityPresence, SeverityFor(0, 0.8, 0.7))
	assert.Equal(t, SeverityNone, SeverityFor(0, 0.7, 0.7), "threshold is exclusive")
	assert.Equal(t, SeverityNone, SeverityFor(0, 0.1, 0.7))
}

func TestMessageFor_SubstitutesPlaceholders(t *testing.T) {
	t.Parallel()

	msg := MessageFor(TierConfirm, SeverityWarning, 7, "near")
	assert.Contains(t, msg, "7")
	assert.NotContains(t, msg, "{count}")
	assert.NotContains(t, msg, "{distance}")
}

func TestMessageFor_EmptyDistanceIsTrimmed(t *testing.T) {
	t.Parallel()

	for range 20 {
		msg := MessageFor(TierImmediate, SeverityFew, 2, "")
		assert.NotContains(t, msg, "{distance}")
		assert.Equal(t, strings.TrimSpace(msg), msg)
	}
}

func TestMessageFor_UnknownPoolReturnsEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, MessageFor(TierConfirm, SeverityNone, 0, ""))
	assert.Empty(t, MessageFor("bogus", SeverityFew, 1, ""))
}

func TestArbiterCategory_PresenceSharesFewBucket(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SeverityFew, ArbiterCategory(SeverityPresence))
	assert.Equal(t, SeverityMany, ArbiterCategory(SeverityMany))
}

// recordingAction counts executions for pool tests.
type recordingAction struct {
	mu    sync.Mutex
	count int
}

func (a *recordingAction) Execute(*detector.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count++
	return nil
}

func (a *recordingAction) GetDescription() string { return "recording action" }

func (a *recordingAction) executions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func TestPool_ExecutesEnqueuedActions(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(8)
	pool.Start(ctx, 2)

	action := &recordingAction{}
	for range 5 {
		require.NoError(t, pool.Enqueue(action, &detector.Context{}))
	}

	assert.Eventually(t, func() bool { return action.executions() == 5 },
		time.Second, 10*time.Millisecond)
}

func TestPool_RejectsWhenFull(t *testing.T) {
	t.Parallel()

	// Never started, so the queue only drains by capacity.
	pool := NewPool(1)
	require.NoError(t, pool.Enqueue(&recordingAction{}, &detector.Context{}))

	err := pool.Enqueue(&recordingAction{}, &detector.Context{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

// fakeSpeech records prepared and played utterances.
type fakeSpeech struct {
	mu       sync.Mutex
	enabled  bool
	prepared []string
	played   int
	duration time.Duration
}

func (f *fakeSpeech) Enabled() bool { return f.enabled }

func (f *fakeSpeech) Prepare(_ context.Context, text, _ string) (*voice.Utterance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, text)
	return &voice.Utterance{Text: text, Duration: f.duration}, nil
}

func (f *fakeSpeech) Play(context.Context, *voice.Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played++
	return nil
}

func (f *fakeSpeech) playedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.played
}

// confirmCount counts prepared utterances drawn from the confirm pools, which
// all start with "confirmed".
func (f *fakeSpeech) confirmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, text := range f.prepared {
		if strings.Contains(text, "confirmed") {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T, speech Speech) (*Dispatcher, *notification.Service, *arbiter.Arbiter) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pool := NewPool(32)
	pool.Start(ctx, 2)

	notifier := notification.NewService(50)
	arb := arbiter.New(&conf.NotificationSettings{
		GlobalMinInterval: 5,
		SourceMinInterval: 1,
		Cooldowns:         conf.CooldownSettings{Few: 30, Warning: 40, Many: 30},
	})

	d := NewDispatcher(&Config{
		Pool:              pool,
		Arbiter:           arb,
		Speech:            speech,
		Notifier:          notifier,
		PresenceThreshold: 0.7,
		FollowupDelayMs:   1,
	})
	return d, notifier, arb
}

func TestDispatcher_ManySeverityRunsAllTiers(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{enabled: true, duration: time.Second}
	d, notifier, arb := newTestDispatcher(t, speech)

	events, cancel := notifier.Subscribe()
	defer cancel()

	dc := &detector.Context{Count: 12, SceneProbability: 0.9, Source: "watcher", CapturedAt: time.Now()}
	require.NoError(t, d.Dispatch(context.Background(), dc))

	assert.Equal(t, 3, speech.playedCount(), "every tier spoke its cue")
	assert.Equal(t, 1, speech.confirmCount(), "only one full confirm utterance")
	assert.False(t, arb.Active(), "lease released after playback")

	var tiers []string
	deadline := time.After(time.Second)
	for len(tiers) < 3 {
		select {
		case n := <-events:
			assert.Equal(t, notification.PriorityCritical, n.Priority)
			tiers = append(tiers, n.Metadata["tier"].(string))
		case <-deadline:
			t.Fatal("expected immediate, followup and confirm notifications")
		}
	}
	assert.ElementsMatch(t, []string{TierImmediate, TierFollowup, TierConfirm}, tiers)
}

func TestDispatcher_PresenceFromClassifierAlone(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{enabled: true}
	d, notifier, _ := newTestDispatcher(t, speech)

	events, cancel := notifier.Subscribe()
	defer cancel()

	dc := &detector.Context{Count: 0, SceneProbability: 0.8, ScenePresence: true, Source: "watcher"}
	require.NoError(t, d.Dispatch(context.Background(), dc))

	// Zero-count verdicts skip the immediate tier; followup and confirm fire.
	var tiers []string
	deadline := time.After(time.Second)
	for len(tiers) < 2 {
		select {
		case n := <-events:
			assert.Equal(t, notification.PriorityLow, n.Priority)
			assert.Equal(t, SeverityPresence, n.Metadata["severity"])
			tiers = append(tiers, n.Metadata["tier"].(string))
		case <-deadline:
			t.Fatal("expected followup and confirm notifications")
		}
	}
	assert.ElementsMatch(t, []string{TierFollowup, TierConfirm}, tiers)
}

func TestDispatcher_NoThreatDoesNothing(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{enabled: true}
	d, notifier, _ := newTestDispatcher(t, speech)

	dc := &detector.Context{Count: 0, SceneProbability: 0.2, Source: "watcher"}
	require.NoError(t, d.Dispatch(context.Background(), dc))

	assert.Zero(t, speech.playedCount())
	assert.Empty(t, notifier.List())
}

func TestDispatcher_DeniedLeaseSuppressesConfirmOnly(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{enabled: true}
	d, notifier, arb := newTestDispatcher(t, speech)

	// Hold the lease so the confirm tier is denied.
	granted, id, _ := arb.TryAcquire(1, "other", SeverityFew)
	require.True(t, granted)
	defer arb.Release(id, "other")

	dc := &detector.Context{Count: 3, Source: "watcher"}
	require.NoError(t, d.Dispatch(context.Background(), dc))

	assert.Equal(t, 2, speech.playedCount(), "immediate and followup cues still speak")
	assert.Zero(t, speech.confirmCount(), "full utterance suppressed while lease held elsewhere")
	assert.Eventually(t, func() bool { return len(notifier.List()) >= 1 },
		time.Second, 10*time.Millisecond, "immediate tier still fires")
}

func TestDispatcher_ForceBypassesCooldowns(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{enabled: true}
	d, _, arb := newTestDispatcher(t, speech)

	dc := &detector.Context{Count: 12, Source: "manual", Force: true}
	require.NoError(t, d.Dispatch(context.Background(), dc))
	require.Equal(t, 1, speech.confirmCount())

	// A second forced dispatch right away still gets the full utterance.
	require.NoError(t, d.Dispatch(context.Background(), dc))
	assert.Equal(t, 2, speech.confirmCount())
	assert.False(t, arb.Active())
}

func TestDispatcher_SpeechDisabledStillPublishesConfirm(t *testing.T) {
	t.Parallel()

	speech := &fakeSpeech{enabled: false}
	d, notifier, arb := newTestDispatcher(t, speech)

	dc := &detector.Context{Count: 12, Source: "watcher"}
	require.NoError(t, d.Dispatch(context.Background(), dc))

	assert.Zero(t, speech.playedCount())
	assert.False(t, arb.Active(), "lease released once the confirm event is out")

	found := false
	for _, n := range notifier.List() {
		if n.Metadata["tier"] == TierConfirm {
			found = true
			break
		}
	}
	assert.True(t, found, "confirm push event published without speech")
}
