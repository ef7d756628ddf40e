package mood

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
	"github.com/zhouzirui/lumi/backend/internal/service/remote"
	"github.com/zhouzirui/lumi/backend/internal/storage/kv"
)

type stubRemote struct {
	remote.Disabled
	reading emotion.Reading
	err     error
	calls   int
	during  func()
}

func (s *stubRemote) AnalyzeEmotion(context.Context, string) (emotion.Reading, error) {
	s.calls++
	if s.during != nil {
		s.during()
	}
	return s.reading, s.err
}

func (s *stubRemote) Configured() bool { return true }

// gatedRemote holds "slow" analyses open until release is closed.
type gatedRemote struct {
	remote.Disabled
	started chan string
	release chan struct{}
}

func (g *gatedRemote) AnalyzeEmotion(_ context.Context, text string) (emotion.Reading, error) {
	g.started <- text
	if text == "slow" {
		<-g.release
	}
	return emotion.Reading{Label: emotion.Joy, Score: 0.8}, nil
}

func (g *gatedRemote) Configured() bool { return true }

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func (brokenStore) Set(context.Context, string, string) error {
	return errors.New("disk gone")
}

func (brokenStore) Delete(context.Context, string) error {
	return errors.New("disk gone")
}

func (brokenStore) Close() error { return nil }

func fixedClock() func() time.Time {
	t := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestLoadDefaultsOnEmptyStore(t *testing.T) {
	m := Load(context.Background(), kv.NewMemoryStore())

	state := m.State()
	assert.False(t, state.Consented)
	assert.False(t, state.Asked)
	assert.Empty(t, state.History)
}

func TestLoadDefaultsOnBrokenStore(t *testing.T) {
	m := Load(context.Background(), brokenStore{})

	state := m.State()
	assert.False(t, state.Consented)
	assert.False(t, state.Asked)
	assert.Empty(t, state.History)
}

func TestLoadDefaultsOnCorruptHistory(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "lumi_consent", "true"))
	require.NoError(t, store.Set(ctx, "lumi_mood_history", "{not json"))

	m := Load(ctx, store)
	assert.True(t, m.Consented())
	assert.Empty(t, m.History())
}

func TestConsentTransitions(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	m := Load(ctx, store)

	require.NoError(t, m.Grant(ctx))
	assert.True(t, m.Consented())
	assert.True(t, m.Asked())

	require.NoError(t, m.Decline(ctx))
	assert.False(t, m.Consented())
	assert.True(t, m.Asked())

	require.NoError(t, m.Revoke(ctx))
	require.NoError(t, m.Revoke(ctx))
	assert.False(t, m.Consented())
	assert.True(t, m.Asked())

	consent, _, _ := store.Get(ctx, "lumi_consent")
	asked, _, _ := store.Get(ctx, "lumi_asked")
	assert.Equal(t, "false", consent)
	assert.Equal(t, "true", asked)
}

func TestRevokeDoesNotMarkAsked(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	m := Load(ctx, store)

	require.NoError(t, m.Revoke(ctx))
	assert.False(t, m.Asked())

	_, ok, _ := store.Get(ctx, "lumi_asked")
	assert.False(t, ok)
}

func TestConsentWriteFailureKeepsMemoryState(t *testing.T) {
	m := Load(context.Background(), brokenStore{})

	err := m.Grant(context.Background())
	assert.Error(t, err)
	assert.True(t, m.Consented())
	assert.True(t, m.Asked())
}

func TestAnalyzeWithoutConsent(t *testing.T) {
	rem := &stubRemote{reading: emotion.Reading{Label: emotion.Joy, Score: 1}}
	m := Load(context.Background(), kv.NewMemoryStore(), WithRemote(rem))

	got := m.Analyze(context.Background(), "I am so happy today")
	assert.Equal(t, emotion.Neutral, got.Label)
	assert.Equal(t, 0.0, got.Score)
	assert.Empty(t, m.History())
	assert.Zero(t, rem.calls)
}

func TestAnalyzeFallsBackToHeuristic(t *testing.T) {
	ctx := context.Background()
	rem := &stubRemote{err: &remote.Error{Op: "analyze", Kind: remote.KindTransport, Err: errors.New("refused")}}
	m := Load(ctx, kv.NewMemoryStore(), WithRemote(rem), WithClock(fixedClock()))
	require.NoError(t, m.Grant(ctx))

	got := m.Analyze(ctx, "I am so happy today")
	assert.Equal(t, emotion.Joy, got.Label)
	assert.Equal(t, 0.8, got.Score)

	history := m.History()
	require.Len(t, history, 1)
	assert.Equal(t, emotion.Joy, history[0].Label)
	assert.Equal(t, int64(1_700_000_001_000), history[0].Timestamp)
	assert.False(t, m.Listening())
}

func TestAnalyzePrefersRemote(t *testing.T) {
	ctx := context.Background()
	rem := &stubRemote{reading: emotion.Reading{Label: emotion.Fear, Score: 0.9, Source: emotion.SourceRemote}}
	m := Load(ctx, kv.NewMemoryStore(), WithRemote(rem))
	require.NoError(t, m.Grant(ctx))

	got := m.Analyze(ctx, "I am so happy today")
	assert.Equal(t, emotion.Fear, got.Label)
	assert.Equal(t, emotion.SourceRemote, got.Source)
	assert.Len(t, m.History(), 1)
}

func TestAnalyzeSetsListeningWhileInFlight(t *testing.T) {
	ctx := context.Background()
	rem := &stubRemote{err: remote.ErrUnconfigured}
	m := Load(ctx, kv.NewMemoryStore(), WithRemote(rem))
	require.NoError(t, m.Grant(ctx))

	updates, cancel := m.Subscribe()
	defer cancel()

	var seen bool
	rem.during = func() {
		seen = m.Listening()
		assert.True(t, <-updates)
	}

	m.Analyze(ctx, "hello")
	assert.True(t, seen)
	assert.False(t, m.Listening())
	assert.False(t, <-updates)
}

func TestHistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	m := Load(ctx, kv.NewMemoryStore(), WithClock(fixedClock()))
	require.NoError(t, m.Grant(ctx))

	for i := 0; i < HistoryLimit+1; i++ {
		m.Analyze(ctx, fmt.Sprintf("message %d", i))
	}

	history := m.History()
	require.Len(t, history, HistoryLimit)
	// the first append got timestamp +1s and was dropped.
	assert.Equal(t, int64(1_700_000_002_000), history[0].Timestamp)
	for i := 1; i < len(history); i++ {
		assert.Less(t, history[i-1].Timestamp, history[i].Timestamp)
	}
}

func TestLoadRestoresHistory(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	writer := Load(ctx, store, WithClock(fixedClock()))
	require.NoError(t, writer.Grant(ctx))
	for i := 0; i < 5; i++ {
		writer.Analyze(ctx, "sad")
	}

	m := Load(ctx, store)
	assert.Len(t, m.History(), 5)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	original := Load(ctx, store, WithNamespace("profile-1"), WithClock(fixedClock()))
	require.NoError(t, original.Grant(ctx))
	original.Analyze(ctx, "I am so happy today")
	original.Analyze(ctx, "worried about tomorrow")
	original.Analyze(ctx, "")

	restored := Load(ctx, store, WithNamespace("profile-1"))
	if diff := cmp.Diff(original.State(), restored.State()); diff != "" {
		t.Fatalf("state mismatch after reload (-want +got):\n%s", diff)
	}

	other := Load(ctx, store, WithNamespace("profile-2"))
	assert.False(t, other.Consented())
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	m := Load(ctx, store)
	require.NoError(t, m.Grant(ctx))
	m.Analyze(ctx, "angry")

	require.NoError(t, m.ClearHistory(ctx))
	assert.Empty(t, m.History())
	assert.True(t, m.Consented())

	raw, _, _ := store.Get(ctx, "lumi_mood_history")
	assert.Equal(t, "[]", raw)
}

func TestListeningStaysOnUntilLastAnalysisFinishes(t *testing.T) {
	ctx := context.Background()
	rem := &gatedRemote{started: make(chan string, 2), release: make(chan struct{})}
	m := Load(ctx, kv.NewMemoryStore(), WithRemote(rem))
	require.NoError(t, m.Grant(ctx))

	updates, cancel := m.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Analyze(ctx, "slow")
	}()
	require.Equal(t, "slow", <-rem.started)
	assert.True(t, <-updates)

	m.Analyze(ctx, "fast")
	require.Equal(t, "fast", <-rem.started)
	assert.True(t, m.Listening())
	assert.True(t, m.State().Listening)
	select {
	case v := <-updates:
		t.Fatalf("unexpected listening update %v while slow analysis is in flight", v)
	default:
	}

	close(rem.release)
	<-done
	assert.False(t, m.Listening())
	assert.False(t, <-updates)
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	m := Load(context.Background(), kv.NewMemoryStore())
	_, cancel := m.Subscribe()
	cancel()
	cancel()
}
