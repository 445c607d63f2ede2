package sync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cookbooksync/backend/store"
	"cookbooksync/internal/identity"

	"github.com/stretchr/testify/require"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c == call {
			n++
		}
	}
	return n
}

// fakeSyncer records calls; its behavior is fixed before the orchestrator runs
type fakeSyncer struct {
	name        string
	log         *callLog
	pullErr     error
	panicOnPull bool
	waitCtx     bool
	block       chan struct{}
	entered     chan struct{}
}

func (f *fakeSyncer) Name() string { return f.name }

func (f *fakeSyncer) Pull(ctx context.Context, uid string) (PullResult, error) {
	f.log.add(f.name + " pull " + uid)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	if f.panicOnPull {
		panic("boom")
	}
	if f.waitCtx {
		<-ctx.Done()
		return PullResult{}, ctx.Err()
	}
	return PullResult{}, f.pullErr
}

func (f *fakeSyncer) Push(ctx context.Context, uid string) (PushResult, error) {
	f.log.add(f.name + " push " + uid)
	return PushResult{}, nil
}

func (f *fakeSyncer) RepublishLegacy(ctx context.Context) error {
	f.log.add(f.name + " republish")
	return nil
}

func (f *fakeSyncer) Stats(ctx context.Context) (Stats, error) {
	return Stats{Entity: f.name}, nil
}

type countingMigrator struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (m *countingMigrator) Run(ctx context.Context) ([]LegacyKeyReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	return nil, m.err
}

type harness struct {
	o         *Orchestrator
	log       *callLog
	cookbooks *fakeSyncer
	recipes   *fakeSyncer
	prefs     *fakeSyncer
	migration *countingMigrator
}

func newHarness(t *testing.T, cfg OrchestratorConfig) *harness {
	t.Helper()
	log := &callLog{}
	h := &harness{
		log:       log,
		cookbooks: &fakeSyncer{name: "cookbooks", log: log},
		recipes:   &fakeSyncer{name: "recipes", log: log},
		prefs:     &fakeSyncer{name: "preferences", log: log},
		migration: &countingMigrator{},
	}
	h.o = NewOrchestrator(cfg, h.migration, h.cookbooks, h.recipes, h.prefs)
	h.o.SetUser(&identity.User{UID: "u1"})
	t.Cleanup(func() { _ = h.o.Shutdown(time.Second) })
	return h
}

// blockFirstPull makes the cookbooks pull hang until the returned func is called
func (h *harness) blockFirstPull() (entered chan struct{}, release func()) {
	h.cookbooks.block = make(chan struct{})
	h.cookbooks.entered = make(chan struct{}, 1)
	var once sync.Once
	return h.cookbooks.entered, func() { once.Do(func() { close(h.cookbooks.block) }) }
}

func (h *harness) startBlockedRun(t *testing.T, reason Reason) (release func(), done chan Outcome) {
	t.Helper()
	entered, release := h.blockFirstPull()
	done = make(chan Outcome, 1)
	go func() {
		out, _ := h.o.SyncAll(context.Background(), reason, Options{})
		done <- out
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}
	t.Cleanup(release)
	return release, done
}

func TestSyncAllRunsModulesInOrder(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Minute})

	out, err := h.o.SyncAll(context.Background(), ReasonStartup, Options{})
	require.NoError(t, err)
	require.Equal(t, OutcomeRan, out)

	require.Equal(t, []string{
		"cookbooks pull u1", "cookbooks push u1",
		"recipes pull u1", "recipes push u1",
		"preferences pull u1", "preferences push u1",
	}, h.log.snapshot())
	require.Equal(t, 1, h.migration.runs)

	st := h.o.Status()
	require.False(t, st.Running)
	require.False(t, st.LastSyncAt.IsZero())
	require.Equal(t, 1, st.Runs)
}

func TestStepFailureDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{})
	h.recipes.pullErr = errors.New("network down")
	h.migration.err = errors.New("disk I/O error")

	_, err := h.o.SyncAll(context.Background(), ReasonManual, Options{})
	require.NoError(t, err)

	require.Equal(t, 1, h.log.count("recipes push u1"), "push still runs after a failed pull")
	require.Equal(t, 1, h.log.count("preferences pull u1"))

	st := h.o.Status()
	require.Equal(t, 2, st.StepFailures)
	require.Contains(t, st.LastError, "network down")
	require.False(t, st.LastSyncAt.IsZero(), "swallowed failures still complete the run")
}

func TestNoUserSkipsEntitySteps(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{})
	h.o.SetUser(nil)

	_, err := h.o.SyncAll(context.Background(), ReasonManual, Options{})
	require.NoError(t, err)
	require.Empty(t, h.log.snapshot())
	require.Equal(t, 1, h.migration.runs)
}

func TestQueuedReasonsCoalesce(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	release, done := h.startBlockedRun(t, ReasonStartup)

	for i := 0; i < 5; i++ {
		out, err := h.o.SyncAll(context.Background(), ReasonMutation, Options{})
		require.NoError(t, err)
		require.Equal(t, OutcomeQueued, out)
	}
	require.Len(t, h.o.Status().Queued, 5)

	release()
	require.Equal(t, OutcomeRan, <-done)
	h.o.Wait()

	st := h.o.Status()
	require.Equal(t, 2, st.Runs, "five queued calls produce exactly one follow-up")
	require.Equal(t, 4, st.Coalesced)
	require.Empty(t, st.Queued)
	require.Equal(t, 2, h.log.count("cookbooks pull u1"))
}

func TestManualDroppedWhileRunning(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{})
	release, done := h.startBlockedRun(t, ReasonStartup)

	out, err := h.o.SyncAll(context.Background(), ReasonManual, Options{})
	require.NoError(t, err)
	require.Equal(t, OutcomeDropped, out)

	release()
	<-done
	h.o.Wait()

	st := h.o.Status()
	require.Equal(t, 1, st.Runs)
	require.Equal(t, 1, st.Dropped)
}

func TestForceSyncNowDeduplicatesManualMarker(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{})
	release, done := h.startBlockedRun(t, ReasonStartup)

	for i := 0; i < 3; i++ {
		out, err := h.o.ForceSyncNow(context.Background(), ReasonManual)
		require.NoError(t, err)
		require.Equal(t, OutcomeQueued, out)
	}
	require.Equal(t, []Reason{ReasonManual}, h.o.Status().Queued)

	release()
	<-done
	h.o.Wait()
	require.Equal(t, 2, h.o.Status().Runs)
}

func TestForceSyncNowIgnoresThrottle(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	_, err := h.o.SyncAll(context.Background(), ReasonStartup, Options{})
	require.NoError(t, err)

	out, err := h.o.ForceSyncNow(context.Background(), ReasonForeground)
	require.NoError(t, err)
	require.Equal(t, OutcomeRan, out)
	require.Equal(t, 2, h.o.Status().Runs)
}

func TestThrottleDefersToTimer(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: 200 * time.Millisecond})
	_, err := h.o.SyncAll(context.Background(), ReasonStartup, Options{})
	require.NoError(t, err)

	out, err := h.o.SyncAll(context.Background(), ReasonMutation, Options{})
	require.NoError(t, err)
	require.Equal(t, OutcomeThrottled, out)

	out, err = h.o.SyncAll(context.Background(), ReasonInterval, Options{})
	require.NoError(t, err)
	require.Equal(t, OutcomeThrottled, out)

	st := h.o.Status()
	require.True(t, st.ThrottleArmed)
	require.Equal(t, []Reason{ReasonMutation, ReasonInterval}, st.Queued)

	h.o.Wait()

	st = h.o.Status()
	require.Equal(t, 2, st.Runs, "both throttled reasons run once when the window expires")
	require.Equal(t, 1, st.Coalesced)
	require.False(t, st.ThrottleArmed)
}

func TestThrottleBypass(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	_, err := h.o.SyncAll(context.Background(), ReasonStartup, Options{})
	require.NoError(t, err)

	out, err := h.o.SyncAll(context.Background(), ReasonMutation, Options{BypassThrottle: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeRan, out)

	out, err = h.o.SyncAll(context.Background(), ReasonManual, Options{})
	require.NoError(t, err)
	require.Equal(t, OutcomeRan, out, "manual is never throttled")
}

func TestAuthChangeBypassesThrottle(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	_, err := h.o.SyncAll(context.Background(), ReasonStartup, Options{})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	out, err := h.o.HandleAuthStateChanged(context.Background(), &identity.User{UID: "u2"})
	require.NoError(t, err)
	require.Equal(t, OutcomeRan, out)

	require.Equal(t, 1, h.log.count("cookbooks pull u2"))
	require.Equal(t, 1, h.log.count("recipes republish"))
	require.Equal(t, "u2", h.o.Status().UID)
}

func TestAuthChangeQueuedWhileRunning(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	release, done := h.startBlockedRun(t, ReasonStartup)

	out, err := h.o.HandleAuthStateChanged(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, out)

	release()
	<-done
	h.o.Wait()

	require.Equal(t, 2, h.o.Status().Runs)
	require.Equal(t, 1, h.log.count("cookbooks republish"), "sign-out still republishes legacy snapshots")
	require.False(t, h.o.Status().LoggedIn)
}

func TestFollowUpRunKeepsQueuedAuthChange(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	release, done := h.startBlockedRun(t, ReasonStartup)

	_, err := h.o.SyncAll(context.Background(), ReasonMutation, Options{})
	require.NoError(t, err)
	_, err = h.o.HandleAuthStateChanged(context.Background(), &identity.User{UID: "u2"})
	require.NoError(t, err)
	require.Equal(t, []Reason{ReasonMutation, ReasonAuthChange}, h.o.Status().Queued)

	release()
	<-done
	h.o.Wait()

	st := h.o.Status()
	require.Equal(t, 2, st.Runs)
	require.Equal(t, 1, st.Coalesced)
	require.Equal(t, ReasonAuthChange, st.LastReason)
	require.Equal(t, 1, h.log.count("cookbooks pull u2"))
	require.Equal(t, 1, h.log.count("cookbooks republish"), "the merged run republishes for the new user")
}

func TestFollowUpRunKeepsQueuedManual(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	release, done := h.startBlockedRun(t, ReasonStartup)

	_, err := h.o.SyncAll(context.Background(), ReasonMutation, Options{})
	require.NoError(t, err)
	_, err = h.o.ForceSyncNow(context.Background(), ReasonManual)
	require.NoError(t, err)
	require.Equal(t, []Reason{ReasonMutation, ReasonManual}, h.o.Status().Queued)

	release()
	<-done
	h.o.Wait()

	st := h.o.Status()
	require.Equal(t, 2, st.Runs)
	require.Equal(t, ReasonManual, st.LastReason)
	require.Zero(t, h.log.count("cookbooks republish"))
}

func TestCoalescePriority(t *testing.T) {
	tests := []struct {
		queue []Reason
		want  Reason
	}{
		{[]Reason{ReasonMutation}, ReasonMutation},
		{[]Reason{ReasonInterval, ReasonMutation}, ReasonInterval},
		{[]Reason{ReasonMutation, ReasonManual}, ReasonManual},
		{[]Reason{ReasonMutation, ReasonManual, ReasonAuthChange}, ReasonAuthChange},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, coalesce(tt.queue), "queue %v", tt.queue)
	}
}

func TestRunStartCancelsThrottleTimer(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	_, err := h.o.SyncAll(context.Background(), ReasonStartup, Options{})
	require.NoError(t, err)

	out, _ := h.o.SyncAll(context.Background(), ReasonMutation, Options{})
	require.Equal(t, OutcomeThrottled, out)

	out, err = h.o.ForceSyncNow(context.Background(), ReasonManual)
	require.NoError(t, err)
	require.Equal(t, OutcomeRan, out)

	finished := make(chan struct{})
	go func() {
		h.o.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("the superseded timer kept the orchestrator busy")
	}

	st := h.o.Status()
	require.False(t, st.ThrottleArmed)
	require.Equal(t, 3, st.Runs, "the queued mutation runs as a follow-up")
}

func TestPanicClearsRunning(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{})
	h.cookbooks.panicOnPull = true

	_, err := h.o.SyncAll(context.Background(), ReasonManual, Options{})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "panicked"))

	st := h.o.Status()
	require.False(t, st.Running)
	require.True(t, st.LastSyncAt.IsZero(), "a panicked run is not a completed sync")

	h.cookbooks.panicOnPull = false
	out, err := h.o.SyncAll(context.Background(), ReasonManual, Options{})
	require.NoError(t, err)
	require.Equal(t, OutcomeRan, out)
}

func TestStepTimeout(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{StepTimeout: 20 * time.Millisecond})
	h.cookbooks.waitCtx = true

	_, err := h.o.SyncAll(context.Background(), ReasonManual, Options{})
	require.NoError(t, err)

	st := h.o.Status()
	require.False(t, st.Running)
	require.Equal(t, 1, st.StepFailures)
	require.Contains(t, st.LastError, "deadline exceeded")
	require.Equal(t, 1, h.log.count("preferences push u1"))
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	_, _ = h.o.SyncAll(context.Background(), ReasonStartup, Options{})
	out, _ := h.o.SyncAll(context.Background(), ReasonMutation, Options{})
	require.Equal(t, OutcomeThrottled, out)

	require.NoError(t, h.o.Shutdown(time.Second))

	_, err := h.o.SyncAll(context.Background(), ReasonManual, Options{})
	require.ErrorIs(t, err, ErrClosed)
	_, err = h.o.ForceSyncNow(context.Background(), ReasonManual)
	require.ErrorIs(t, err, ErrClosed)
	require.False(t, h.o.Status().ThrottleArmed)
}

func TestWatchFollowsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour})
	session, err := identity.OpenSession(ctx, store.NewMemoryStore())
	require.NoError(t, err)

	unsubscribe := h.o.Watch(session)
	defer unsubscribe()
	require.False(t, h.o.Status().LoggedIn, "watch adopts the signed-out session")

	require.NoError(t, session.SignIn(ctx, identity.User{UID: "u9"}))
	require.True(t, h.o.Status().LoggedIn)
	h.o.Wait()

	require.Equal(t, 1, h.log.count("cookbooks pull u9"))
	require.Equal(t, 1, h.log.count("preferences republish"))
}

func TestLastSyncPersists(t *testing.T) {
	st := store.NewMemoryStore()
	h := newHarness(t, OrchestratorConfig{MinInterval: time.Hour, State: st})
	_, err := h.o.SyncAll(context.Background(), ReasonStartup, Options{})
	require.NoError(t, err)

	restarted := NewOrchestrator(OrchestratorConfig{MinInterval: time.Hour, State: st}, nil)
	defer func() { _ = restarted.Shutdown(time.Second) }()
	require.NoError(t, restarted.LoadState(context.Background()))
	require.Equal(t, h.o.LastSyncAt().UnixMilli(), restarted.LastSyncAt().UnixMilli())

	out, err := restarted.SyncAll(context.Background(), ReasonInterval, Options{})
	require.NoError(t, err)
	require.Equal(t, OutcomeThrottled, out, "the window carries over a restart")
}

func TestParseReason(t *testing.T) {
	r, err := ParseReason(" Auth-Change ")
	require.NoError(t, err)
	require.Equal(t, ReasonAuthChange, r)

	_, err = ParseReason("sometimes")
	require.Error(t, err)
}
