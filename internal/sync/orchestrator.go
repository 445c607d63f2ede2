package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"cookbooksync/backend/store"
	"cookbooksync/internal/identity"
	"cookbooksync/internal/utils"
)

// ErrClosed is returned by calls made after Shutdown
var ErrClosed = errors.New("sync orchestrator is shut down")

// LastSyncKey persists the time of the last completed run
const LastSyncKey = "sync_last_run_at"

const logPrefix = "[Sync] "

// Migrator is the one-shot legacy migration run before every sync
type Migrator interface {
	Run(ctx context.Context) ([]LegacyKeyReport, error)
}

// Options tunes a single SyncAll call
type Options struct {
	BypassThrottle bool
}

// OrchestratorConfig configures an Orchestrator
type OrchestratorConfig struct {
	// MinInterval is the throttle window between runs
	MinInterval time.Duration
	// StepTimeout bounds every pull and push step; zero means no bound
	StepTimeout time.Duration
	// State, when set, persists the last sync time across restarts
	State store.Store
}

// Status is a point-in-time view of the orchestrator
type Status struct {
	Running       bool      `json:"running" yaml:"running"`
	Queued        []Reason  `json:"queued" yaml:"queued"`
	ThrottleArmed bool      `json:"throttleArmed" yaml:"throttleArmed"`
	LastSyncAt    time.Time `json:"lastSyncAt" yaml:"lastSyncAt"`
	LoggedIn      bool      `json:"loggedIn" yaml:"loggedIn"`
	UID           string    `json:"uid,omitempty" yaml:"uid,omitempty"`
	LastReason    Reason    `json:"lastReason,omitempty" yaml:"lastReason,omitempty"`
	Runs          int       `json:"runs" yaml:"runs"`
	Coalesced     int       `json:"coalesced" yaml:"coalesced"`
	Dropped       int       `json:"dropped" yaml:"dropped"`
	StepFailures  int       `json:"stepFailures" yaml:"stepFailures"`
	LastError     string    `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// Orchestrator runs the migration and every entity module as one
// serialized unit. At most one run is in flight; requests arriving during a
// run are queued and coalesced into a single follow-up run.
type Orchestrator struct {
	modules   []EntitySyncer
	migration Migrator
	cfg       OrchestratorConfig
	now       func() time.Time

	mu         sync.Mutex
	running    bool
	closed     bool
	queue      []Reason
	timer      *time.Timer
	timerGen   int
	lastSyncAt time.Time
	user       *identity.User
	stats      Status
	lastErr    error

	// Runs, follow-ups and the throttle timer
	wg sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewOrchestrator creates an orchestrator. Modules run in the given order.
func NewOrchestrator(cfg OrchestratorConfig, migration Migrator, modules ...EntitySyncer) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		modules:   modules,
		migration: migration,
		cfg:       cfg,
		now:       time.Now,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// LoadState restores the last sync time persisted by a previous process
func (o *Orchestrator) LoadState(ctx context.Context) error {
	if o.cfg.State == nil {
		return nil
	}
	raw, ok, err := o.cfg.State.Get(ctx, LastSyncKey)
	if err != nil || !ok {
		return err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		utils.Warnf(logPrefix+"Ignoring unreadable %s: %v", LastSyncKey, err)
		return nil
	}
	o.mu.Lock()
	o.lastSyncAt = time.UnixMilli(ms)
	o.mu.Unlock()
	return nil
}

// SyncAll requests a run for reason. While a run is in flight a manual
// request is dropped and any other reason is queued. Unless bypassed, a
// reason other than manual or auth-change arriving within MinInterval of the
// last run is queued behind a timer firing when the window expires.
//
// When the call runs, it returns after the run; the error is non-nil only
// for a run that panicked. Entity step failures are logged, not returned.
func (o *Orchestrator) SyncAll(ctx context.Context, reason Reason, opts Options) (Outcome, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return OutcomeDropped, ErrClosed
	}

	if o.running {
		defer o.mu.Unlock()
		if reason == ReasonManual {
			o.stats.Dropped++
			utils.Debugf(logPrefix+"Dropping %s request: run in flight", reason)
			return OutcomeDropped, nil
		}
		o.queue = append(o.queue, reason)
		utils.Debugf(logPrefix+"Queued %s (%d pending)", reason, len(o.queue))
		return OutcomeQueued, nil
	}

	if !opts.BypassThrottle && !reason.skipsThrottle() && !o.lastSyncAt.IsZero() {
		if elapsed := o.now().Sub(o.lastSyncAt); elapsed < o.cfg.MinInterval {
			defer o.mu.Unlock()
			o.queue = append(o.queue, reason)
			o.armTimerLocked(o.cfg.MinInterval - elapsed)
			utils.Debugf(logPrefix+"Throttled %s, retrying in %v", reason, o.cfg.MinInterval-elapsed)
			return OutcomeThrottled, nil
		}
	}

	user := o.claimLocked()
	o.mu.Unlock()

	return OutcomeRan, o.execute(ctx, reason, user)
}

// ForceSyncNow runs immediately, ignoring the throttle. During a run it
// leaves a single manual marker in the queue instead.
func (o *Orchestrator) ForceSyncNow(ctx context.Context, reason Reason) (Outcome, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return OutcomeDropped, ErrClosed
	}
	if o.running {
		defer o.mu.Unlock()
		if !slices.Contains(o.queue, ReasonManual) {
			o.queue = append(o.queue, ReasonManual)
		}
		return OutcomeQueued, nil
	}
	user := o.claimLocked()
	o.mu.Unlock()

	return OutcomeRan, o.execute(ctx, reason, user)
}

// HandleAuthStateChanged records the new user and always syncs: identity
// changes are never throttled or dropped.
func (o *Orchestrator) HandleAuthStateChanged(ctx context.Context, user *identity.User) (Outcome, error) {
	o.SetUser(user)
	return o.SyncAll(ctx, ReasonAuthChange, Options{BypassThrottle: true})
}

// SetUser records the signed-in user without triggering a run
func (o *Orchestrator) SetUser(user *identity.User) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if user == nil || user.UID == "" {
		o.user = nil
		return
	}
	u := *user
	o.user = &u
}

// Watch follows provider: the current user is adopted now and every later
// change triggers an auth-change run in the background. Call the returned
// func to stop watching.
func (o *Orchestrator) Watch(provider identity.Provider) func() {
	o.SetUser(provider.CurrentUser())
	return provider.Subscribe(func(u *identity.User) {
		o.SetUser(u)
		o.goTracked(func() {
			if _, err := o.SyncAll(o.baseCtx, ReasonAuthChange, Options{BypassThrottle: true}); err != nil && !errors.Is(err, ErrClosed) {
				utils.Errorf(logPrefix+"Auth-change run failed: %v", err)
			}
		})
	})
}

// claimLocked marks a run as started. Any armed throttle timer is cancelled
// since the run supersedes it.
func (o *Orchestrator) claimLocked() *identity.User {
	o.running = true
	o.stopTimerLocked()
	o.wg.Add(1)
	if o.user == nil {
		return nil
	}
	u := *o.user
	return &u
}

// execute runs one claimed run. The running flag is always cleared, and a
// panic is returned as an error.
func (o *Orchestrator) execute(ctx context.Context, reason Reason, user *identity.User) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(o.baseCtx, cancel)

	defer func() {
		stop()
		cancel()
		if r := recover(); r != nil {
			err = fmt.Errorf("sync run (%s) panicked: %v", reason, r)
			utils.Errorf(logPrefix+"%v", err)
		}
		o.finish(err)
	}()

	o.run(ctx, reason, user)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, reason Reason, user *identity.User) {
	start := o.now()
	o.mu.Lock()
	o.stats.LastReason = reason
	o.mu.Unlock()
	utils.Infof(logPrefix+"Sync started (%s)", reason)

	if o.migration != nil {
		if _, err := o.migration.Run(ctx); err != nil {
			utils.Warnf(logPrefix+"Migration failed, retrying next run: %v", err)
			o.recordFailure(err)
		}
	}

	if user == nil {
		utils.Debugf(logPrefix + "No signed-in user, skipping entity sync")
	} else {
		for _, m := range o.modules {
			o.step(ctx, m.Name()+" pull", func(ctx context.Context) error {
				_, err := m.Pull(ctx, user.UID)
				return err
			})
			o.step(ctx, m.Name()+" push", func(ctx context.Context) error {
				_, err := m.Push(ctx, user.UID)
				return err
			})
		}
	}

	if reason == ReasonAuthChange {
		for _, m := range o.modules {
			if err := m.RepublishLegacy(ctx); err != nil {
				utils.Warnf(logPrefix+"Republishing %s failed: %v", m.Name(), err)
				o.recordFailure(err)
			}
		}
	}

	o.recordSync(ctx)
	utils.Infof(logPrefix+"Sync finished (%s) in %v", reason, o.now().Sub(start))
}

// step runs fn under the step timeout; a failure is logged and swallowed
func (o *Orchestrator) step(ctx context.Context, name string, fn func(context.Context) error) {
	if o.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.StepTimeout)
		defer cancel()
	}
	err := utils.LogOperationf(logPrefix+"%s", func() error { return fn(ctx) }, name)
	if err != nil {
		utils.Warnf(logPrefix+"%s failed: %v", name, err)
		o.recordFailure(fmt.Errorf("%s: %w", name, err))
	}
}

func (o *Orchestrator) recordFailure(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.StepFailures++
	o.stats.LastError = err.Error()
	o.lastErr = err
}

func (o *Orchestrator) recordSync(ctx context.Context) {
	now := o.now()
	o.mu.Lock()
	o.lastSyncAt = now
	o.mu.Unlock()

	if o.cfg.State != nil {
		if err := o.cfg.State.Set(ctx, LastSyncKey, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
			utils.Warnf(logPrefix+"Failed to persist last sync time: %v", err)
		}
	}
}

// finish returns to idle and launches one follow-up run for everything
// queued meanwhile.
func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.wg.Done()

	o.running = false
	o.stats.Runs++
	if err != nil {
		o.stats.LastError = err.Error()
		o.lastErr = err
	}
	o.launchQueuedLocked()
}

// launchQueuedLocked coalesces the queue into one run on a tracked goroutine
func (o *Orchestrator) launchQueuedLocked() {
	if o.closed || o.running || len(o.queue) == 0 {
		return
	}
	next := coalesce(o.queue)
	if n := len(o.queue) - 1; n > 0 {
		o.stats.Coalesced += n
		utils.Debugf(logPrefix+"Coalesced %d queued requests into one %s run", n, next)
	}
	o.queue = nil

	user := o.claimLocked()
	go func() {
		if err := o.execute(o.baseCtx, next, user); err != nil {
			utils.Errorf(logPrefix+"Follow-up run failed: %v", err)
		}
	}()
}

// coalesce picks the reason a merged run executes as. An auth change wins
// so its republish is never lost, then a manual request, then the oldest.
func coalesce(queue []Reason) Reason {
	for _, r := range []Reason{ReasonAuthChange, ReasonManual} {
		if slices.Contains(queue, r) {
			return r
		}
	}
	return queue[0]
}

// armTimerLocked schedules the queue to run after d. At most one timer is armed.
func (o *Orchestrator) armTimerLocked(d time.Duration) {
	if o.timer != nil {
		return
	}
	o.timerGen++
	gen := o.timerGen
	o.wg.Add(1)
	o.timer = time.AfterFunc(d, func() { o.onTimer(gen) })
}

func (o *Orchestrator) onTimer(gen int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.wg.Done()

	// A run started after this timer fired already took over the queue
	if gen != o.timerGen || o.timer == nil {
		return
	}
	o.timer = nil
	o.launchQueuedLocked()
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer == nil {
		return
	}
	if o.timer.Stop() {
		o.wg.Done()
	}
	o.timer = nil
	o.timerGen++
}

// goTracked runs fn on a goroutine Shutdown waits for
func (o *Orchestrator) goTracked(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// Status returns a snapshot of the orchestrator state
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.stats
	s.Running = o.running
	s.Queued = slices.Clone(o.queue)
	if s.Queued == nil {
		s.Queued = []Reason{}
	}
	s.ThrottleArmed = o.timer != nil
	s.LastSyncAt = o.lastSyncAt
	s.LoggedIn = o.user != nil
	if o.user != nil {
		s.UID = o.user.UID
	}
	return s
}

// LastErr returns the most recent step or run failure, nil if none
func (o *Orchestrator) LastErr() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// LastSyncAt returns the time of the last completed run, zero if none
func (o *Orchestrator) LastSyncAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSyncAt
}

// Wait blocks until no run, follow-up or throttle timer is pending.
// It must not be called from inside a run.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown refuses new runs, cancels the throttle timer and waits up to
// timeout for in-flight runs before cancelling them.
func (o *Orchestrator) Shutdown(timeout time.Duration) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.stopTimerLocked()
	o.queue = nil
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	defer o.cancel()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for sync runs to finish")
	}
}
