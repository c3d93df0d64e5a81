// Package extagent is the long-lived worker behind the browser extension.
// It holds the session credential, keeps a local snapshot of the user's
// timer state in sync through the event stream, and survives restarts by
// re-fetching authoritative state on every (re)connect.
package extagent

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/chronohq/chrono/chronosdk"
)

// State is the worker's lifecycle phase. It is fully derived: holding no
// credential means Unauthenticated, and otherwise the presence of an
// active timer decides Idle versus Running.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateIdle            State = "idle"
	StateRunning         State = "running"
)

// Snapshot is the worker's current view of the user's timer state.
type Snapshot struct {
	State     State
	Timer     *chronosdk.ActiveTimer
	Shortcuts []chronosdk.Shortcut
}

type Options struct {
	Client *chronosdk.Client
	Logger slog.Logger
}

// Worker mirrors server state for one user. All exported methods are safe
// for concurrent use.
type Worker struct {
	client *chronosdk.Client
	logger slog.Logger

	mu        sync.Mutex
	snapshot  Snapshot
	subs      map[chan Snapshot]struct{}
	watchStop context.CancelFunc
	watchDone chan struct{}
	closed    bool
}

func New(opts Options) *Worker {
	return &Worker{
		client:   opts.Client,
		logger:   opts.Logger,
		snapshot: Snapshot{State: StateUnauthenticated},
		subs:     map[chan Snapshot]struct{}{},
	}
}

// SetCredential verifies token against the server and, on success, brings
// the snapshot up to date and starts the watch loop. An unauthorized token
// leaves the worker signed out.
func (w *Worker) SetCredential(ctx context.Context, token string) error {
	w.stopWatch()

	w.client.SetSessionToken(token)
	if err := w.resync(ctx); err != nil {
		w.client.SetSessionToken("")
		w.setSnapshot(Snapshot{State: StateUnauthenticated})
		if chronosdk.IsUnauthorized(err) {
			return xerrors.Errorf("credential rejected: %w", err)
		}
		return err
	}

	w.startWatch()
	return nil
}

// ClearCredential signs the worker out locally.
func (w *Worker) ClearCredential() {
	w.stopWatch()
	w.client.SetSessionToken("")
	w.setSnapshot(Snapshot{State: StateUnauthenticated})
}

// Snapshot returns the current view.
func (w *Worker) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot
}

// Updates subscribes to snapshot changes. Slow subscribers miss
// intermediate snapshots but always receive the latest eventually. The
// returned cancel removes the subscription.
func (w *Worker) Updates() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	ch <- w.snapshot
	w.mu.Unlock()
	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, ch)
	}
}

// Close stops the watch loop. The worker is unusable afterwards.
func (w *Worker) Close() error {
	w.stopWatch()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *Worker) startWatch() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		cancel()
		return
	}
	w.watchStop = cancel
	w.watchDone = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		w.watchLoop(ctx)
	}()
}

func (w *Worker) stopWatch() {
	w.mu.Lock()
	cancel, done := w.watchStop, w.watchDone
	w.watchStop, w.watchDone = nil, nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// watchLoop holds the room connection open, reconnecting with exponential
// backoff. Events only signal that something changed; the authoritative
// state is always re-fetched on connect, so missed events cannot cause
// drift.
func (w *Worker) watchLoop(ctx context.Context) {
	retrier := backoff.NewExponentialBackOff()
	retrier.MaxElapsedTime = 0
	retrier.MaxInterval = 30 * time.Second

	for {
		events, closer, err := w.client.WatchTimerEvents(ctx, "me", w.logger.Named("watch"))
		if err != nil {
			if w.handleStreamError(ctx, err) {
				return
			}
			continue
		}
		if err := w.resync(ctx); err != nil {
			_ = closer.Close()
			if w.handleStreamError(ctx, err) {
				return
			}
			continue
		}
		retrier.Reset()

		err = w.consume(ctx, events)
		_ = closer.Close()
		if err != nil && w.handleStreamError(ctx, err) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		w.logger.Info(ctx, "event stream dropped, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(retrier.NextBackOff()):
		}
	}
}

// handleStreamError reports whether the loop should stop. Expired
// credentials end the loop and sign the worker out; transient errors do
// not.
func (w *Worker) handleStreamError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if chronosdk.IsUnauthorized(err) {
		w.logger.Warn(ctx, "session expired, signing out", slog.Error(err))
		w.client.SetSessionToken("")
		w.setSnapshot(Snapshot{State: StateUnauthenticated})
		// stopWatch is not called from inside the loop; just drop the
		// handle so a later SetCredential starts fresh.
		w.mu.Lock()
		w.watchStop, w.watchDone = nil, nil
		w.mu.Unlock()
		return true
	}
	w.logger.Warn(ctx, "event stream error", slog.Error(err))
	return false
}

func (w *Worker) consume(ctx context.Context, events <-chan chronosdk.TimerEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := w.apply(ctx, event); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, event chronosdk.TimerEvent) error {
	switch event.Kind {
	case chronosdk.TimerEventTimerStarted, chronosdk.TimerEventTimerUpdated:
		w.update(func(s *Snapshot) {
			s.State = StateRunning
			s.Timer = event.Timer
		})
	case chronosdk.TimerEventTimerStopped:
		w.update(func(s *Snapshot) {
			s.State = StateIdle
			s.Timer = nil
		})
	case chronosdk.TimerEventShortcutsUpdated:
		shortcuts, err := w.client.Shortcuts(ctx, "me")
		if err != nil {
			return err
		}
		w.update(func(s *Snapshot) {
			s.Shortcuts = shortcuts
		})
	default:
		// Entry events carry data the popup does not render; ignore.
	}
	return nil
}

// resync replaces the snapshot with server state.
func (w *Worker) resync(ctx context.Context) error {
	timer, err := w.client.ActiveTimer(ctx, "me")
	if err != nil {
		return err
	}
	shortcuts, err := w.client.Shortcuts(ctx, "me")
	if err != nil {
		return err
	}
	state := StateIdle
	if timer != nil {
		state = StateRunning
	}
	w.setSnapshot(Snapshot{State: state, Timer: timer, Shortcuts: shortcuts})
	return nil
}

func (w *Worker) setSnapshot(s Snapshot) {
	w.update(func(snap *Snapshot) { *snap = s })
}

func (w *Worker) update(fn func(*Snapshot)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.snapshot)
	for ch := range w.subs {
		select {
		case ch <- w.snapshot:
		default:
			// Drain the stale snapshot and replace it with the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- w.snapshot:
			default:
			}
		}
	}
}
