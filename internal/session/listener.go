package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/8by8-org/challenge-api/internal/dto"
)

// Realtime delivers badge insertion events for one user. Handlers for a
// single subscription are invoked sequentially. A transport that may have
// missed events, such as after a reconnect, delivers a resync event.
type Realtime interface {
	Subscribe(ctx context.Context, userID string, handler func(dto.BadgeEvent)) (Subscription, error)
}

type Subscription interface {
	Close() error
}

// badgeListener keeps exactly one subscription open for the signed-in
// user and refreshes the store once per received event. A single caller
// at a time reconciles the subscription with the store's current user;
// callers arriving meanwhile mark the listener dirty and wait for that
// run, which loops until nothing changed underneath it.
type badgeListener struct {
	rt      Realtime
	current func() string
	refresh func(ctx context.Context, uid string) error
	logger  *slog.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	ctx     context.Context
	mounted bool
	running bool
	dirty   bool
	err     error
	// userID is non-empty only while sub is open for that user.
	userID string
	sub    Subscription
	cancel context.CancelFunc
}

func newBadgeListener(rt Realtime, current func() string, refresh func(context.Context, string) error, logger *slog.Logger) *badgeListener {
	l := &badgeListener{rt: rt, current: current, refresh: refresh, logger: logger}
	l.idle = sync.NewCond(&l.mu)
	return l
}

// mount starts following the signed-in user. Calling it again retries a
// subscription that failed to open.
func (l *badgeListener) mount(ctx context.Context) error {
	l.mu.Lock()
	if !l.mounted {
		l.ctx = context.WithoutCancel(ctx)
		l.mounted = true
	}
	l.mu.Unlock()
	return l.sync()
}

func (l *badgeListener) unmount() {
	l.mu.Lock()
	l.mounted = false
	l.mu.Unlock()
	_ = l.sync()
}

// sync brings the subscription in line with the store's current user and
// returns once it is. It must not be called from an event handler.
func (l *badgeListener) sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		l.dirty = true
		for l.running {
			l.idle.Wait()
		}
		return l.err
	}

	l.running = true
	var err error
	for {
		l.dirty = false
		want := ""
		if l.mounted {
			want = l.current()
		}
		if want == l.userID {
			err = nil
			break
		}

		oldSub, oldCancel := l.sub, l.cancel
		l.sub, l.cancel, l.userID = nil, nil, ""
		var (
			subCtx context.Context
			cancel context.CancelFunc
		)
		if want != "" {
			subCtx, cancel = context.WithCancel(l.ctx)
		}
		l.mu.Unlock()

		l.release(oldSub, oldCancel)
		var sub Subscription
		err = nil
		if want != "" {
			sub, err = l.rt.Subscribe(subCtx, want, l.handler(subCtx, want))
		}

		l.mu.Lock()
		if err != nil {
			cancel()
			l.logger.Error("badge subscription failed", "user_id", want, "error", err)
			if l.dirty {
				continue
			}
			break
		}
		if want != "" {
			l.sub, l.cancel, l.userID = sub, cancel, want
			l.logger.Debug("badge subscription opened", "user_id", want)
		}
	}
	l.running = false
	l.err = err
	l.idle.Broadcast()
	return err
}

func (l *badgeListener) handler(ctx context.Context, id string) func(dto.BadgeEvent) {
	return func(ev dto.BadgeEvent) {
		if !ev.IsBadgeInsert() && !ev.IsResync() {
			return
		}
		err := l.refresh(ctx, id)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
			l.logger.Warn("refresh after badge event failed", "user_id", id, "error", err)
		}
	}
}

func (l *badgeListener) release(sub Subscription, cancel context.CancelFunc) {
	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			l.logger.Warn("close badge subscription", "error", err)
		}
	}
}
