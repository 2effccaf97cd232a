package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"trainer-chat/contract"
	"trainer-chat/domain"
	"trainer-chat/errors"
	"trainer-chat/observability"
)

const DefaultResubscribeDelay = time.Second

// SyncChannel turns a contract.Feed into long-lived subscriptions with
// snapshot callbacks. Every subscription owns one goroutine.
type SyncChannel struct {
	feed             contract.Feed
	log              *slog.Logger
	resubscribeDelay time.Duration
}

func NewSyncChannel(feed contract.Feed, log *slog.Logger, resubscribeDelay time.Duration) *SyncChannel {
	if resubscribeDelay <= 0 {
		resubscribeDelay = DefaultResubscribeDelay
	}
	return &SyncChannel{feed: feed, log: log, resubscribeDelay: resubscribeDelay}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	key    domain.ConversationKey
	cancel context.CancelFunc
	once   sync.Once
	mu     sync.Mutex // held while a callback runs
	alive  atomic.Bool
	done   chan struct{}
}

// Cancel stops delivery. It is idempotent and, once it returns, no callback
// runs anymore: a callback in flight is waited for, so Cancel must not be
// called from inside onUpdate or onError.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.alive.Store(false)
		s.cancel()
		// Wait for a callback in flight
		s.mu.Lock()
		defer s.mu.Unlock()
	})
}

// Done is closed once the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Load() {
		return
	}
	fn()
}

// Subscribe delivers the full ordered log of key to onUpdate immediately and
// after every change, until Cancel is called or ctx ends.
//
// A PermissionDenied from the feed is rendered as an empty log and never
// reaches onError. The subscription then waits on the feed for access, so a
// conversation created after the subscription starts is delivered as soon as
// it exists.
// Other failures are reported to onError and the feed is watched again after
// the resubscribe delay.
func (c *SyncChannel) Subscribe(ctx context.Context, viewerID string, key domain.ConversationKey,
	onUpdate func([]domain.Message), onError func(errors.Kind)) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{key: key, cancel: cancel, done: make(chan struct{})}
	sub.alive.Store(true)
	observability.ActiveSubscriptions.Inc()

	go c.run(subCtx, sub, viewerID, onUpdate, onError)
	return sub
}

func (c *SyncChannel) run(ctx context.Context, sub *Subscription, viewerID string,
	onUpdate func([]domain.Message), onError func(errors.Kind)) {
	defer close(sub.done)
	defer observability.ActiveSubscriptions.Dec()

	// The feed may emit from its own goroutines
	var denied atomic.Bool
	for {
		err := c.feed.Watch(ctx, viewerID, sub.key, func(messages []domain.Message) {
			denied.Store(false)
			sub.deliver(func() { onUpdate(messages) })
		})
		if ctx.Err() != nil {
			return
		}

		switch errors.KindOf(err) {
		case errors.KindNone:
			c.log.Debug("Feed ended, watching again", "conversation", sub.key)
		case errors.KindPermissionDenied:
			if denied.CompareAndSwap(false, true) {
				sub.deliver(func() { onUpdate([]domain.Message{}) })
			}
			err = c.feed.WaitReadable(ctx, viewerID, sub.key)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				continue
			}
			c.fail(sub, viewerID, err, onError)
		default:
			c.fail(sub, viewerID, err, onError)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.resubscribeDelay):
		}
	}
}

func (c *SyncChannel) fail(sub *Subscription, viewerID string, err error, onError func(errors.Kind)) {
	kind := errors.KindOf(err)
	if errors.IsTransient(err) {
		c.log.Warn("Feed failed, watching again", "conversation", sub.key, "viewer", viewerID, "kind", kind, "error", err)
	} else {
		c.log.Error("Feed failed", "conversation", sub.key, "viewer", viewerID, "kind", kind, "error", err)
	}
	sub.deliver(func() { onError(kind) })
}
