package storage

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"trainer-chat/domain"
	"trainer-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
)

const DefaultResyncDelay = 50 * time.Millisecond

// Feed turns Badger's key-change subscription into a snapshot stream for one conversation.
type Feed struct {
	db          *badger.DB
	store       *MessageStore
	log         *slog.Logger
	resyncDelay time.Duration
}

func NewFeed(db *badger.DB, store *MessageStore, log *slog.Logger, resyncDelay time.Duration) *Feed {
	if resyncDelay <= 0 {
		resyncDelay = DefaultResyncDelay
	}
	return &Feed{db: db, store: store, log: log, resyncDelay: resyncDelay}
}

// Watch enforces the read rule, emits the current log, then emits the full log
// again after every committed change under the conversation's message prefix.
// Identical consecutive snapshots are emitted once.
// It returns nil when ctx is done.
func (f *Feed) Watch(ctx context.Context, viewerID string, key domain.ConversationKey, emit func([]domain.Message)) error {
	if err := f.store.CanRead(ctx, viewerID, key); err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		last []domain.Message
		sent bool
	)
	// Reading under mu keeps snapshots in commit order across the resync and the subscriber
	publish := func() error {
		mu.Lock()
		defer mu.Unlock()
		messages, err := f.store.GetMessages(ctx, key)
		if err != nil {
			return err
		}
		if sent && sameSnapshot(last, messages) {
			return nil
		}
		last, sent = messages, true
		emit(messages)
		return nil
	}

	if err := publish(); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe registers asynchronously; a write landing between the first
	// snapshot and the registration is caught by one delayed resync.
	go func() {
		select {
		case <-watchCtx.Done():
		case <-time.After(f.resyncDelay):
			if err := publish(); err != nil {
				f.log.Debug("Feed resync failed", "conversation", key, "error", err)
			}
		}
	}()

	err := f.db.Subscribe(watchCtx, func(_ *badger.KVList) error {
		return publish()
	}, []pb.Match{{Prefix: []byte(messagePrefix(key))}})

	if ctx.Err() != nil {
		return nil
	}
	return mapStoreError(err)
}

var (
	errReadable      = stderrors.New("conversation readable")
	errNeverReadable = stderrors.New("viewer is not a participant")
)

// WaitReadable blocks until viewerID may read key, watching the conversation
// record instead of polling. It returns nil once access is granted or ctx is
// done. Participants never change, so a non participant of an existing
// conversation waits for ctx.
func (f *Feed) WaitReadable(ctx context.Context, viewerID string, key domain.ConversationKey) error {
	access := func() error {
		conv, err := f.store.GetConversation(ctx, key)
		switch {
		case err != nil:
			return err
		case conv == nil:
			return nil
		case conv.HasParticipant(viewerID):
			return errReadable
		default:
			return errNeverReadable
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once    sync.Once
		outcome error
	)
	finish := func(err error) {
		once.Do(func() {
			outcome = err
			cancel()
		})
	}
	check := func() error {
		err := access()
		if err != nil {
			finish(err)
		}
		return err
	}

	if err := check(); err == nil {
		// Same registration gap as Watch
		go func() {
			select {
			case <-watchCtx.Done():
			case <-time.After(f.resyncDelay):
				_ = check()
			}
		}()

		err = f.db.Subscribe(watchCtx, func(_ *badger.KVList) error {
			return check()
		}, []pb.Match{{Prefix: conversationKey(key)}})
		once.Do(func() { outcome = err })
	}

	switch {
	case stderrors.Is(outcome, errReadable):
		return nil
	case stderrors.Is(outcome, errNeverReadable):
		f.log.Debug("Viewer can never read conversation, waiting for cancellation", "viewer", viewerID, "conversation", key)
		<-ctx.Done()
		return nil
	case ctx.Err() != nil:
		return nil
	case outcome == nil:
		return errors.StoreUnavailable(stderrors.New("conversation subscription ended"))
	default:
		return mapStoreError(outcome)
	}
}

func sameSnapshot(a, b []domain.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
