package runtime

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"trainer-chat/domain"
	"trainer-chat/errors"
	"trainer-chat/mocks"
	"trainer-chat/observability"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const key = domain.ConversationKey("T1_U1")

type recorder struct {
	mu      sync.Mutex
	updates [][]domain.Message
	errors  []errors.Kind
	updated chan struct{}
	failed  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{updated: make(chan struct{}, 100), failed: make(chan struct{}, 100)}
}

func (r *recorder) onUpdate(messages []domain.Message) {
	r.mu.Lock()
	r.updates = append(r.updates, messages)
	r.mu.Unlock()
	select {
	case r.updated <- struct{}{}:
	default:
	}
}

func (r *recorder) onError(kind errors.Kind) {
	r.mu.Lock()
	r.errors = append(r.errors, kind)
	r.mu.Unlock()
	select {
	case r.failed <- struct{}{}:
	default:
	}
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates), len(r.errors)
}

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		require.FailNow(t, "callback not delivered")
	}
}

func history() []domain.Message {
	return []domain.Message{
		{ID: "01A", ConversationKey: key, SenderID: "U1", ReceiverID: "T1", Text: "Hi"},
		{ID: "01B", ConversationKey: key, SenderID: "T1", ReceiverID: "U1", Text: "Hello"},
	}
}

func TestSyncChannel_Delivers_Snapshots(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockFeed(ctrl)
	rec := newRecorder()

	feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ domain.ConversationKey, emit func([]domain.Message)) error {
			emit(history()[:1])
			emit(history())
			<-ctx.Done()
			return nil
		})

	channel := NewSyncChannel(feed, logs.GetLoggerFromLevel(slog.LevelError), 10*time.Millisecond)
	sub := channel.Subscribe(context.Background(), "U1", key, rec.onUpdate, rec.onError)
	wait(t, rec.updated)
	wait(t, rec.updated)

	sub.Cancel()
	<-sub.Done()

	req.Len(rec.updates, 2)
	req.Len(rec.updates[0], 1)
	req.Equal(history(), rec.updates[1])
	req.Empty(rec.errors)
}

func TestSyncChannel_PermissionDenied_Renders_Empty(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockFeed(ctrl)
	rec := newRecorder()

	// Watched once, then the subscription parks on the feed instead of polling
	feed.EXPECT().Watch(gomock.Any(), "U9", key, gomock.Any()).
		Return(errors.PermissionDenied("U9 is not a participant")).
		Times(1)
	feed.EXPECT().WaitReadable(gomock.Any(), "U9", key).
		DoAndReturn(func(ctx context.Context, _ string, _ domain.ConversationKey) error {
			<-ctx.Done()
			return nil
		})

	channel := NewSyncChannel(feed, logs.GetLoggerFromLevel(slog.LevelError), 5*time.Millisecond)
	sub := channel.Subscribe(context.Background(), "U9", key, rec.onUpdate, rec.onError)
	wait(t, rec.updated)

	// Several resubscribe delays go by
	time.Sleep(50 * time.Millisecond)
	sub.Cancel()
	<-sub.Done()

	updates, failures := rec.counts()
	req.Equal(1, updates)
	req.Zero(failures)
	req.NotNil(rec.updates[0])
	req.Empty(rec.updates[0])
}

func TestSyncChannel_Conversation_Created_After_Subscribe(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockFeed(ctrl)
	rec := newRecorder()

	gomock.InOrder(
		feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
			Return(errors.PermissionDenied("conversation does not exist")),
		feed.EXPECT().WaitReadable(gomock.Any(), "U1", key).Return(nil),
		feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ string, _ domain.ConversationKey, emit func([]domain.Message)) error {
				emit(history())
				<-ctx.Done()
				return nil
			}),
	)

	// A delay the test would time out on, access is pushed
	channel := NewSyncChannel(feed, logs.GetLoggerFromLevel(slog.LevelError), time.Minute)
	sub := channel.Subscribe(context.Background(), "U1", key, rec.onUpdate, rec.onError)
	wait(t, rec.updated)
	wait(t, rec.updated)
	sub.Cancel()
	<-sub.Done()

	req.Empty(rec.updates[0])
	req.Equal(history(), rec.updates[1])
	req.Empty(rec.errors)
}

func TestSyncChannel_Forwards_Transient_Errors_And_Recovers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockFeed(ctrl)
	rec := newRecorder()

	gomock.InOrder(
		feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
			Return(errors.StoreUnavailable(context.DeadlineExceeded)),
		feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
			Return(errors.ErrNetwork),
		feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ string, _ domain.ConversationKey, emit func([]domain.Message)) error {
				emit(history())
				<-ctx.Done()
				return nil
			}),
	)

	channel := NewSyncChannel(feed, logs.GetLoggerFromLevel(slog.LevelError), 5*time.Millisecond)
	sub := channel.Subscribe(context.Background(), "U1", key, rec.onUpdate, rec.onError)
	wait(t, rec.updated)
	sub.Cancel()
	<-sub.Done()

	req.Equal([]errors.Kind{errors.KindStoreUnavailable, errors.KindNetwork}, rec.errors)
	req.Equal([][]domain.Message{history()}, rec.updates)
}

func TestSyncChannel_Cancel_Is_Idempotent_And_Final(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockFeed(ctrl)
	rec := newRecorder()

	// A feed that keeps emitting, even racing with cancellation
	feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ domain.ConversationKey, emit func([]domain.Message)) error {
			for ctx.Err() == nil {
				emit(history())
				time.Sleep(time.Millisecond)
			}
			emit(history())
			return nil
		})

	channel := NewSyncChannel(feed, logs.GetLoggerFromLevel(slog.LevelError), 5*time.Millisecond)
	sub := channel.Subscribe(context.Background(), "U1", key, rec.onUpdate, rec.onError)
	wait(t, rec.updated)

	sub.Cancel()
	updatesAtCancel, _ := rec.counts()
	req.NotPanics(sub.Cancel)
	<-sub.Done()
	time.Sleep(20 * time.Millisecond)

	updates, failures := rec.counts()
	req.Equal(updatesAtCancel, updates)
	req.Zero(failures)
}

func TestSyncChannel_Failed_Access_Wait_Is_Reported(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockFeed(ctrl)
	rec := newRecorder()

	gomock.InOrder(
		feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
			Return(errors.PermissionDenied("conversation does not exist")),
		feed.EXPECT().WaitReadable(gomock.Any(), "U1", key).
			Return(errors.StoreUnavailable(context.DeadlineExceeded)),
		feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ string, _ domain.ConversationKey, emit func([]domain.Message)) error {
				emit(history())
				<-ctx.Done()
				return nil
			}),
	)

	channel := NewSyncChannel(feed, logs.GetLoggerFromLevel(slog.LevelError), 5*time.Millisecond)
	sub := channel.Subscribe(context.Background(), "U1", key, rec.onUpdate, rec.onError)
	wait(t, rec.failed)
	wait(t, rec.updated)
	wait(t, rec.updated)
	sub.Cancel()
	<-sub.Done()

	req.Equal([]errors.Kind{errors.KindStoreUnavailable}, rec.errors)
	req.Equal([][]domain.Message{{}, history()}, rec.updates)
}

func TestSyncChannel_Gauge_Released_When_Parent_Context_Ends(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockFeed(ctrl)
	rec := newRecorder()

	feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ domain.ConversationKey, emit func([]domain.Message)) error {
			emit(history())
			<-ctx.Done()
			return nil
		})

	before := testutil.ToFloat64(observability.ActiveSubscriptions)
	ctx, cancel := context.WithCancel(context.Background())
	channel := NewSyncChannel(feed, logs.GetLoggerFromLevel(slog.LevelError), 5*time.Millisecond)
	sub := channel.Subscribe(ctx, "U1", key, rec.onUpdate, rec.onError)
	wait(t, rec.updated)
	req.Equal(before+1, testutil.ToFloat64(observability.ActiveSubscriptions))

	// The owner goes away without calling Cancel
	cancel()
	<-sub.Done()
	req.Equal(before, testutil.ToFloat64(observability.ActiveSubscriptions))

	// A late Cancel does not count the subscription twice
	sub.Cancel()
	req.Equal(before, testutil.ToFloat64(observability.ActiveSubscriptions))
}

// timeline records which subscription delivered, in delivery order.
type timeline struct {
	mu      sync.Mutex
	tags    []string
	started chan struct{}
	once    sync.Once
}

func (l *timeline) onUpdate(messages []domain.Message) {
	tag := messages[0].Text
	l.mu.Lock()
	l.tags = append(l.tags, tag)
	l.mu.Unlock()
	if tag == "new" {
		l.once.Do(func() { close(l.started) })
	}
}

func TestSyncChannel_Replaced_Subscription_Stops_Before_Successor_Delivers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockFeed(ctrl)
	line := &timeline{started: make(chan struct{})}

	// Both watches emit as fast as they can until cancelled
	flood := func(tag string) func(context.Context, string, domain.ConversationKey, func([]domain.Message)) error {
		return func(ctx context.Context, _ string, _ domain.ConversationKey, emit func([]domain.Message)) error {
			for ctx.Err() == nil {
				emit([]domain.Message{{ID: "01A", ConversationKey: key, Text: tag}})
			}
			return nil
		}
	}
	gomock.InOrder(
		feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).DoAndReturn(flood("old")),
		feed.EXPECT().Watch(gomock.Any(), "U1", key, gomock.Any()).DoAndReturn(flood("new")),
	)

	channel := NewSyncChannel(feed, logs.GetLoggerFromLevel(slog.LevelError), 5*time.Millisecond)
	registry := NewRegistry()
	subscribe := func() Canceler {
		return channel.Subscribe(context.Background(), "U1", key, line.onUpdate, func(errors.Kind) {})
	}

	// Given a consumer whose first subscription is delivering
	first := registry.Replace("consumer", key, subscribe).(*Subscription)
	time.Sleep(10 * time.Millisecond)

	// When it subscribes again to the same conversation
	second := registry.Replace("consumer", key, subscribe).(*Subscription)
	select {
	case <-line.started:
	case <-time.After(time.Second):
		require.FailNow(t, "successor never delivered")
	}
	registry.DetachConsumer("consumer")
	<-first.Done()
	<-second.Done()

	// Then nothing from the first one lands after the successor started
	line.mu.Lock()
	defer line.mu.Unlock()
	firstNew := slices.Index(line.tags, "new")
	req.Positive(firstNew)
	req.NotContains(line.tags[firstNew:], "old")
}
