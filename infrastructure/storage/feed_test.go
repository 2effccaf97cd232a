package storage

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"trainer-chat/domain"
	"trainer-chat/errors"

	"github.com/stretchr/testify/require"
)

type snapshots struct {
	mu   sync.Mutex
	list [][]domain.Message
}

func (s *snapshots) add(messages []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, messages)
}

func (s *snapshots) lastLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.list) == 0 {
		return -1
	}
	return len(s.list[len(s.list)-1])
}

func TestFeed_Watch_Pushes_Full_Snapshots(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	store := NewMessageStore(db, slog.Default())
	feed := NewFeed(db, store, slog.Default(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.Send(ctx, sendCmd(t, "U1", "U2", "first"))
	req.NoError(err)

	received := &snapshots{}
	done := make(chan error, 1)
	go func() { done <- feed.Watch(ctx, "U2", "U1_U2", received.add) }()

	req.Eventually(func() bool { return received.lastLen() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = store.Send(ctx, sendCmd(t, "U2", "U1", "second"))
	req.NoError(err)

	req.Eventually(func() bool { return received.lastLen() == 2 }, 2*time.Second, 10*time.Millisecond)

	received.mu.Lock()
	last := received.list[len(received.list)-1]
	received.mu.Unlock()
	req.Equal("first", last[0].Text)
	req.Equal("second", last[1].Text)

	cancel()
	select {
	case err = <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("Watch should return once its context is canceled")
	}
}

func TestFeed_Watch_Denies_Non_Participants(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	store := NewMessageStore(db, slog.Default())
	feed := NewFeed(db, store, slog.Default(), 0)
	ctx := context.Background()

	_, err := store.Send(ctx, sendCmd(t, "U1", "U2", "private"))
	req.NoError(err)

	called := false
	err = feed.Watch(ctx, "U3", "U1_U2", func([]domain.Message) { called = true })
	req.ErrorIs(err, errors.ErrPermissionDenied)
	req.False(called)

	err = feed.Watch(ctx, "U1", "U1_U9", func([]domain.Message) { called = true })
	req.ErrorIs(err, errors.ErrPermissionDenied)
	req.False(called)
}

func TestFeed_Watch_Snapshots_Never_Shrink_Under_Concurrent_Sends(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	store := NewMessageStore(db, slog.Default())
	// The delayed resync lands while sends are being published
	feed := NewFeed(db, store, slog.Default(), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.Send(ctx, sendCmd(t, "U1", "U2", "first"))
	req.NoError(err)

	received := &snapshots{}
	done := make(chan error, 1)
	go func() { done <- feed.Watch(ctx, "U1", "U1_U2", received.add) }()
	req.Eventually(func() bool { return received.lastLen() == 1 }, 2*time.Second, 5*time.Millisecond)

	const sends = 30
	var wg sync.WaitGroup
	errs := make(chan error, sends)
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(sender, receiver string) {
			defer wg.Done()
			_, err := store.Send(ctx, sendCmd(t, sender, receiver, "more"))
			errs <- err
		}([]string{"U1", "U2"}[i%2], []string{"U2", "U1"}[i%2])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}
	req.Eventually(func() bool { return received.lastLen() == sends+1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
	received.mu.Lock()
	defer received.mu.Unlock()
	for i := 1; i < len(received.list); i++ {
		req.GreaterOrEqual(len(received.list[i]), len(received.list[i-1]))
	}
}

func TestFeed_WaitReadable_Returns_Once_Conversation_Exists(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	store := NewMessageStore(db, slog.Default())
	// Only a pushed change can end the wait within the test
	feed := NewFeed(db, store, slog.Default(), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- feed.WaitReadable(ctx, "U2", "U1_U2") }()

	// Give the subscription time to register
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-done:
		req.FailNow("returned before the conversation existed", "%v", err)
	default:
	}

	_, err := store.Send(ctx, sendCmd(t, "U1", "U2", "hello"))
	req.NoError(err)

	select {
	case err = <-done:
		req.NoError(err)
		req.NoError(ctx.Err())
	case <-time.After(2 * time.Second):
		req.FailNow("still waiting after the conversation was created")
	}
}

func TestFeed_WaitReadable_Participant_Returns_Immediately(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	store := NewMessageStore(db, slog.Default())
	feed := NewFeed(db, store, slog.Default(), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := store.Send(ctx, sendCmd(t, "U1", "U2", "hello"))
	req.NoError(err)

	req.NoError(feed.WaitReadable(ctx, "U2", "U1_U2"))
	req.NoError(ctx.Err())
}

func TestFeed_WaitReadable_Non_Participant_Waits_For_Cancellation(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	store := NewMessageStore(db, slog.Default())
	feed := NewFeed(db, store, slog.Default(), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := store.Send(ctx, sendCmd(t, "U1", "U2", "private"))
	req.NoError(err)

	done := make(chan error, 1)
	go func() { done <- feed.WaitReadable(ctx, "U3", "U1_U2") }()

	// More traffic on the conversation does not let U3 in
	_, err = store.Send(ctx, sendCmd(t, "U2", "U1", "still private"))
	req.NoError(err)
	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		req.FailNow("a non participant was let through")
	default:
	}

	cancel()
	select {
	case err = <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.FailNow("WaitReadable should return once its context is canceled")
	}
}
