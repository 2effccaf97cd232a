package runtime

import (
	"sync/atomic"
	"testing"

	"trainer-chat/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type countingSub struct {
	cancels atomic.Int32
}

func (s *countingSub) Cancel() { s.cancels.Add(1) }

func TestRegistry_Attach_Replaces_Prior_Subscription(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	consumerID := uuid.NewString()
	key := domain.ConversationKey("T1_U1")
	first, second := &countingSub{}, &countingSub{}

	// Given a consumer watching a conversation
	registry.Attach(consumerID, key, first)
	req.Equal(1, registry.Count(consumerID))

	// When it attaches again on the same conversation
	registry.Attach(consumerID, key, second)

	// Then the first subscription is cancelled and replaced
	req.Equal(int32(1), first.cancels.Load())
	req.Equal(int32(0), second.cancels.Load())
	req.Equal(1, registry.Count(consumerID))
}

func TestRegistry_Attach_Keeps_Other_Consumers_And_Keys(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	consumer1, consumer2 := uuid.NewString(), uuid.NewString()
	a, b, c := &countingSub{}, &countingSub{}, &countingSub{}

	registry.Attach(consumer1, "T1_U1", a)
	registry.Attach(consumer1, "T2_U1", b)
	registry.Attach(consumer2, "T1_U1", c)

	req.Equal(2, registry.Count(consumer1))
	req.Equal(1, registry.Count(consumer2))
	req.Zero(a.cancels.Load() + b.cancels.Load() + c.cancels.Load())
}

func TestRegistry_Detach(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	consumerID := uuid.NewString()
	a, b := &countingSub{}, &countingSub{}

	registry.Attach(consumerID, "T1_U1", a)
	registry.Attach(consumerID, "T2_U1", b)

	registry.Detach(consumerID, "T1_U1")
	req.Equal(int32(1), a.cancels.Load())
	req.Equal(1, registry.Count(consumerID))

	// Unknown keys are ignored
	registry.Detach(consumerID, "T9_U1")
	registry.Detach(uuid.NewString(), "T1_U1")

	registry.DetachConsumer(consumerID)
	req.Equal(int32(1), b.cancels.Load())
	req.Zero(registry.Count(consumerID))
	req.Empty(registry.consumers)
}

func TestRegistry_Replace_Cancels_Before_Subscribing(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	consumerID := uuid.NewString()
	key := domain.ConversationKey("T1_U1")
	first, second := &countingSub{}, &countingSub{}
	registry.Attach(consumerID, key, first)

	// When the consumer subscribes again
	got := registry.Replace(consumerID, key, func() Canceler {
		// Then the prior subscription is already cancelled
		req.Equal(int32(1), first.cancels.Load())
		return second
	})

	req.Same(second, got)
	req.Equal(1, registry.Count(consumerID))
	req.Zero(second.cancels.Load())

	registry.DetachConsumer(consumerID)
	req.Equal(int32(1), second.cancels.Load())
	req.Zero(registry.Count(consumerID))
}
