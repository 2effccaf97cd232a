//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"trainer-chat/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// TrainerDirectory is one authoritative store of trainer principals.
// Exists may fail transiently; callers decide how to degrade.
type TrainerDirectory interface {
	Name() string
	Exists(ctx context.Context, principalID string) (bool, error)
}

// ProfileResolver returns display data for a principal.
type ProfileResolver interface {
	Lookup(ctx context.Context, principalID string) (domain.Profile, error)
}

type IRoleResolver interface {
	ResolveRole(ctx context.Context, principalID string) domain.Role
}

type IMessageStore interface {
	Send(ctx context.Context, cmd domain.SendCommand) (string, error)
	// GetConversation returns nil when no record exists for key.
	GetConversation(ctx context.Context, key domain.ConversationKey) (*domain.Conversation, error)
	GetMessages(ctx context.Context, key domain.ConversationKey) ([]domain.Message, error)
	ListConversations(ctx context.Context, principalID string) ([]domain.Conversation, error)
	// CanRead fails with ErrPermissionDenied unless viewerID participates in an existing conversation.
	CanRead(ctx context.Context, viewerID string, key domain.ConversationKey) error
	MarkRead(ctx context.Context, key domain.ConversationKey, readerID string) (int, error)
}

// Feed pushes the full ordered message set of a conversation each time it changes.
// Watch blocks until ctx is done or the transport fails.
type Feed interface {
	Watch(ctx context.Context, viewerID string, key domain.ConversationKey, emit func([]domain.Message)) error
	// WaitReadable blocks until viewerID may read key or ctx is done, without polling.
	WaitReadable(ctx context.Context, viewerID string, key domain.ConversationKey) error
}
