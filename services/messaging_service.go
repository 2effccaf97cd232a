package services

import (
	"context"
	"log/slog"

	"trainer-chat/contract"
	"trainer-chat/domain"
	"trainer-chat/errors"
	"trainer-chat/moderation"
	"trainer-chat/observability"
)

type SendResult struct {
	MessageID       string
	ConversationKey domain.ConversationKey
	Role            domain.Role
}

// MessagingService is the entry point used by transports.
// Callers only name the peer; the conversation key is always derived here.
type MessagingService struct {
	log       *slog.Logger
	roles     contract.IRoleResolver
	store     contract.IMessageStore
	moderator *moderation.Moderator
}

// NewMessagingService accepts a nil moderator, in which case text is stored as sent.
func NewMessagingService(log *slog.Logger, roles contract.IRoleResolver,
	store contract.IMessageStore, moderator *moderation.Moderator) *MessagingService {
	return &MessagingService{log: log, roles: roles, store: store, moderator: moderator}
}

func (s *MessagingService) SendMessage(ctx context.Context, senderID, receiverID, text string) (SendResult, error) {
	key, err := domain.DeriveKey(senderID, receiverID)
	if err != nil {
		observability.SendFailures.WithLabelValues(string(errors.KindOf(err))).Inc()
		return SendResult{}, err
	}

	role := s.roles.ResolveRole(ctx, senderID)
	id, err := s.store.Send(ctx, domain.SendCommand{
		ConversationKey:  key,
		SenderID:         senderID,
		ReceiverID:       receiverID,
		Text:             s.moderator.Censor(text),
		IsTrainerMessage: role.IsTrainer(),
	})
	if err != nil {
		kind := errors.KindOf(err)
		s.log.Debug("Send failed", "conversation", key, "kind", kind, "error", err)
		observability.SendFailures.WithLabelValues(string(kind)).Inc()
		return SendResult{}, err
	}

	observability.MessagesSent.WithLabelValues(role.String()).Inc()
	s.log.Debug("Message sent", "conversation", key, "id", id, "role", role)
	return SendResult{MessageID: id, ConversationKey: key, Role: role}, nil
}

// Conversation returns the record shared by viewerID and peerID.
// It fails with ErrNotFound when there is none, or when viewerID is not one of its participants.
func (s *MessagingService) Conversation(ctx context.Context, viewerID, peerID string) (domain.Conversation, error) {
	key, err := domain.DeriveKey(viewerID, peerID)
	if err != nil {
		return domain.Conversation{}, err
	}
	conv, err := s.store.GetConversation(ctx, key)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conv == nil || !conv.HasParticipant(viewerID) {
		return domain.Conversation{}, errors.ErrNotFound
	}
	return *conv, nil
}

// Messages is the one-shot version of a subscription: a denied read renders empty.
func (s *MessagingService) Messages(ctx context.Context, viewerID, peerID string) ([]domain.Message, error) {
	key, err := domain.DeriveKey(viewerID, peerID)
	if err != nil {
		return nil, err
	}
	if err = s.store.CanRead(ctx, viewerID, key); err != nil {
		if errors.KindOf(err) == errors.KindPermissionDenied {
			return []domain.Message{}, nil
		}
		return nil, err
	}
	return s.store.GetMessages(ctx, key)
}

func (s *MessagingService) MarkRead(ctx context.Context, readerID, peerID string) (int, error) {
	key, err := domain.DeriveKey(readerID, peerID)
	if err != nil {
		return 0, err
	}
	return s.store.MarkRead(ctx, key, readerID)
}
