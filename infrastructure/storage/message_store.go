package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"trainer-chat/domain"
	"trainer-chat/errors"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc/backoff"
)

const (
	conversationPrefix = "conv:"
	messagePrefixFmt   = "msg:%s:"
	participantIdxFmt  = "idx:participant:%s:"

	DefaultMaxTextLength      = 4096
	DefaultMaxConflictRetries = 10

	writeLockStripes = 64
)

// conflictBackoff spaces out retries of a transaction Badger rejected with ErrConflict.
var conflictBackoff = backoff.Config{
	BaseDelay:  time.Millisecond,
	Multiplier: 1.6,
	Jitter:     0.2,
	MaxDelay:   50 * time.Millisecond,
}

var validate = validator.New()

// Clock is the storage layer's time authority. Callers never supply timestamps.
type Clock func() time.Time

// MessageStore keeps conversations and their message logs in BadgerDB.
// Layout:
//
//	conv:{key}                          -> Conversation
//	msg:{key}:{unix_nano_padded}:{ulid} -> Message
//	idx:participant:{principal}:{key}   -> empty, used to list a principal's conversations
type MessageStore struct {
	db                 *badger.DB
	log                *slog.Logger
	clock              Clock
	maxTextLength      int
	maxConflictRetries int

	// Writers of the same conversation share a stripe
	writeLocks [writeLockStripes]sync.Mutex
}

type MessageStoreOption func(*MessageStore)

func WithClock(clock Clock) MessageStoreOption {
	return func(s *MessageStore) { s.clock = clock }
}

func WithMaxTextLength(n int) MessageStoreOption {
	return func(s *MessageStore) {
		if n > 0 {
			s.maxTextLength = n
		}
	}
}

func WithMaxConflictRetries(n int) MessageStoreOption {
	return func(s *MessageStore) {
		if n >= 0 {
			s.maxConflictRetries = n
		}
	}
}

func NewMessageStore(db *badger.DB, log *slog.Logger, opts ...MessageStoreOption) *MessageStore {
	s := &MessageStore{
		db:                 db,
		log:                log,
		clock:              func() time.Time { return time.Now().UTC() },
		maxTextLength:      DefaultMaxTextLength,
		maxConflictRetries: DefaultMaxConflictRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send upserts the conversation summary and appends the message in a single
// Badger transaction, so the message and its summary are committed together.
// Sends on one key are serialised in process. A conflict with another writer
// of the same DB is retried and then sees the record that writer created.
func (s *MessageStore) Send(ctx context.Context, cmd domain.SendCommand) (string, error) {
	cmd.Text = strings.TrimSpace(cmd.Text)
	if err := s.validateSend(cmd); err != nil {
		return "", err
	}

	unlock := s.lockConversation(cmd.ConversationKey)
	defer unlock()

	var id string
	err := s.retryOnConflict(ctx, cmd.ConversationKey, func() error {
		var err error
		id, err = s.send(cmd)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// lockConversation serialises the writers of key inside this process.
// Every send rewrites conv:{key}, so unserialised writers conflict in Badger.
func (s *MessageStore) lockConversation(key domain.ConversationKey) func() {
	mu := &s.writeLocks[xxhash.Sum64String(string(key))%writeLockStripes]
	mu.Lock()
	return mu.Unlock
}

// retryOnConflict runs txn until it commits, retrying ErrConflict with a
// jittered exponential delay at most maxConflictRetries times.
func (s *MessageStore) retryOnConflict(ctx context.Context, key domain.ConversationKey, txn func() error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrNetwork, err)
		}
		err := txn()
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, badger.ErrConflict) || attempt >= s.maxConflictRetries {
			return mapStoreError(err)
		}
		delay := conflictDelay(attempt)
		s.log.Debug("Transaction conflicted, retrying", "conversation", key, "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", errors.ErrNetwork, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func conflictDelay(attempt int) time.Duration {
	delay := float64(conflictBackoff.BaseDelay) * math.Pow(conflictBackoff.Multiplier, float64(attempt))
	delay = min(delay, float64(conflictBackoff.MaxDelay))
	delay *= 1 + conflictBackoff.Jitter*(rand.Float64()*2-1)
	return time.Duration(delay)
}

func (s *MessageStore) validateSend(cmd domain.SendCommand) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	if utf8.RuneCountInString(cmd.Text) > s.maxTextLength {
		return errors.InvalidArgument("text exceeds %d characters", s.maxTextLength)
	}
	expected, err := domain.DeriveKey(cmd.SenderID, cmd.ReceiverID)
	if err != nil {
		return err
	}
	if expected != cmd.ConversationKey {
		return errors.InvalidArgument("conversation key %q does not belong to %s and %s",
			cmd.ConversationKey, cmd.SenderID, cmd.ReceiverID)
	}
	return nil
}

func (s *MessageStore) send(cmd domain.SendCommand) (string, error) {
	var id string
	err := s.db.Update(func(txn *badger.Txn) error {
		conv, err := getConversation(txn, cmd.ConversationKey)
		if err != nil {
			return err
		}
		now := s.clock()

		// 1-2. Upsert-merge the conversation record
		if conv == nil {
			conv = &domain.Conversation{
				Key:                   cmd.ConversationKey,
				Participants:          domain.SortedPair(cmd.SenderID, cmd.ReceiverID),
				CreatedBy:             cmd.SenderID,
				CreatedAt:             now,
				IsTrainerConversation: cmd.IsTrainerMessage,
			}
			for _, p := range conv.Participants {
				if err = txn.Set(participantIndexKey(p, conv.Key), nil); err != nil {
					return err
				}
			}
		} else if !conv.HasParticipant(cmd.SenderID) || !conv.HasParticipant(cmd.ReceiverID) {
			return errors.PermissionDenied("%s is not a participant of %s", cmd.SenderID, cmd.ConversationKey)
		}

		// Reads must stay non-decreasing even if the clock steps back
		if now.Before(conv.LastMessageTime) {
			now = conv.LastMessageTime
		}

		// 3. Append the message
		message := domain.Message{
			ID:               ulid.Make().String(),
			ConversationKey:  cmd.ConversationKey,
			SenderID:         cmd.SenderID,
			ReceiverID:       cmd.ReceiverID,
			Text:             cmd.Text,
			Timestamp:        now,
			IsTrainerMessage: cmd.IsTrainerMessage,
		}
		if err = txn.Set(messageKey(message), marshalMessage(message)); err != nil {
			return err
		}

		// 4. Refresh the summary
		conv.LastMessage = message.Text
		conv.LastMessageTime = message.Timestamp
		if err = txn.Set(conversationKey(conv.Key), marshalConversation(*conv)); err != nil {
			return err
		}
		id = message.ID
		return nil
	})
	return id, err
}

func (s *MessageStore) GetConversation(_ context.Context, key domain.ConversationKey) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getConversation(txn, key)
		return err
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return conv, nil
}

// GetMessages returns the whole log of key. Key order is timestamp then id,
// which is exactly domain.Message.Before.
func (s *MessageStore) GetMessages(_ context.Context, key domain.ConversationKey) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix(key))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				message, err := unmarshalMessage(v)
				if err != nil {
					return fmt.Errorf("failed to unmarshal message: %w", err)
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	// Key order already matches, this only guards against foreign writers
	domain.SortMessages(messages)
	return messages, nil
}

// ListConversations scans the participant index of principalID.
func (s *MessageStore) ListConversations(_ context.Context, principalID string) ([]domain.Conversation, error) {
	if err := validate.Var(principalID, domain.PrincipalIDRule); err != nil {
		return nil, errors.InvalidArgument("principal id %q: %v", principalID, err)
	}
	var conversations []domain.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf(participantIdxFmt, principalID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := domain.ConversationKey(it.Item().Key()[len(prefix):])
			conv, err := getConversation(txn, key)
			if err != nil {
				return err
			}
			if conv == nil {
				s.log.Warn("Dangling participant index entry", "principal", principalID, "conversation", key)
				continue
			}
			conversations = append(conversations, *conv)
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return conversations, nil
}

// CanRead applies the read rule: only participants of an existing conversation see its log.
func (s *MessageStore) CanRead(ctx context.Context, viewerID string, key domain.ConversationKey) error {
	conv, err := s.GetConversation(ctx, key)
	if err != nil {
		return err
	}
	if conv == nil {
		return errors.PermissionDenied("conversation %s does not exist", key)
	}
	if !conv.HasParticipant(viewerID) {
		return errors.PermissionDenied("%s is not a participant of %s", viewerID, key)
	}
	return nil
}

// MarkRead sets the read flag on every message of key addressed to readerID.
// It returns the number of messages that changed.
func (s *MessageStore) MarkRead(ctx context.Context, key domain.ConversationKey, readerID string) (int, error) {
	if err := s.CanRead(ctx, readerID, key); err != nil {
		return 0, err
	}
	unlock := s.lockConversation(key)
	defer unlock()

	marked := 0
	err := s.retryOnConflict(ctx, key, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			unread, err := unreadMessages(txn, key, readerID)
			if err != nil {
				return err
			}
			for _, message := range unread {
				message.Read = true
				if err = txn.Set(messageKey(message), marshalMessage(message)); err != nil {
					return err
				}
			}
			marked = len(unread)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// unreadMessages closes its iterator before returning so the caller may write in the same txn.
func unreadMessages(txn *badger.Txn, key domain.ConversationKey, readerID string) ([]domain.Message, error) {
	prefix := []byte(messagePrefix(key))
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var unread []domain.Message
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		err := it.Item().Value(func(v []byte) error {
			message, err := unmarshalMessage(v)
			if err != nil {
				return err
			}
			if message.ReceiverID == readerID && !message.Read {
				unread = append(unread, message)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return unread, nil
}

func getConversation(txn *badger.Txn, key domain.ConversationKey) (*domain.Conversation, error) {
	item, err := txn.Get(conversationKey(key))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var conv domain.Conversation
	err = item.Value(func(v []byte) error {
		conv, err = unmarshalConversation(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func conversationKey(key domain.ConversationKey) []byte {
	return []byte(conversationPrefix + string(key))
}

func messagePrefix(key domain.ConversationKey) string {
	return fmt.Sprintf(messagePrefixFmt, key)
}

// messageKey pads the timestamp to 19 digits so lexicographical order is chronological.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messagePrefix(m.ConversationKey), m.Timestamp.UnixNano(), m.ID))
}

func participantIndexKey(principalID string, key domain.ConversationKey) []byte {
	return []byte(fmt.Sprintf(participantIdxFmt, principalID) + string(key))
}

// mapStoreError keeps classified errors and turns anything coming from Badger into ErrStoreUnavailable.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.KindOf(err) != errors.KindUnknown {
		return err
	}
	return errors.StoreUnavailable(err)
}
