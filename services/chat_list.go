package services

import (
	"context"
	"log/slog"
	"sort"

	"trainer-chat/contract"
	"trainer-chat/domain"
	"trainer-chat/observability"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultProfileLookupConcurrency = 8
	defaultDisplayName              = "User"
)

// ChatListAggregator builds the inbox of a principal: one row per conversation,
// most recent first, with the counterpart's display data resolved independently per row.
type ChatListAggregator struct {
	log         *slog.Logger
	store       contract.IMessageStore
	profiles    contract.ProfileResolver
	concurrency int
}

func NewChatListAggregator(log *slog.Logger, store contract.IMessageStore,
	profiles contract.ProfileResolver, concurrency int) *ChatListAggregator {
	if concurrency <= 0 {
		concurrency = DefaultProfileLookupConcurrency
	}
	return &ChatListAggregator{log: log, store: store, profiles: profiles, concurrency: concurrency}
}

// ListConversations re-scans storage on every call. A failed profile lookup
// keeps the row and shows the raw counterpart id instead.
func (a *ChatListAggregator) ListConversations(ctx context.Context, principalID string) ([]domain.ChatListEntry, error) {
	conversations, err := a.store.ListConversations(ctx, principalID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ChatListEntry, 0, len(conversations))
	for _, conv := range conversations {
		counterpart, ok := conv.Counterpart(principalID)
		if !ok {
			a.log.Warn("Conversation listed for a non participant", "principal", principalID, "conversation", conv.Key)
			continue
		}
		entries = append(entries, domain.ChatListEntry{
			CounterpartID:   counterpart,
			LastMessage:     conv.LastMessage,
			LastMessageTime: conv.LastMessageTime,
		})
	}

	// Each goroutine owns exactly one index of entries
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i := range entries {
		g.Go(func() error {
			a.resolveDisplay(ctx, &entries[i])
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].LastMessageTime.Equal(entries[j].LastMessageTime) {
			return entries[i].LastMessageTime.After(entries[j].LastMessageTime)
		}
		return entries[i].CounterpartID < entries[j].CounterpartID
	})
	return entries, nil
}

func (a *ChatListAggregator) resolveDisplay(ctx context.Context, entry *domain.ChatListEntry) {
	profile, err := a.profiles.Lookup(ctx, entry.CounterpartID)
	if err != nil {
		a.log.Debug("Profile lookup failed, using raw id", "counterpart", entry.CounterpartID, "error", err)
		observability.ProfileLookupFailures.Inc()
		entry.Name = entry.CounterpartID
		return
	}
	entry.Name = profile.Name
	if entry.Name == "" {
		entry.Name = defaultDisplayName
	}
	entry.Email = profile.Email
}
