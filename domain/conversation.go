// Package domain contains core concepts of the messaging system.
// This file defines the Conversation record and the derived chat list row.
package domain

import (
	"time"
)

// Conversation is the durable summary of an exchange between exactly two principals.
// Participants is immutable after creation and always sorted, so that
// DeriveKey(Participants[0], Participants[1]) == Key.
type Conversation struct {
	Key                   ConversationKey
	Participants          [2]string
	CreatedBy             string
	CreatedAt             time.Time
	LastMessage           string
	LastMessageTime       time.Time
	IsTrainerConversation bool
}

func (c Conversation) HasParticipant(principalID string) bool {
	return c.Participants[0] == principalID || c.Participants[1] == principalID
}

// Counterpart returns the other participant, or false when principalID is not part of c.
func (c Conversation) Counterpart(principalID string) (string, bool) {
	switch principalID {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	default:
		return "", false
	}
}

// ChatListEntry is a non-persisted inbox row built for one principal.
type ChatListEntry struct {
	CounterpartID   string
	Name            string
	Email           string
	LastMessage     string
	LastMessageTime time.Time
}

// Profile is the display data of a principal, owned by an external directory.
type Profile struct {
	ID    string
	Name  string
	Email string
}
