// Package domain contains core concepts of the messaging system.
// This file defines Message records and their ordering rule.
// Messages are immutable except for the Read flag.
package domain

import (
	"sort"
	"time"
)

// Message is one entry of a conversation's append-only log.
type Message struct {
	ID               string // store-assigned, time sortable
	ConversationKey  ConversationKey
	SenderID         string
	ReceiverID       string
	Text             string
	Timestamp        time.Time // store-assigned
	Read             bool
	IsTrainerMessage bool
}

// SendCommand carries everything the caller decides about a new message.
// ID and Timestamp are left to the store.
type SendCommand struct {
	ConversationKey  ConversationKey `validate:"required"`
	SenderID         string          `validate:"required,max=128,printascii,excludesall=_:/"`
	ReceiverID       string          `validate:"required,max=128,printascii,excludesall=_:/,nefield=SenderID"`
	Text             string          `validate:"required"`
	IsTrainerMessage bool
}

// Before orders by timestamp, then by id to keep equal timestamps stable.
func (m Message) Before(other Message) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}
	return m.ID < other.ID
}

// SortMessages sorts messages in place, ascending.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})
}
