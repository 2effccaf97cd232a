package api

import (
	"time"

	"trainer-chat/domain"

	"github.com/samber/lo"
)

type sendRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	ID               string `json:"id"`
	Conversation     string `json:"conversation"`
	IsTrainerMessage bool   `json:"isTrainerMessage"`
}

type markReadResponse struct {
	Marked int `json:"marked"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type messageDTO struct {
	ID               string    `json:"id"`
	SenderID         string    `json:"senderId"`
	ReceiverID       string    `json:"receiverId"`
	Text             string    `json:"text"`
	Timestamp        time.Time `json:"timestamp"`
	Read             bool      `json:"read"`
	IsTrainerMessage bool      `json:"isTrainerMessage"`
}

type conversationDTO struct {
	Key                   string    `json:"key"`
	Participants          []string  `json:"participants"`
	CreatedBy             string    `json:"createdBy"`
	CreatedAt             time.Time `json:"createdAt"`
	LastMessage           string    `json:"lastMessage"`
	LastMessageTime       time.Time `json:"lastMessageTime"`
	IsTrainerConversation bool      `json:"isTrainerConversation"`
}

type chatListEntryDTO struct {
	CounterpartID   string    `json:"counterpartId"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
}

// Websocket frames

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameSnapshot    = "snapshot"
	frameError       = "error"
)

type inboundFrame struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

type snapshotFrame struct {
	Type         string       `json:"type"`
	Conversation string       `json:"conversation"`
	Messages     []messageDTO `json:"messages"`
}

type errorFrame struct {
	Type         string `json:"type"`
	Conversation string `json:"conversation,omitempty"`
	Kind         string `json:"kind"`
}

func toMessageDTOs(messages []domain.Message) []messageDTO {
	return lo.Map(messages, func(m domain.Message, _ int) messageDTO {
		return messageDTO{
			ID:               m.ID,
			SenderID:         m.SenderID,
			ReceiverID:       m.ReceiverID,
			Text:             m.Text,
			Timestamp:        m.Timestamp,
			Read:             m.Read,
			IsTrainerMessage: m.IsTrainerMessage,
		}
	})
}

func toConversationDTO(c domain.Conversation) conversationDTO {
	return conversationDTO{
		Key:                   c.Key.String(),
		Participants:          c.Participants[:],
		CreatedBy:             c.CreatedBy,
		CreatedAt:             c.CreatedAt,
		LastMessage:           c.LastMessage,
		LastMessageTime:       c.LastMessageTime,
		IsTrainerConversation: c.IsTrainerConversation,
	}
}

func toChatListDTOs(entries []domain.ChatListEntry) []chatListEntryDTO {
	return lo.Map(entries, func(e domain.ChatListEntry, _ int) chatListEntryDTO {
		return chatListEntryDTO(e)
	})
}
