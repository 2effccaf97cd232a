package storage

import (
	"fmt"
	"time"

	"trainer-chat/domain"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format so that any proto tooling can
// decode them with the field numbers below.

const (
	convKey          protowire.Number = 1
	convParticipant  protowire.Number = 2
	convCreatedBy    protowire.Number = 3
	convCreatedAt    protowire.Number = 4
	convLastMessage  protowire.Number = 5
	convLastTime     protowire.Number = 6
	convTrainerConvo protowire.Number = 7
)

const (
	msgID          protowire.Number = 1
	msgConvKey     protowire.Number = 2
	msgSender      protowire.Number = 3
	msgReceiver    protowire.Number = 4
	msgText        protowire.Number = 5
	msgTimestamp   protowire.Number = 6
	msgRead        protowire.Number = 7
	msgFromTrainer protowire.Number = 8
)

const (
	profileID    protowire.Number = 1
	profileName  protowire.Number = 2
	profileEmail protowire.Number = 3
)

func marshalConversation(c domain.Conversation) []byte {
	var b []byte
	b = appendString(b, convKey, string(c.Key))
	for _, p := range c.Participants {
		b = appendString(b, convParticipant, p)
	}
	b = appendString(b, convCreatedBy, c.CreatedBy)
	b = appendTime(b, convCreatedAt, c.CreatedAt)
	b = appendString(b, convLastMessage, c.LastMessage)
	b = appendTime(b, convLastTime, c.LastMessageTime)
	b = appendBool(b, convTrainerConvo, c.IsTrainerConversation)
	return b
}

func unmarshalConversation(b []byte) (domain.Conversation, error) {
	var c domain.Conversation
	participants := 0
	err := consumeFields(b, func(num protowire.Number, s string, v uint64) {
		switch num {
		case convKey:
			c.Key = domain.ConversationKey(s)
		case convParticipant:
			if participants < len(c.Participants) {
				c.Participants[participants] = s
			}
			participants++
		case convCreatedBy:
			c.CreatedBy = s
		case convCreatedAt:
			c.CreatedAt = toTime(v)
		case convLastMessage:
			c.LastMessage = s
		case convLastTime:
			c.LastMessageTime = toTime(v)
		case convTrainerConvo:
			c.IsTrainerConversation = protowire.DecodeBool(v)
		}
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	if participants != len(c.Participants) {
		return domain.Conversation{}, fmt.Errorf("conversation %q has %d participants", c.Key, participants)
	}
	return c, nil
}

func marshalMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, msgID, m.ID)
	b = appendString(b, msgConvKey, string(m.ConversationKey))
	b = appendString(b, msgSender, m.SenderID)
	b = appendString(b, msgReceiver, m.ReceiverID)
	b = appendString(b, msgText, m.Text)
	b = appendTime(b, msgTimestamp, m.Timestamp)
	b = appendBool(b, msgRead, m.Read)
	b = appendBool(b, msgFromTrainer, m.IsTrainerMessage)
	return b
}

func unmarshalMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := consumeFields(b, func(num protowire.Number, s string, v uint64) {
		switch num {
		case msgID:
			m.ID = s
		case msgConvKey:
			m.ConversationKey = domain.ConversationKey(s)
		case msgSender:
			m.SenderID = s
		case msgReceiver:
			m.ReceiverID = s
		case msgText:
			m.Text = s
		case msgTimestamp:
			m.Timestamp = toTime(v)
		case msgRead:
			m.Read = protowire.DecodeBool(v)
		case msgFromTrainer:
			m.IsTrainerMessage = protowire.DecodeBool(v)
		}
	})
	return m, err
}

func marshalProfile(p domain.Profile) []byte {
	var b []byte
	b = appendString(b, profileID, p.ID)
	b = appendString(b, profileName, p.Name)
	b = appendString(b, profileEmail, p.Email)
	return b
}

func unmarshalProfile(b []byte) (domain.Profile, error) {
	var p domain.Profile
	err := consumeFields(b, func(num protowire.Number, s string, _ uint64) {
		switch num {
		case profileID:
			p.ID = s
		case profileName:
			p.Name = s
		case profileEmail:
			p.Email = s
		}
	})
	return p, err
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// appendTime stores unix nanoseconds; the zero time is omitted.
func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(t.UnixNano()))
}

func toTime(v uint64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(v)).UTC()
}

// consumeFields walks b and hands every string or varint field to fn.
// Unknown wire types are skipped.
func consumeFields(b []byte, fn func(num protowire.Number, s string, v uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			fn(num, s, 0)
			b = b[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			fn(num, "", v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
