package storage

import (
	"fmt"
	"strings"
)

// Describe decodes a raw Badger entry for debugging tools.
// Unknown prefixes are reported as RAW with their size.
func Describe(key string, val []byte) (kind, detail string) {
	switch {
	case strings.HasPrefix(key, conversationPrefix):
		conv, err := unmarshalConversation(val)
		if err != nil {
			return "CONVERSATION", "Error: unmarshal failed"
		}
		return "CONVERSATION", fmt.Sprintf("%s <-> %s, last %q at %s",
			conv.Participants[0], conv.Participants[1], conv.LastMessage, conv.LastMessageTime.Format("2006-01-02 15:04:05"))
	case strings.HasPrefix(key, "msg:"):
		message, err := unmarshalMessage(val)
		if err != nil {
			return "MESSAGE", "Error: unmarshal failed"
		}
		return "MESSAGE", fmt.Sprintf("%s -> %s: %q (read=%t, trainer=%t)",
			message.SenderID, message.ReceiverID, message.Text, message.Read, message.IsTrainerMessage)
	case strings.HasPrefix(key, "idx:"):
		return "INDEX", ""
	case strings.HasPrefix(key, profilePrefix):
		profile, err := unmarshalProfile(val)
		if err != nil {
			return "PROFILE", "Error: unmarshal failed"
		}
		return "PROFILE", fmt.Sprintf("%s <%s>", profile.Name, profile.Email)
	case strings.HasPrefix(key, PrimaryTrainerPrefix), strings.HasPrefix(key, SecondaryTrainerPrefix):
		return "TRAINER", ""
	default:
		return "RAW", fmt.Sprintf("%d bytes", len(val))
	}
}
