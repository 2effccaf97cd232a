// Package domain contains core concepts of the messaging system.
// This file defines how a conversation is identified.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"trainer-chat/errors"
)

// KeySeparator joins the two participant ids of a ConversationKey.
// Identifiers are expected not to contain it; the identity provider owns that rule.
const KeySeparator = "_"

// PrincipalIDRule is the validator rule every principal id obeys: printable
// ASCII without the key separator or the storage key delimiters.
// SendCommand repeats it in its struct tags.
const PrincipalIDRule = "required,max=128,printascii,excludesall=_:/"

// ConversationKey is the deterministic identifier of a two-party conversation.
type ConversationKey string

func (k ConversationKey) String() string { return string(k) }

// DeriveKey orders both ids lexicographically and joins them,
// so DeriveKey(a, b) == DeriveKey(b, a).
func DeriveKey(idA, idB string) (ConversationKey, error) {
	if idA == "" || idB == "" {
		return "", errors.InvalidArgument("participant ids cannot be empty for conversation key derivation")
	}
	if idB < idA {
		idA, idB = idB, idA
	}
	return ConversationKey(idA + KeySeparator + idB), nil
}

// SortedPair returns both ids in the order used by DeriveKey.
func SortedPair(idA, idB string) [2]string {
	if idB < idA {
		return [2]string{idB, idA}
	}
	return [2]string{idA, idB}
}
