package domain

import (
	"testing"

	"trainer-chat/errors"

	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"U1", "U2"},
		{"zed", "alpha"},
		{"trainer-42", "user-7"},
		{"a", "ab"},
		{"same-prefix-1", "same-prefix-10"},
	}
	for _, p := range pairs {
		t.Run(p[0]+"/"+p[1], func(t *testing.T) {
			req := require.New(t)
			ab, err := DeriveKey(p[0], p[1])
			req.NoError(err)
			ba, err := DeriveKey(p[1], p[0])
			req.NoError(err)
			req.Equal(ab, ba)
		})
	}
}

func TestDeriveKey_DistinctPairsDoNotCollide(t *testing.T) {
	req := require.New(t)
	ab, err := DeriveKey("a", "b")
	req.NoError(err)
	ac, err := DeriveKey("a", "c")
	req.NoError(err)
	req.NotEqual(ab, ac)
}

func TestDeriveKey_LexicographicOrder(t *testing.T) {
	req := require.New(t)
	key, err := DeriveKey("U2", "U1")
	req.NoError(err)
	req.Equal(ConversationKey("U1_U2"), key)
}

func TestDeriveKey_EmptyIDs(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"empty first", "", "x"},
		{"empty second", "x", ""},
		{"both empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			key, err := DeriveKey(tt.a, tt.b)
			req.ErrorIs(err, errors.ErrInvalidArgument)
			req.Empty(key)
		})
	}
}

func TestConversation_Counterpart(t *testing.T) {
	req := require.New(t)
	c := Conversation{Key: "U1_U2", Participants: SortedPair("U2", "U1")}

	other, ok := c.Counterpart("U1")
	req.True(ok)
	req.Equal("U2", other)

	other, ok = c.Counterpart("U2")
	req.True(ok)
	req.Equal("U1", other)

	_, ok = c.Counterpart("U3")
	req.False(ok)
	req.False(c.HasParticipant("U3"))
}
