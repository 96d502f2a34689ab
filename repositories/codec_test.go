package repositories

import (
	"testing"
	"time"

	"smartsolve/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func Test_Message_Record_Keeps_Every_Field(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 5, 4, 10, 30, 0, 123, time.UTC)
	readAt := at.Add(time.Minute)
	deletedAt := at.Add(time.Hour)
	msg := domain.Message{
		ID:           uuid.New(),
		Sender:       "alice",
		Receiver:     "bob",
		Conversation: "alice_bob",
		Content:      "see you at the review session",
		Language:     "eng",
		CreatedAt:    at,
		Read:         true,
		ReadAt:       &readAt,
		Deleted:      true,
		DeletedBy:    "bob",
		DeletedAt:    &deletedAt,
	}

	decoded, err := decodeMessage(encodeMessage(msg))
	req.NoError(err)
	req.Equal(msg, decoded)
}

func Test_Record_Skips_Unknown_Fields(t *testing.T) {
	req := require.New(t)
	user := User{ID: "alice", Username: "Alice", CreatedAt: time.Unix(0, 42).UTC()}

	// A field added by a newer version of the hub
	b := encodeUser(user)
	b = protowire.AppendTag(b, 99, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)

	decoded, err := decodeUser(b)
	req.NoError(err)
	req.Equal(user, decoded)
}

func Test_Record_Truncated_Fails(t *testing.T) {
	req := require.New(t)
	b := encodeMessage(domain.Message{ID: uuid.New(), Sender: "alice", Receiver: "bob", Content: "hello"})

	_, err := decodeMessage(b[:len(b)-2])
	req.Error(err)
}
