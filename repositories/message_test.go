package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"smartsolve/domain"
	"smartsolve/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestMessageRepository(t *testing.T, limit *int) *MessageRepository {
	return NewMessageRepository(openTestDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), limit)
}

func Test_Append_And_Range_Both_Directions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestMessageRepository(t, nil)

	// Given alice and bob writing to each other
	first, err := repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: "  hello  "})
	req.NoError(err)
	second, err := repository.Append(ctx, domain.Draft{Sender: "bob", Receiver: "alice", Content: "hi alice"})
	req.NoError(err)

	// When the conversation is read from either side
	fromAlice, err := repository.RangeFor(ctx, "alice", "bob")
	req.NoError(err)
	fromBob, err := repository.RangeFor(ctx, "bob", "alice")
	req.NoError(err)

	// Then both directions are present, in creation order
	req.Equal(domain.ConversationKey("alice_bob"), first.Conversation)
	req.Equal(first.Conversation, second.Conversation)
	req.Equal("hello", first.Content)
	req.Equal(fromAlice, fromBob)
	req.Equal([]uuid.UUID{first.ID, second.ID}, lo.Map(fromAlice, func(m domain.Message, _ int) uuid.UUID { return m.ID }))
	req.True(second.CreatedAt.After(first.CreatedAt))
}

func Test_Append_Rejects_Blank_Content_Without_Persisting(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestMessageRepository(t, nil)

	for _, content := range []string{"", "   ", "\n\t "} {
		_, err := repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: content})
		req.ErrorIs(err, errors.ErrInvalidContent)
	}

	messages, err := repository.RangeFor(ctx, "alice", "bob")
	req.NoError(err)
	req.Empty(messages)
	count, err := repository.UnreadCount(ctx, "bob")
	req.NoError(err)
	req.Zero(count)
}

func Test_Append_Timestamps_Strictly_Increase_With_Frozen_Clock(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestMessageRepository(t, nil)
	frozen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repository.now = func() time.Time { return frozen }

	// Given many messages created at the same wall clock instant
	for i := range 20 {
		_, err := repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: fmt.Sprintf("message %d", i)})
		req.NoError(err)
	}

	// Then range returns them strictly ordered, without gaps or duplicates
	messages, err := repository.RangeFor(ctx, "bob", "alice")
	req.NoError(err)
	req.Len(messages, 20)
	for i, msg := range messages {
		req.Equal(fmt.Sprintf("message %d", i), msg.Content)
		if i > 0 {
			req.True(msg.CreatedAt.After(messages[i-1].CreatedAt))
		}
	}
	req.Len(lo.UniqBy(messages, func(m domain.Message) uuid.UUID { return m.ID }), 20)
}

func Test_Append_Resumes_After_Stored_Timestamp_On_Restart(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openTestDB(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a message stored with a clock set in the future
	future := time.Now().Add(time.Hour).UTC()
	before := NewMessageRepository(db, log, nil)
	before.now = func() time.Time { return future }
	stored, err := before.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: "from the future"})
	req.NoError(err)

	// When a fresh repository appends to the same conversation
	after := NewMessageRepository(db, log, nil)
	next, err := after.Append(ctx, domain.Draft{Sender: "bob", Receiver: "alice", Content: "back to now"})
	req.NoError(err)

	// Then ordering is preserved
	req.True(next.CreatedAt.After(stored.CreatedAt))
	messages, err := after.RangeFor(ctx, "alice", "bob")
	req.NoError(err)
	req.Equal([]string{"from the future", "back to now"}, lo.Map(messages, func(m domain.Message, _ int) string { return m.Content }))
}

func Test_Range_Keeps_Most_Recent_When_Limited(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestMessageRepository(t, lo.ToPtr(2))

	for _, content := range []string{"one", "two", "three"} {
		_, err := repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: content})
		req.NoError(err)
	}

	messages, err := repository.RangeFor(ctx, "alice", "bob")
	req.NoError(err)
	req.Equal([]string{"two", "three"}, lo.Map(messages, func(m domain.Message, _ int) string { return m.Content }))
}

func Test_Range_Zero_Limit_Means_Unlimited(t *testing.T) {
	for _, limit := range []int{0, -1} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			repository := newTestMessageRepository(t, lo.ToPtr(limit))

			for _, content := range []string{"one", "two", "three"} {
				_, err := repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: content})
				req.NoError(err)
			}

			messages, err := repository.RangeFor(ctx, "alice", "bob")
			req.NoError(err)
			req.Len(messages, 3)
		})
	}
}

func Test_Range_Does_Not_Leak_Other_Conversations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestMessageRepository(t, nil)

	// "al" + "_" + "ice..." style prefixes must not collide
	_, err := repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: "for bob"})
	req.NoError(err)
	_, err = repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bobby", Content: "for bobby"})
	req.NoError(err)

	messages, err := repository.RangeFor(ctx, "alice", "bob")
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("for bob", messages[0].Content)
}

func Test_Range_Unknown_Pair_Is_Empty(t *testing.T) {
	req := require.New(t)
	repository := newTestMessageRepository(t, nil)

	messages, err := repository.RangeFor(context.Background(), "carol", "dave")
	req.NoError(err)
	req.Empty(messages)
}

func Test_MarkRead_Is_Idempotent_On_Flag(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestMessageRepository(t, nil)
	msg, err := repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: "read me"})
	req.NoError(err)
	count, err := repository.UnreadCount(ctx, "bob")
	req.NoError(err)
	req.Equal(1, count)

	// When marking it read twice
	first, err := repository.MarkRead(ctx, msg.ID)
	req.NoError(err)
	second, err := repository.MarkRead(ctx, msg.ID)
	req.NoError(err)

	// Then the flag stays set and the unread count drops
	req.True(first.Read)
	req.True(second.Read)
	req.NotNil(second.ReadAt)
	fetched, err := repository.Get(ctx, msg.ID)
	req.NoError(err)
	req.True(fetched.Read)
	count, err = repository.UnreadCount(ctx, "bob")
	req.NoError(err)
	req.Zero(count)
}

func Test_MarkRead_Unknown_Message_Is_NotFound(t *testing.T) {
	req := require.New(t)
	repository := newTestMessageRepository(t, nil)

	_, err := repository.MarkRead(context.Background(), uuid.New())
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_SoftDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("participant deletes and message stays retrievable", func(t *testing.T) {
		req := require.New(t)
		repository := newTestMessageRepository(t, nil)
		msg, err := repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: "oops"})
		req.NoError(err)

		deleted, err := repository.SoftDelete(ctx, msg.ID, "bob")
		req.NoError(err)
		req.True(deleted.Deleted)
		req.Equal(domain.UserID("bob"), deleted.DeletedBy)

		messages, err := repository.RangeFor(ctx, "alice", "bob")
		req.NoError(err)
		req.Len(messages, 1)
		req.True(messages[0].Deleted)
		count, err := repository.UnreadCount(ctx, "bob")
		req.NoError(err)
		req.Zero(count)
	})

	t.Run("non participant is forbidden", func(t *testing.T) {
		req := require.New(t)
		repository := newTestMessageRepository(t, nil)
		msg, err := repository.Append(ctx, domain.Draft{Sender: "alice", Receiver: "bob", Content: "private"})
		req.NoError(err)

		_, err = repository.SoftDelete(ctx, msg.ID, "mallory")
		req.ErrorIs(err, errors.ErrForbidden)

		fetched, err := repository.Get(ctx, msg.ID)
		req.NoError(err)
		req.False(fetched.Deleted)
		req.Empty(fetched.DeletedBy)
	})

	t.Run("unknown message is not found", func(t *testing.T) {
		req := require.New(t)
		repository := newTestMessageRepository(t, nil)
		_, err := repository.SoftDelete(ctx, uuid.New(), "alice")
		req.ErrorIs(err, errors.ErrNotFound)
	})
}

func Test_Concurrent_Appends_Same_Conversation_Are_Ordered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestMessageRepository(t, nil)

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sender, receiver := domain.UserID("alice"), domain.UserID("bob")
			if i%2 == 1 {
				sender, receiver = receiver, sender
			}
			_, err := repository.Append(ctx, domain.Draft{Sender: sender, Receiver: receiver, Content: fmt.Sprintf("m%d", i)})
			req.NoError(err)
		}()
	}
	wg.Wait()

	messages, err := repository.RangeFor(ctx, "alice", "bob")
	req.NoError(err)
	req.Len(messages, 40)
	req.Len(lo.UniqBy(messages, func(m domain.Message) uuid.UUID { return m.ID }), 40)
	for i := 1; i < len(messages); i++ {
		req.True(messages[i].CreatedAt.After(messages[i-1].CreatedAt))
	}
	req.Zero(repository.locks.size())
}

func Test_Concurrent_Appends_Distinct_Conversations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestMessageRepository(t, nil)
	const conversations = 50

	// Baseline: the same amount of work on a single conversation key
	start := time.Now()
	for i := range conversations {
		_, err := repository.Append(ctx, domain.Draft{Sender: "solo", Receiver: "baseline", Content: fmt.Sprintf("m%d", i)})
		req.NoError(err)
	}
	baseline := time.Since(start)

	// When 50 senders write into 50 distinct conversations at once
	start = time.Now()
	var wg sync.WaitGroup
	for i := range conversations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repository.Append(ctx, domain.Draft{
				Sender:   domain.UserID(fmt.Sprintf("student%d", i)),
				Receiver: domain.UserID(fmt.Sprintf("tutor%d", i)),
				Content:  "question",
			})
			req.NoError(err)
		}()
	}
	wg.Wait()
	parallel := time.Since(start)

	// Then every conversation holds exactly its message
	for i := range conversations {
		messages, err := repository.RangeFor(ctx, domain.UserID(fmt.Sprintf("tutor%d", i)), domain.UserID(fmt.Sprintf("student%d", i)))
		req.NoError(err)
		req.Len(messages, 1)
	}
	// Generous factor, disk sync dominates both runs
	req.Less(parallel, 10*baseline+time.Second)
}
