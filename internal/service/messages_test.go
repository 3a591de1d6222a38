package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pranab56/TradeLog-sub000/internal/models"
	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

func TestSendMessagePersistsBeforePublishing(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	msg, err := env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Content:        "hello",
		SessionID:      "sess-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, models.MessageTypeText, msg.Type)
	require.Equal(t, models.StatusSent, msg.Status)

	// durable before anyone was notified
	stored, err := env.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", stored.Content)

	sent := env.bcast.byType(realtime.EventMessageSent)
	require.Len(t, sent, 2, "conversation room plus user rooms")
	require.Equal(t, realtime.ConversationRoom(conv.ID), sent[0].Room)
	require.Equal(t, conv.Participants, sent[1].Users)
	for _, p := range sent {
		require.Equal(t, "sess-1", p.Opts.ExcludeSessionID)
	}

	// sending bumps the sidebar ordering
	updated, err := env.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, msg.ID, updated.LastMessageID)
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	cases := []struct {
		name string
		in   SendMessageInput
	}{
		{"empty text", SendMessageInput{ConversationID: conv.ID, SenderID: "alice"}},
		{"unknown type", SendMessageInput{ConversationID: conv.ID, SenderID: "alice", Type: "hologram", Content: "x"}},
		{"media without url", SendMessageInput{ConversationID: conv.ID, SenderID: "alice", Type: models.MessageTypeImage}},
		{"no sender", SendMessageInput{ConversationID: conv.ID, Content: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.SendMessage(ctx, tc.in)
			require.True(t, apperr.IsCode(err, apperr.CodeValidation), "got %v", err)
		})
	}
	require.Empty(t, env.bcast.byType(realtime.EventMessageSent))
}

func TestSendMessageRequiresMembership(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")

	_, err := env.svc.SendMessage(context.Background(), SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "mallory",
		Content:        "hi",
	})
	require.True(t, apperr.IsCode(err, apperr.CodeNotAMember))
}

func TestSendMessageBlockedDirect(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()
	require.NoError(t, env.svc.SetBlocked(ctx, conv.ID, "bob", true))

	_, err := env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Content:        "hi",
	})
	require.True(t, apperr.IsCode(err, apperr.CodeNotAMember))
}

func TestSendMessageReplyMustStayInConversation(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	other := env.direct("alice", "carol")
	ctx := context.Background()

	foreign, err := env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: other.ID, SenderID: "alice", Content: "elsewhere",
	})
	require.NoError(t, err)

	_, err = env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID, SenderID: "alice", Content: "reply", ReplyTo: foreign.ID,
	})
	require.True(t, apperr.IsCode(err, apperr.CodeValidation))

	_, err = env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID, SenderID: "alice", Content: "reply", ReplyTo: "missing",
	})
	require.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.svc.SendMessage(ctx, SendMessageInput{
			ConversationID: conv.ID, SenderID: "alice", Content: "hi",
		})
		require.NoError(t, err)
	}
	env.bcast.reset()

	n, err := env.svc.MarkRead(ctx, conv.ID, "bob", "sess-b")
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.Len(t, env.bcast.byType(realtime.EventReadReceiptUpdated), 1)

	n, err = env.svc.MarkRead(ctx, conv.ID, "bob", "sess-b")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, env.bcast.byType(realtime.EventReadReceiptUpdated), 1,
		"a no-op mark-read must not rebroadcast")
}

func TestMarkReadSkipsOwnMessages(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	_, err := env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID, SenderID: "alice", Content: "hi",
	})
	require.NoError(t, err)

	n, err := env.svc.MarkRead(ctx, conv.ID, "alice", "")
	require.NoError(t, err)
	require.Zero(t, n, "the sender never reads their own messages")
}

func TestReactReplacesPreviousReaction(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	msg, err := env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID, SenderID: "alice", Content: "hi",
	})
	require.NoError(t, err)

	_, err = env.svc.React(ctx, msg.ID, "bob", "👍", "")
	require.NoError(t, err)
	updated, err := env.svc.React(ctx, msg.ID, "bob", "❤️", "")
	require.NoError(t, err)

	require.Len(t, updated.Reactions, 1, "one active reaction per user")
	require.Equal(t, "❤️", updated.Reactions[0].Emoji)
}

func TestReactConcurrentSameUserKeepsOne(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	msg, err := env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID, SenderID: "alice", Content: "hi",
	})
	require.NoError(t, err)

	emojis := []string{"👍", "❤️", "😂", "🔥", "👀", "🎉", "💯", "🙏"}
	var wg sync.WaitGroup
	for _, e := range emojis {
		wg.Add(1)
		go func(e string) {
			defer wg.Done()
			_, err := env.svc.React(ctx, msg.ID, "bob", e, "")
			require.NoError(t, err)
		}(e)
	}
	wg.Wait()

	got, err := env.msgs.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1, "racing reactions by one user must collapse to one")
	require.Equal(t, "bob", got.Reactions[0].UserID)
	require.Contains(t, emojis, got.Reactions[0].Emoji)
}

func TestReactValidation(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	msg, err := env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID, SenderID: "alice", Content: "hi",
	})
	require.NoError(t, err)

	_, err = env.svc.React(ctx, msg.ID, "bob", "", "")
	require.True(t, apperr.IsCode(err, apperr.CodeValidation))

	_, err = env.svc.React(ctx, msg.ID, "mallory", "👍", "")
	require.True(t, apperr.IsCode(err, apperr.CodeNotAMember))

	_, err = env.svc.DeleteMessage(ctx, msg.ID, "alice", "")
	require.NoError(t, err)
	_, err = env.svc.React(ctx, msg.ID, "bob", "👍", "")
	require.True(t, apperr.IsCode(err, apperr.CodeValidation), "deleted messages cannot collect reactions")
}

func TestEditRequiresOwnership(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	msg, err := env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID, SenderID: "alice", Content: "hi",
	})
	require.NoError(t, err)

	_, err = env.svc.EditMessage(ctx, msg.ID, "bob", "hijacked", "")
	require.True(t, apperr.IsCode(err, apperr.CodeNotOwner))

	updated, err := env.svc.EditMessage(ctx, msg.ID, "alice", "hello there", "")
	require.NoError(t, err)
	require.True(t, updated.IsEdited)
	require.Equal(t, "hello there", updated.Content)
	require.NotNil(t, updated.EditedAt)
}

func TestDeleteTombstonesGlobally(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	msg, err := env.svc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID, SenderID: "alice", Type: models.MessageTypeImage,
		MediaURL: "https://cdn/x.png", MediaName: "x.png",
	})
	require.NoError(t, err)

	_, err = env.svc.DeleteMessage(ctx, msg.ID, "bob", "")
	require.True(t, apperr.IsCode(err, apperr.CodeNotOwner))

	deleted, err := env.svc.DeleteMessage(ctx, msg.ID, "alice", "")
	require.NoError(t, err)
	require.True(t, deleted.IsDeleted)
	require.Equal(t, models.DeletedMarker, deleted.Content)
	require.Empty(t, deleted.MediaURL)

	env.bcast.reset()
	again, err := env.svc.DeleteMessage(ctx, msg.ID, "alice", "")
	require.NoError(t, err)
	require.True(t, again.IsDeleted)
	require.Empty(t, env.bcast.byType(realtime.EventMessageDeleted), "repeat delete is a silent no-op")

	_, err = env.svc.EditMessage(ctx, msg.ID, "alice", "resurrect", "")
	require.True(t, apperr.IsCode(err, apperr.CodeValidation), "tombstones are final")
}

func TestGetMessagesPagination(t *testing.T) {
	env := newTestEnv()
	conv := env.direct("alice", "bob")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.svc.SendMessage(ctx, SendMessageInput{
			ConversationID: conv.ID, SenderID: "alice", Content: "hi",
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	msgs, err := env.svc.GetMessages(ctx, conv.ID, "bob", 3, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.True(t, msgs[0].CreatedAt.Before(msgs[2].CreatedAt), "chronological order")

	_, err = env.svc.GetMessages(ctx, conv.ID, "mallory", 10, time.Time{})
	require.True(t, apperr.IsCode(err, apperr.CodeNotAMember))
}
