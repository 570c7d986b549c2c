package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatherlyAPI/internal/realtime"
	"gatherlyAPI/services"
	"gatherlyAPI/tests/helpers"
)

func TestFriendRequestToChatFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	stamp := time.Now().Format("20060102150405")
	aliceID := helpers.SeedUser(t, pool, "user_test_a_"+stamp, "alice_"+stamp)
	bobID := helpers.SeedUser(t, pool, "user_test_b_"+stamp, "bob_"+stamp)

	fanout := realtime.NewFanout(realtime.NewRegistry())
	chatService := services.NewChatService(services.NewPgChatStore(pool))
	friendService := services.NewFriendService(services.NewPgFriendStore(pool), fanout, chatService)

	ctx := context.Background()

	// Alice sends, Bob sees it incoming.
	req, err := friendService.SendRequest(ctx, aliceID, bobID)
	require.NoError(t, err)

	incoming, err := friendService.GetIncoming(ctx, bobID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, req.ID, incoming[0].ID)

	// A second send in either direction conflicts.
	_, err = friendService.SendRequest(ctx, bobID, aliceID)
	assert.Error(t, err)

	// Bob accepts; both directions of the edge and one conversation
	// appear.
	accepted, err := friendService.Respond(ctx, req.ID, bobID, true)
	require.NoError(t, err)
	assert.Equal(t, "accepted", string(accepted.Status))

	aliceFriends, err := friendService.GetFriends(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, aliceFriends, 1)
	assert.Equal(t, bobID, aliceFriends[0].ID)

	bobFriends, err := friendService.GetFriends(ctx, bobID)
	require.NoError(t, err)
	require.Len(t, bobFriends, 1)

	conv, err := chatService.EnsureConversation(ctx, aliceID, bobID)
	require.NoError(t, err)

	// Accepting again must not create a second conversation.
	_, err = friendService.Respond(ctx, req.ID, bobID, true)
	require.NoError(t, err)
	convAgain, err := chatService.EnsureConversation(ctx, bobID, aliceID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, convAgain.ID)

	// Messages flow and seen state accumulates.
	msg, err := chatService.SaveMessage(ctx, conv.ID, aliceID, "hey bob", "")
	require.NoError(t, err)

	err = chatService.MarkSeen(ctx, conv.ID, []int64{msg.ID}, bobID)
	require.NoError(t, err)
	// Replay is absorbed.
	err = chatService.MarkSeen(ctx, conv.ID, []int64{msg.ID}, bobID)
	require.NoError(t, err)

	messages, err := chatService.ListMessages(ctx, conv.ID, bobID, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hey bob", messages[0].Text)
	assert.Equal(t, []int64{bobID}, messages[0].SeenBy)

	// An outsider cannot read the history.
	outsiderID := helpers.SeedUser(t, pool, "user_test_c_"+stamp, "carol_"+stamp)
	_, err = chatService.ListMessages(ctx, conv.ID, outsiderID, 50)
	assert.Error(t, err)
}
