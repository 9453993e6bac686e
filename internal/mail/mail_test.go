package mail_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/re-cinq/overstory/internal/mail"
)

type fakeSessions struct {
	recipients []mail.Recipient
}

func (f fakeSessions) ActiveRecipients() ([]mail.Recipient, error) {
	return f.recipients, nil
}

func openTestClient(t *testing.T, recipients []mail.Recipient) (*mail.Client, *mail.Store) {
	t.Helper()
	store, err := mail.Open(filepath.Join(t.TempDir(), "mail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	nudges := mail.NewNudgeStore(filepath.Join(t.TempDir(), "pending-nudges"))
	return mail.NewClient(store, fakeSessions{recipients: recipients}, nudges), store
}

func TestBroadcastToBuildersExcludesSender(t *testing.T) {
	client, _ := openTestClient(t, []mail.Recipient{
		{AgentName: "builder1", Capability: "builder"},
		{AgentName: "builder2", Capability: "builder"},
		{AgentName: "scout1", Capability: "scout"},
		{AgentName: "sender", Capability: "builder"},
	})

	ids, err := client.Send(mail.SendRequest{From: "sender", To: "builders", Subject: "s", Body: "b", Type: mail.TypeStatus})
	require.NoError(t, err)
	require.Len(t, ids, 2)
}

func TestBroadcastToEmptyGroupSendsZero(t *testing.T) {
	client, _ := openTestClient(t, []mail.Recipient{
		{AgentName: "scout1", Capability: "scout"},
	})

	ids, err := client.Send(mail.SendRequest{From: "scout1", To: "builders", Subject: "s", Body: "b", Type: mail.TypeStatus})
	require.NoError(t, err)
	require.Len(t, ids, 0)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	client, _ := openTestClient(t, []mail.Recipient{{AgentName: "a"}, {AgentName: "b"}})
	ids, err := client.Send(mail.SendRequest{From: "a", To: "b", Subject: "s", Body: "b", Type: mail.TypeStatus})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	changed1, err := client.MarkRead(ids[0])
	require.NoError(t, err)
	require.True(t, changed1)

	changed2, err := client.MarkRead(ids[0])
	require.NoError(t, err)
	require.False(t, changed2)
}

func TestReplySwapsRecipientWhenReplyingToOwnMessage(t *testing.T) {
	client, _ := openTestClient(t, []mail.Recipient{{AgentName: "a"}, {AgentName: "b"}})
	ids, err := client.Send(mail.SendRequest{From: "a", To: "b", Subject: "hello", Body: "b", Type: mail.TypeStatus})
	require.NoError(t, err)

	replyID, err := client.Reply(ids[0], "reply body", "b")
	require.NoError(t, err)
	require.NotZero(t, replyID)

	msgs, err := client.List("b", "a", false, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "Re: hello", msgs[0].Subject)

	// The original sender replying to their own message goes back to the
	// original recipient (reply-to-own semantics).
	selfReplyID, err := client.Reply(ids[0], "self reply", "a")
	require.NoError(t, err)
	require.NotZero(t, selfReplyID)
	msgs2, err := client.List("a", "b", false, 0)
	require.NoError(t, err)
	require.Len(t, msgs2, 2) // original send + self-reply
}

func TestIsGroupAddress(t *testing.T) {
	active := map[string]bool{"reviewers": true}
	require.True(t, mail.IsGroupAddress("all", nil))
	require.True(t, mail.IsGroupAddress("builders", nil))
	require.True(t, mail.IsGroupAddress("group:custom", nil))
	require.False(t, mail.IsGroupAddress("reviewers", active)) // exact session name shadows the group form
}
