package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hola0123/z-study-chat/pkg/chat"
)

func TestApplyIncrementsVersion(t *testing.T) {
	ts := NewTranscript()
	require.Equal(t, int64(0), ts.Version)

	require.NoError(t, ts.Apply(MutateAppendTurns(chat.NewTurn(chat.RoleUser, "hi"))))
	require.Equal(t, int64(1), ts.Version)

	require.NoError(t, ts.ApplyAll(
		MutateAppendTurns(chat.NewTurn(chat.RoleAssistant, "hello")),
		MutateTruncateFrom(1),
	))
	require.Equal(t, int64(3), ts.Version)
	require.Len(t, ts.Turns, 1)
}

func TestAppendTurnsAssignsContiguousIndices(t *testing.T) {
	ts := NewTranscript()
	u := chat.NewTurn(chat.RoleUser, "q")
	a := chat.NewTurn(chat.RoleAssistant, "r")
	require.NoError(t, ts.Apply(MutateAppendTurns(u, a)))

	assert.Equal(t, 0, u.Index)
	assert.Equal(t, 1, a.Index)
}

func TestAppendDeltaRejectsUserTurn(t *testing.T) {
	ts := NewTranscript()
	require.NoError(t, ts.Apply(MutateAppendTurns(chat.NewTurn(chat.RoleUser, "q"))))

	err := ts.Apply(MutateAppendDelta(0, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append_delta")
}

func TestSetContentTicksVersionCounter(t *testing.T) {
	ts := NewTranscript()
	require.NoError(t, ts.Apply(MutateAppendTurns(chat.NewTurn(chat.RoleUser, "before"))))

	v := ts.Version
	require.NoError(t, ts.Apply(MutateSetContent(0, "after")))
	assert.Equal(t, "after", ts.Turns[0].Content)
	assert.Equal(t, v+1, ts.Version)

	require.Error(t, ts.Apply(MutateSetContent(5, "nope")))
}

func TestSnapshotIsIndependentOfLaterMutations(t *testing.T) {
	ts := NewTranscript()
	u := chat.NewTurn(chat.RoleUser, "q")
	require.NoError(t, ts.Apply(MutateAppendTurns(u)))

	snapshot := ts.Snapshot()
	u.Content = "changed"

	assert.Equal(t, "q", snapshot[0].Content)
}

func TestMergeOlderDropsDuplicates(t *testing.T) {
	displayed := []*chat.Turn{
		chat.NewTurn(chat.RoleUser, "second q", chat.WithChatID("u2")),
		chat.NewTurn(chat.RoleAssistant, "second a", chat.WithChatID("a2")),
	}
	older := []*chat.Turn{
		chat.NewTurn(chat.RoleUser, "first q", chat.WithChatID("u1")),
		chat.NewTurn(chat.RoleAssistant, "first a", chat.WithChatID("a1")),
		// overlap with the displayed page
		chat.NewTurn(chat.RoleUser, "second q again", chat.WithChatID("u2")),
	}

	merged := MergeOlder(displayed, older)
	require.Len(t, merged, 4)
	assert.Equal(t, "first q", merged[0].Content)
	assert.Equal(t, "first a", merged[1].Content)
	assert.Equal(t, "second q", merged[2].Content)
}

func TestMergeOlderSortsChronologically(t *testing.T) {
	now := time.Now()
	first := chat.NewTurn(chat.RoleUser, "first", chat.WithChatID("u1"))
	first.CreatedAt = now.Add(-2 * time.Hour)
	second := chat.NewTurn(chat.RoleAssistant, "second", chat.WithChatID("a1"))
	second.CreatedAt = now.Add(-1 * time.Hour)

	merged := MergeOlder(nil, []*chat.Turn{second, first})
	require.Len(t, merged, 2)
	assert.Equal(t, "first", merged[0].Content)
	assert.Equal(t, "second", merged[1].Content)
}

func TestMergeOlderKeepsPendingTurns(t *testing.T) {
	pending := chat.NewTurn(chat.RoleAssistant, "")
	displayed := []*chat.Turn{pending}
	older := []*chat.Turn{chat.NewTurn(chat.RoleUser, "old", chat.WithChatID("u1"))}

	merged := MergeOlder(displayed, older)
	require.Len(t, merged, 2)
	assert.Same(t, pending, merged[1])
}

func TestUpdateFromPayloadIgnoresUnknownIdentity(t *testing.T) {
	ts := NewTranscript()
	u := chat.NewTurn(chat.RoleUser, "q", chat.WithChatID("u1"))
	require.NoError(t, ts.Apply(MutateAppendTurns(u)))

	require.NoError(t, ts.Apply(MutateUpdateFromPayload(&chat.TurnPayload{
		ChatID:  "stranger",
		Role:    chat.RoleUser,
		Content: chat.Content{Text: "other"},
	})))

	assert.Equal(t, "q", ts.Turns[0].Content)
}

func TestUpdateTurnFromPayloadAdoptsFreshIdentity(t *testing.T) {
	ts := NewTranscript()
	a := chat.NewTurn(chat.RoleAssistant, "old", chat.WithChatID("a1"))
	require.NoError(t, ts.Apply(MutateAppendTurns(a)))

	require.NoError(t, ts.Apply(MutateUpdateTurnFromPayload(0, &chat.TurnPayload{
		ChatID:                 "a1-v2",
		Role:                   chat.RoleAssistant,
		Content:                chat.Content{Text: "new"},
		AssistantVersionNumber: 2,
		TotalVersions:          2,
	})))

	assert.Equal(t, "a1-v2", ts.Turns[0].ChatID)
	assert.Equal(t, "new", ts.Turns[0].Content)
	assert.Equal(t, 2, ts.Turns[0].AssistantVersionNumber)
}
