package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentUnmarshalsBothShapes(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`"plain text"`), &c))
	assert.False(t, c.IsExchange())
	assert.Equal(t, "plain text", c.ForRole(RoleUser))
	assert.Equal(t, "plain text", c.ForRole(RoleAssistant))

	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"the question","response":"the answer"}`), &c))
	assert.True(t, c.IsExchange())
	assert.Equal(t, "the question", c.ForRole(RoleUser))
	assert.Equal(t, "the answer", c.ForRole(RoleAssistant))
	assert.Equal(t, "the question", c.Body())
}

func TestContentRejectsOtherShapes(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`42`), &c)
	require.Error(t, err)
}

func TestTurnsFromPayloadSingleTurnRow(t *testing.T) {
	var p TurnPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"chatId": "u1",
		"role": "user",
		"content": "hello",
		"userVersionNumber": 2,
		"totalVersions": 2,
		"isCurrentVersion": true
	}`), &p))

	turns := TurnsFromPayload(&p)
	require.Len(t, turns, 1)

	turn := turns[0]
	assert.Equal(t, RoleUser, turn.Role)
	assert.Equal(t, "hello", turn.Content)
	assert.Equal(t, 2, turn.UserVersionNumber)
	assert.True(t, turn.HasMultipleVersions)
}

func TestTurnsFromPayloadExchangeRowExpandsToLinkedPair(t *testing.T) {
	var p TurnPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"chatId": "x1",
		"content": {"prompt": "the question", "response": "the answer"},
		"userVersion": 1,
		"assistantVersion": 3,
		"isLatestVersion": true
	}`), &p))

	turns := TurnsFromPayload(&p)
	require.Len(t, turns, 2)

	user := turns[0]
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "the question", user.Content)
	assert.Equal(t, 1, user.UserVersionNumber)

	asst := turns[1]
	assert.Equal(t, RoleAssistant, asst.Role)
	assert.Equal(t, "the answer", asst.Content)
	assert.Equal(t, 3, asst.AssistantVersionNumber)
	assert.Equal(t, user.ChatID, asst.LinkedUserChatID)
}

func TestTurnsFromPayloadsDropsInactiveRows(t *testing.T) {
	inactive := false
	payloads := []*TurnPayload{
		{ChatID: "u1", Role: RoleUser, Content: Content{Text: "keep"}},
		{ChatID: "u2", Role: RoleUser, Content: Content{Text: "drop"}, IsActive: &inactive},
		{ChatID: "a1", Role: RoleAssistant, Content: Content{Text: "keep too"}},
	}

	turns := TurnsFromPayloads(payloads, 0)
	require.Len(t, turns, 2)
	assert.Equal(t, 0, turns[0].Index)
	assert.Equal(t, 1, turns[1].Index)
	assert.Equal(t, "keep too", turns[1].Content)
}

func TestVersionFromPayloadDerivesDisplayFields(t *testing.T) {
	now := time.Now()
	v := VersionFromPayload(&VersionPayload{
		ChatID:           "a1",
		AssistantVersion: 2,
		IsLatestVersion:  true,
		Content:          Content{Response: "some longer answer body", object: true},
		LinkedUserChatID: "u1",
		CreatedAt:        now,
	})

	assert.Equal(t, "a1", v.ChatID)
	assert.Equal(t, 2, v.VersionNumber)
	assert.Equal(t, 2, v.AssistantVersionNumber)
	assert.True(t, v.IsCurrentVersion)
	assert.Equal(t, "some longer answer body", v.Content)
	assert.Equal(t, 4, v.WordCount)
	assert.Equal(t, "u1", v.LinkedUserChatID)
	assert.Equal(t, "a1", v.OriginalChatID)
}
