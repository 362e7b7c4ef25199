package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartialCompletionRoundTrip(t *testing.T) {
	meta := EventMetadata{
		ID:             uuid.New(),
		ConversationID: "c1",
		Model:          "gpt-4o",
	}
	ev := NewPartialCompletionEvent(meta, "delta", "so far delta")

	b, err := json.Marshal(ev)
	require.NoError(t, err)

	parsed, err := NewEventFromJson(b)
	require.NoError(t, err)

	partial, ok := parsed.(*EventPartialCompletion)
	require.True(t, ok)
	assert.Equal(t, "delta", partial.Delta)
	assert.Equal(t, "so far delta", partial.Completion)
	assert.Equal(t, meta.ID, partial.Metadata().ID)
	assert.Equal(t, "c1", partial.Metadata().ConversationID)
}

func TestFinalEventCarriesUsageAndCost(t *testing.T) {
	meta := EventMetadata{
		ID:    uuid.New(),
		Usage: &Usage{PromptTokens: 10, CompletionTokens: 4},
		Cost:  &Cost{USD: 0.0005, IDR: 8.2},
	}
	b, err := json.Marshal(NewFinalEvent(meta, "answer"))
	require.NoError(t, err)

	parsed, err := NewEventFromJson(b)
	require.NoError(t, err)

	final, ok := parsed.(*EventFinal)
	require.True(t, ok)
	assert.Equal(t, "answer", final.Text)
	require.NotNil(t, final.Metadata().Usage)
	assert.Equal(t, 10, final.Metadata().Usage.PromptTokens)
	require.NotNil(t, final.Metadata().Cost)
	assert.InDelta(t, 8.2, final.Metadata().Cost.IDR, 1e-9)
}

func TestVersionSwitchedRoundTrip(t *testing.T) {
	b, err := json.Marshal(NewVersionSwitchedEvent(EventMetadata{ID: uuid.New()}, "a1", "assistant", 1, 3))
	require.NoError(t, err)

	parsed, err := NewEventFromJson(b)
	require.NoError(t, err)

	switched, ok := parsed.(*EventVersionSwitched)
	require.True(t, ok)
	assert.Equal(t, "a1", switched.ChatID)
	assert.Equal(t, "assistant", switched.VersionType)
	assert.Equal(t, 1, switched.CurrentVersion)
	assert.Equal(t, 3, switched.TotalVersions)
}

func TestUnknownEventTypeFallsBackToImpl(t *testing.T) {
	parsed, err := NewEventFromJson([]byte(`{"type":"something-else","meta":{"message_id":"00000000-0000-0000-0000-000000000000"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventType("something-else"), parsed.Type())
}
