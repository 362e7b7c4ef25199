package streaming

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleStream = `data: {"choices":[{"delta":{"content":"Hel"}}]}
data: {"choices":[{"delta":{"content":"lo"}}]}
data: {"usage":{"prompt_tokens":12,"completion_tokens":2},"newChats":{"userChat":{"chatId":"u1","role":"user","userVersionNumber":1},"assistantChat":{"chatId":"a1","role":"assistant","assistantVersionNumber":1,"linkedUserChatId":"u1"}},"conversation":{"conversationId":"c1","title":"Hello"}}
data: [DONE]
`

func decodeAll(t *testing.T, d *Decoder, input string, chunkSize int) []Event {
	t.Helper()

	var events []Event
	for len(input) > 0 {
		n := chunkSize
		if n > len(input) {
			n = len(input)
		}
		events = append(events, d.Decode([]byte(input[:n]))...)
		input = input[n:]
	}
	events = append(events, d.Finish()...)
	return events
}

func TestDecodeSimpleStream(t *testing.T) {
	d := NewDecoder()
	events := decodeAll(t, d, simpleStream, len(simpleStream))

	require.Len(t, events, 3)
	assert.Equal(t, EventKindDelta, events[0].Kind)
	assert.Equal(t, "Hel", events[0].Text)
	assert.Equal(t, EventKindDelta, events[1].Kind)
	assert.Equal(t, "lo", events[1].Text)

	final := events[2]
	require.Equal(t, EventKindFinal, final.Kind)
	require.NotNil(t, final.Final)
	require.NotNil(t, final.Final.NewChats)
	assert.Equal(t, "u1", final.Final.NewChats.UserChat.ChatID)
	assert.Equal(t, "a1", final.Final.NewChats.AssistantChat.ChatID)
	assert.Equal(t, "u1", final.Final.NewChats.AssistantChat.LinkedUserChatID)
	assert.Equal(t, "c1", final.Final.Conversation.ConversationID)
	assert.Equal(t, 12, final.Final.Usage.PromptTokens)

	assert.True(t, d.Done())
	assert.Empty(t, d.ParseErrors())
}

func TestDecodeIsChunkingInvariant(t *testing.T) {
	whole := decodeAll(t, NewDecoder(), simpleStream, len(simpleStream))
	byteWise := decodeAll(t, NewDecoder(), simpleStream, 1)
	sevens := decodeAll(t, NewDecoder(), simpleStream, 7)

	assert.Equal(t, whole, byteWise)
	assert.Equal(t, whole, sevens)
}

func TestDecodeFusedRecord(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":"tail"}}],"usage":{"prompt_tokens":1,"completion_tokens":1}}
data: [DONE]
`
	events := decodeAll(t, NewDecoder(), input, len(input))

	require.Len(t, events, 2)
	assert.Equal(t, EventKindDelta, events[0].Kind)
	assert.Equal(t, "tail", events[0].Text)
	assert.Equal(t, EventKindFinal, events[1].Kind)
	assert.Equal(t, 1, events[1].Final.Usage.CompletionTokens)
}

func TestDecodeDoubledPrefix(t *testing.T) {
	input := `data: data: {"choices":[{"delta":{"content":"x"}}]}
data: [DONE]
`
	events := decodeAll(t, NewDecoder(), input, len(input))

	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Text)
}

func TestDecodeSkipsMalformedRecords(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":"a"}}]}
data: {not json at all
data: {"choices":[{"delta":{"content":"b"}}]}
data: [DONE]
`
	d := NewDecoder()
	events := decodeAll(t, d, input, len(input))

	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Text)
	assert.Equal(t, "b", events[1].Text)
	require.Len(t, d.ParseErrors(), 1)
	assert.Contains(t, d.ParseErrors()[0].Line, "not json")
}

func TestDecodeEmptyDeltaEmitsNothing(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":""}}]}
data: [DONE]
`
	events := decodeAll(t, NewDecoder(), input, len(input))
	assert.Empty(t, events)
}

func TestDecodeIgnoresDataAfterSentinel(t *testing.T) {
	input := `data: [DONE]
data: {"choices":[{"delta":{"content":"ghost"}}]}
`
	d := NewDecoder()
	events := decodeAll(t, d, input, len(input))

	assert.Empty(t, events)
	assert.True(t, d.Done())
}

func TestDecodeFinishFlushesTrailingLine(t *testing.T) {
	d := NewDecoder()
	events := d.Decode([]byte(`data: {"choices":[{"delta":{"content":"no newline"}}]}`))
	assert.Empty(t, events)

	events = d.Finish()
	require.Len(t, events, 1)
	assert.Equal(t, "no newline", events[0].Text)
}

func TestReadStreamReturnsLastFinal(t *testing.T) {
	input := `data: {"usage":{"prompt_tokens":1,"completion_tokens":1}}
data: {"usage":{"prompt_tokens":2,"completion_tokens":2}}
data: [DONE]
`
	var got []Event
	final, err := ReadStream(context.Background(), strings.NewReader(input), func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, 2, final.Usage.PromptTokens)
	assert.Len(t, got, 2)
}

func TestReadStreamHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadStream(ctx, strings.NewReader(simpleStream), nil)
	require.ErrorIs(t, err, context.Canceled)
}
