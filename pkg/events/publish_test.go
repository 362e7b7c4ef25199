package events

import (
	"context"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hola0123/z-study-chat/pkg/helpers"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs map[string][]*message.Message
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{msgs: map[string][]*message.Message{}}
}

func (p *capturePublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs[topic] = append(p.msgs[topic], messages...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestPublisherManagerFansOutWithSequenceNumbers(t *testing.T) {
	pm := NewPublisherManager()
	first := newCapturePublisher()
	second := newCapturePublisher()
	pm.SubscribePublisher("chat", first)
	pm.SubscribePublisher("chat", second)

	require.NoError(t, pm.Publish(NewStartEvent(EventMetadata{ID: uuid.New()})))
	pm.PublishBlind(NewFinalEvent(EventMetadata{ID: uuid.New()}, "done"))

	require.Len(t, first.msgs["chat"], 2)
	require.Len(t, second.msgs["chat"], 2)
	assert.Equal(t, "0", first.msgs["chat"][0].Metadata.Get("sequence_number"))
	assert.Equal(t, "1", first.msgs["chat"][1].Metadata.Get("sequence_number"))

	parsed, err := NewEventFromJson(first.msgs["chat"][0].Payload)
	require.NoError(t, err)
	assert.Equal(t, EventTypeStart, parsed.Type())
}

func TestWatermillSinkStampsCorrelationID(t *testing.T) {
	capture := newCapturePublisher()
	ctx := helpers.ContextWithCorrelationID(context.Background(), "corr-1")

	sink := NewWatermillSink(
		helpers.CorrelationPublisherDecorator{Publisher: capture},
		"chat",
		WithMessageContext(ctx),
	)

	require.NoError(t, sink.PublishEvent(NewStartEvent(EventMetadata{ID: uuid.New()})))

	require.Len(t, capture.msgs["chat"], 1)
	assert.Equal(t, "corr-1", capture.msgs["chat"][0].Metadata.Get("correlation_id"))
}
