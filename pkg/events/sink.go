package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// EventSink receives events emitted while a transcript mutates.
type EventSink interface {
	PublishEvent(event Event) error
}

// WatermillSink publishes events to a watermill Publisher, serialized as
// JSON, so they can be distributed to any number of subscribers.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
	ctx       context.Context
}

type WatermillSinkOption func(*WatermillSink)

// WithMessageContext attaches ctx to every outgoing message, so publisher
// decorators can read correlation values from it.
func WithMessageContext(ctx context.Context) WatermillSinkOption {
	return func(w *WatermillSink) {
		w.ctx = ctx
	}
}

func NewWatermillSink(publisher message.Publisher, topic string, options ...WatermillSinkOption) *WatermillSink {
	ret := &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (w *WatermillSink) PublishEvent(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event to JSON")
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if w.ctx != nil {
		msg.SetContext(w.ctx)
	}

	err = w.publisher.Publish(w.topic, msg)
	if err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event to watermill")
		return err
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("Published event to watermill")
	return nil
}

var _ EventSink = (*WatermillSink)(nil)

// NullSink drops every event. Useful for tests and non-interactive runs.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error {
	return nil
}

var _ EventSink = NullSink{}
