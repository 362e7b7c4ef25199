package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStart to EventTypeFinal cover one completion stream
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeError             EventType = "error"
	EventTypeInterrupt         EventType = "interrupt"

	// Transcript lifecycle events outside of streaming
	EventTypeConversationCreated EventType = "conversation-created"
	EventTypeVersionSwitched     EventType = "version-switched"
	EventTypeMessageEdited       EventType = "message-edited"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Error_    error         `json:"error,omitempty"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw JSON the event was deserialized from (see NewEventFromJson)
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))

	if e.Error_ != nil {
		ev.Err(e.Error_)
	}

	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Error() error {
	return e.Error_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

var _ Event = &EventImpl{}

type EventStreamStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventStreamStart {
	return &EventStreamStart{
		EventImpl: EventImpl{
			Type_:     EventTypeStart,
			Metadata_: metadata,
		},
	}
}

var _ Event = &EventStreamStart{}

// EventPartialCompletion carries one delta of streamed assistant text.
// Completion is the accumulated text so far.
type EventPartialCompletion struct {
	EventImpl
	Delta      string `json:"delta"`
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl: EventImpl{
			Type_:     EventTypePartialCompletion,
			Metadata_: metadata,
		},
		Delta:      delta,
		Completion: completion,
	}
}

var _ Event = &EventPartialCompletion{}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{
			Type_:     EventTypeFinal,
			Metadata_: metadata,
		},
		Text: text,
	}
}

var _ Event = &EventFinal{}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl: EventImpl{
			Type_:     EventTypeError,
			Metadata_: metadata,
		},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventError{}

type EventInterrupt struct {
	EventImpl
	Text string `json:"text"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{
			Type_:     EventTypeInterrupt,
			Metadata_: metadata,
		},
		Text: text,
	}
}

var _ Event = &EventInterrupt{}

type EventConversationCreated struct {
	EventImpl
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
}

func NewConversationCreatedEvent(metadata EventMetadata, conversationID string, title string) *EventConversationCreated {
	return &EventConversationCreated{
		EventImpl: EventImpl{
			Type_:     EventTypeConversationCreated,
			Metadata_: metadata,
		},
		ConversationID: conversationID,
		Title:          title,
	}
}

var _ Event = &EventConversationCreated{}

type EventVersionSwitched struct {
	EventImpl
	ChatID         string `json:"chatId"`
	VersionType    string `json:"versionType"`
	CurrentVersion int    `json:"currentVersion"`
	TotalVersions  int    `json:"totalVersions"`
}

func NewVersionSwitchedEvent(metadata EventMetadata, chatID string, versionType string, currentVersion int, totalVersions int) *EventVersionSwitched {
	return &EventVersionSwitched{
		EventImpl: EventImpl{
			Type_:     EventTypeVersionSwitched,
			Metadata_: metadata,
		},
		ChatID:         chatID,
		VersionType:    versionType,
		CurrentVersion: currentVersion,
		TotalVersions:  totalVersions,
	}
}

var _ Event = &EventVersionSwitched{}

type EventMessageEdited struct {
	EventImpl
	ChatID        string `json:"chatId"`
	NewVersion    int    `json:"newVersion"`
	TotalVersions int    `json:"totalVersions"`
}

func NewMessageEditedEvent(metadata EventMetadata, chatID string, newVersion int, totalVersions int) *EventMessageEdited {
	return &EventMessageEdited{
		EventImpl: EventImpl{
			Type_:     EventTypeMessageEdited,
			Metadata_: metadata,
		},
		ChatID:        chatID,
		NewVersion:    newVersion,
		TotalVersions: totalVersions,
	}
}

var _ Event = &EventMessageEdited{}

// EventMetadata travels with every watermill message published for a chat
// exchange.
type EventMetadata struct {
	ID             uuid.UUID `json:"message_id" yaml:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	ChatID         string    `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	Model          string    `json:"model,omitempty" yaml:"model,omitempty"`
	Usage          *Usage    `json:"usage,omitempty" yaml:"usage,omitempty"`
	Cost           *Cost     `json:"cost,omitempty" yaml:"cost,omitempty"`
	DurationMs     *int64    `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.ConversationID != "" {
		e.Str("conversation_id", em.ConversationID)
	}
	if em.ChatID != "" {
		e.Str("chat_id", em.ChatID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.Usage != nil {
		e.Int("prompt_tokens", em.Usage.PromptTokens)
		e.Int("completion_tokens", em.Usage.CompletionTokens)
	}
	if em.Cost != nil {
		e.Float64("cost_usd", em.Cost.USD)
	}
	if em.DurationMs != nil {
		e.Int64("duration_ms", *em.DurationMs)
	}
}

func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}

	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		ret, ok := ToTypedEvent[EventStreamStart](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventStreamStart")
		}
		return ret, nil
	case EventTypePartialCompletion:
		ret, ok := ToTypedEvent[EventPartialCompletion](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventPartialCompletion")
		}
		return ret, nil
	case EventTypeFinal:
		ret, ok := ToTypedEvent[EventFinal](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventFinal")
		}
		return ret, nil
	case EventTypeError:
		ret, ok := ToTypedEvent[EventError](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventError")
		}
		return ret, nil
	case EventTypeInterrupt:
		ret, ok := ToTypedEvent[EventInterrupt](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventInterrupt")
		}
		return ret, nil
	case EventTypeConversationCreated:
		ret, ok := ToTypedEvent[EventConversationCreated](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventConversationCreated")
		}
		return ret, nil
	case EventTypeVersionSwitched:
		ret, ok := ToTypedEvent[EventVersionSwitched](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventVersionSwitched")
		}
		return ret, nil
	case EventTypeMessageEdited:
		ret, ok := ToTypedEvent[EventMessageEdited](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventMessageEdited")
		}
		return ret, nil
	}

	return e, nil
}

func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	err := json.Unmarshal(e.Payload(), &ret)
	if err != nil {
		return nil, false
	}

	return ret, true
}
