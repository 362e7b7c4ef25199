package transcript

import (
	"fmt"

	"github.com/hola0123/z-study-chat/pkg/chat"
)

// Transcript is the canonical client-side view of one conversation: the
// ordered list of currently displayed turns plus the pagination cursor into
// older history. Every change goes through Apply so the version counter
// tracks each mutation.
type Transcript struct {
	ConversationID string
	Title          string
	Turns          []*chat.Turn

	// pagination cursor into older history
	LastEvaluatedKey string
	HasMore          bool

	Version int64
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Mutation represents a deterministic change to the transcript.
type Mutation interface {
	Apply(ts *Transcript) error
	Name() string
}

// Apply applies a single mutation and increments the version.
func (ts *Transcript) Apply(m Mutation) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	if m == nil {
		return fmt.Errorf("mutation is nil")
	}
	if err := m.Apply(ts); err != nil {
		return fmt.Errorf("mutation %s failed: %w", m.Name(), err)
	}
	ts.Version++
	return nil
}

// ApplyAll applies multiple mutations sequentially.
func (ts *Transcript) ApplyAll(muts ...Mutation) error {
	for _, m := range muts {
		if err := ts.Apply(m); err != nil {
			return err
		}
	}
	return nil
}

// TurnAt returns the turn at the given index, or nil when out of range.
func (ts *Transcript) TurnAt(index int) *chat.Turn {
	if index < 0 || index >= len(ts.Turns) {
		return nil
	}
	return ts.Turns[index]
}

// FindByChatID returns the displayed turn with the given backend identity.
func (ts *Transcript) FindByChatID(chatID string, role chat.Role) *chat.Turn {
	for _, t := range ts.Turns {
		if t.ChatID == chatID && t.Role == role {
			return t
		}
	}
	return nil
}

// Snapshot returns a copy of the turn slice with cloned turns, safe to hand
// out while the transcript keeps mutating.
func (ts *Transcript) Snapshot() []*chat.Turn {
	ret := make([]*chat.Turn, len(ts.Turns))
	for i, t := range ts.Turns {
		ret[i] = t.Clone()
	}
	return ret
}

func (ts *Transcript) reindex() {
	for i, t := range ts.Turns {
		t.Index = i
	}
}
