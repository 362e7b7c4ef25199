package transcript

import (
	"fmt"
	"time"

	"github.com/hola0123/z-study-chat/pkg/chat"
	"github.com/hola0123/z-study-chat/pkg/streaming"
)

type appendTurnsMutation struct {
	turns []*chat.Turn
}

func (m appendTurnsMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	for _, t := range m.turns {
		t.Index = len(ts.Turns)
		ts.Turns = append(ts.Turns, t)
	}
	return nil
}

func (m appendTurnsMutation) Name() string { return "append_turns" }

// MutateAppendTurns appends turns at the tail, assigning contiguous indices.
func MutateAppendTurns(turns ...*chat.Turn) Mutation {
	return appendTurnsMutation{turns: turns}
}

type replaceTurnMutation struct {
	index int
	turn  *chat.Turn
}

func (m replaceTurnMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	if m.index < 0 || m.index >= len(ts.Turns) {
		return fmt.Errorf("index %d out of range", m.index)
	}
	m.turn.Index = m.index
	ts.Turns[m.index] = m.turn
	return nil
}

func (m replaceTurnMutation) Name() string { return "replace_turn" }

// MutateReplaceTurn swaps the turn at index for the given one, keeping the
// position.
func MutateReplaceTurn(index int, turn *chat.Turn) Mutation {
	return replaceTurnMutation{index: index, turn: turn}
}

type truncateFromMutation struct {
	index int
}

func (m truncateFromMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	if m.index < 0 || m.index > len(ts.Turns) {
		return fmt.Errorf("index %d out of range", m.index)
	}
	ts.Turns = ts.Turns[:m.index]
	return nil
}

func (m truncateFromMutation) Name() string { return "truncate_from" }

// MutateTruncateFrom drops the turn at index and everything after it.
func MutateTruncateFrom(index int) Mutation {
	return truncateFromMutation{index: index}
}

type restoreTurnsMutation struct {
	turns []*chat.Turn
}

func (m restoreTurnsMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	ts.Turns = m.turns
	ts.reindex()
	return nil
}

func (m restoreTurnsMutation) Name() string { return "restore_turns" }

// MutateRestoreTurns replaces the whole turn slice, used to roll back a
// failed operation to the snapshot taken before it started.
func MutateRestoreTurns(turns []*chat.Turn) Mutation {
	return restoreTurnsMutation{turns: turns}
}

type setContentMutation struct {
	index   int
	content string
}

func (m setContentMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	t := ts.TurnAt(m.index)
	if t == nil {
		return fmt.Errorf("index %d out of range", m.index)
	}
	t.Content = m.content
	return nil
}

func (m setContentMutation) Name() string { return "set_content" }

// MutateSetContent replaces the displayed content of the turn at index.
func MutateSetContent(index int, content string) Mutation {
	return setContentMutation{index: index, content: content}
}

type appendDeltaMutation struct {
	index int
	delta string
}

func (m appendDeltaMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	t := ts.TurnAt(m.index)
	if t == nil {
		return fmt.Errorf("index %d out of range", m.index)
	}
	if t.Role != chat.RoleAssistant {
		return fmt.Errorf("turn %d is not an assistant turn", m.index)
	}
	t.Content += m.delta
	return nil
}

func (m appendDeltaMutation) Name() string { return "append_delta" }

// MutateAppendDelta accumulates streamed text onto the assistant turn at
// index.
func MutateAppendDelta(index int, delta string) Mutation {
	return appendDeltaMutation{index: index, delta: delta}
}

type prependOlderMutation struct {
	older []*chat.Turn
}

func (m prependOlderMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	ts.Turns = MergeOlder(ts.Turns, m.older)
	ts.reindex()
	return nil
}

func (m prependOlderMutation) Name() string { return "prepend_older" }

// MutatePrependOlder merges an older history page before the displayed
// turns. Turns already displayed are kept, incoming duplicates dropped.
func MutatePrependOlder(older []*chat.Turn) Mutation {
	return prependOlderMutation{older: older}
}

type setConversationMutation struct {
	conversationID string
	title          string
}

func (m setConversationMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	ts.ConversationID = m.conversationID
	if m.title != "" {
		ts.Title = m.title
	}
	for _, t := range ts.Turns {
		if t.ConversationID == "" {
			t.ConversationID = m.conversationID
		}
	}
	return nil
}

func (m setConversationMutation) Name() string { return "set_conversation" }

// MutateSetConversation records the server-assigned conversation identity.
func MutateSetConversation(conversationID string, title string) Mutation {
	return setConversationMutation{conversationID: conversationID, title: title}
}

type updateFromPayloadMutation struct {
	payload *chat.TurnPayload
	index   int
}

func (m updateFromPayloadMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	if m.payload == nil {
		return fmt.Errorf("payload is nil")
	}
	for _, incoming := range chat.TurnsFromPayload(m.payload) {
		t := ts.FindByChatID(incoming.ChatID, incoming.Role)
		if t == nil && m.index >= 0 {
			// switching a version can hand back a row under a fresh
			// identity for a displayed position
			if at := ts.TurnAt(m.index); at != nil && at.Role == incoming.Role {
				t = at
				t.ChatID = incoming.ChatID
			}
		}
		if t == nil {
			continue
		}
		t.Content = incoming.Content
		t.VersionNumber = incoming.VersionNumber
		t.UserVersionNumber = incoming.UserVersionNumber
		t.AssistantVersionNumber = incoming.AssistantVersionNumber
		t.IsCurrentVersion = incoming.IsCurrentVersion
		t.TotalVersions = incoming.TotalVersions
		t.HasMultipleVersions = incoming.HasMultipleVersions
		if incoming.LinkedUserChatID != "" {
			t.LinkedUserChatID = incoming.LinkedUserChatID
		}
		if incoming.EditInfo != nil {
			t.EditInfo = incoming.EditInfo
		}
		chat.Normalize(t)
	}
	return nil
}

func (m updateFromPayloadMutation) Name() string { return "update_from_payload" }

// MutateUpdateFromPayload folds an authoritative wire row into the displayed
// turn with the same backend identity. Unknown identities are ignored.
func MutateUpdateFromPayload(payload *chat.TurnPayload) Mutation {
	return updateFromPayloadMutation{payload: payload, index: -1}
}

// MutateUpdateTurnFromPayload is MutateUpdateFromPayload with a positional
// fallback: when no displayed turn carries the row's identity, the turn at
// index adopts it.
func MutateUpdateTurnFromPayload(index int, payload *chat.TurnPayload) Mutation {
	return updateFromPayloadMutation{payload: payload, index: index}
}

type reconcileExchangeMutation struct {
	userIndex int
	asstIndex int
	final     *streaming.Final
}

func (m reconcileExchangeMutation) Apply(ts *Transcript) error {
	if ts == nil {
		return fmt.Errorf("transcript is nil")
	}
	user := ts.TurnAt(m.userIndex)
	asst := ts.TurnAt(m.asstIndex)
	if asst == nil {
		return ErrNoPendingExchange
	}
	if user != nil && user.Role != chat.RoleUser {
		user = nil
	}
	if m.final == nil {
		return fmt.Errorf("terminal envelope is nil")
	}

	if nc := m.final.NewChats; nc != nil {
		if uc := nc.UserChat; uc != nil && user != nil {
			user.ChatID = uc.ChatID
			if uc.UserVersionNumber > 0 {
				user.UserVersionNumber = uc.UserVersionNumber
			}
		}
		if ac := nc.AssistantChat; ac != nil {
			asst.ChatID = ac.ChatID
			if ac.AssistantVersionNumber > 0 {
				asst.AssistantVersionNumber = ac.AssistantVersionNumber
			}
			asst.LinkedUserChatID = ac.LinkedUserChatID
		}
	}
	if asst.LinkedUserChatID == "" && user != nil {
		asst.LinkedUserChatID = user.ChatID
	}

	if em := m.final.EditedMessage; em != nil && user != nil {
		if em.ChatID != "" {
			user.ChatID = em.ChatID
		}
		if em.Content != "" {
			user.Content = em.Content
		}
		if em.UserVersionNumber > 0 {
			user.UserVersionNumber = em.UserVersionNumber
		}
		if em.TotalVersions > 0 {
			user.TotalVersions = em.TotalVersions
		}
		user.MarkEdited(time.Now())
	}

	if am := m.final.AssistantMessage; am != nil {
		if am.ChatID != "" {
			asst.ChatID = am.ChatID
		}
		if am.AssistantVersionNumber > 0 {
			asst.AssistantVersionNumber = am.AssistantVersionNumber
		}
		if am.TotalVersions > 0 {
			asst.TotalVersions = am.TotalVersions
		}
		if am.LinkedUserChatID != "" {
			asst.LinkedUserChatID = am.LinkedUserChatID
		}
		asst.IsCurrentVersion = true
	}

	if u := m.final.Usage; u != nil {
		asst.PromptTokens = u.PromptTokens
		asst.CompletionTokens = u.CompletionTokens
	}
	if c := m.final.Cost; c != nil {
		asst.CostUSD = c.USD
		asst.CostIDR = c.IDR
	}

	if conv := m.final.Conversation; conv != nil {
		if user != nil {
			user.ConversationID = conv.ConversationID
		}
		asst.ConversationID = conv.ConversationID
	}

	if user != nil {
		chat.Normalize(user)
	}
	chat.Normalize(asst)
	return nil
}

func (m reconcileExchangeMutation) Name() string { return "reconcile_exchange" }

// MutateReconcileExchange folds the terminal stream envelope into the
// optimistic user/assistant pair, giving both turns their backend identity
// and version counters in one step.
func MutateReconcileExchange(userIndex int, asstIndex int, final *streaming.Final) Mutation {
	return reconcileExchangeMutation{userIndex: userIndex, asstIndex: asstIndex, final: final}
}
