package chat

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// EditInfo marks a turn as edited. The marker is independent of the version
// count: an edit that produced no content diff still sets it.
type EditInfo struct {
	CanEdit      bool       `json:"canEdit"`
	IsEdited     bool       `json:"isEdited"`
	LastEditedAt *time.Time `json:"lastEditedAt,omitempty"`
}

// Turn is one position in the transcript. Its identity (LocalID, Index, Role)
// is stable even as the selected version changes; ChatID is empty until the
// backend has assigned one.
type Turn struct {
	LocalID        uuid.UUID `json:"-"`
	ChatID         string    `json:"chatId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Role           Role      `json:"role"`
	Index          int       `json:"messageIndex"`
	Content        string    `json:"content"`
	Model          string    `json:"model,omitempty"`
	IsActive       bool      `json:"isActive"`

	// Version fields. User and assistant tracks number independently;
	// VersionNumber is the legacy generic counter kept for older payloads.
	VersionNumber          int    `json:"versionNumber,omitempty"`
	UserVersionNumber      int    `json:"userVersionNumber,omitempty"`
	AssistantVersionNumber int    `json:"assistantVersionNumber,omitempty"`
	IsCurrentVersion       bool   `json:"isCurrentVersion"`
	TotalVersions          int    `json:"totalVersions,omitempty"`
	HasMultipleVersions    bool   `json:"hasMultipleVersions"`
	LinkedUserChatID       string `json:"linkedUserChatId,omitempty"`
	OriginalChatID         string `json:"originalChatId,omitempty"`

	EditInfo *EditInfo `json:"editInfo,omitempty"`

	PromptTokens     int     `json:"promptTokens,omitempty"`
	CompletionTokens int     `json:"completionTokens,omitempty"`
	CostUSD          float64 `json:"costUSD,omitempty"`
	CostIDR          float64 `json:"costIDR,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type TurnOption func(*Turn)

func WithChatID(chatID string) TurnOption {
	return func(t *Turn) {
		t.ChatID = chatID
	}
}

func WithIndex(index int) TurnOption {
	return func(t *Turn) {
		t.Index = index
	}
}

func WithLinkedUserChatID(chatID string) TurnOption {
	return func(t *Turn) {
		t.LinkedUserChatID = chatID
	}
}

func WithModel(model string) TurnOption {
	return func(t *Turn) {
		t.Model = model
	}
}

func NewTurn(role Role, content string, options ...TurnOption) *Turn {
	ret := &Turn{
		LocalID:          uuid.New(),
		Role:             role,
		Content:          content,
		IsActive:         true,
		IsCurrentVersion: true,
		VersionNumber:    1,
		TotalVersions:    1,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Pending reports whether the turn is still optimistic, i.e. the backend has
// not assigned it a chat id yet.
func (t *Turn) Pending() bool {
	return t.ChatID == ""
}

// Clone returns a shallow copy with its own EditInfo.
func (t *Turn) Clone() *Turn {
	ret := *t
	if t.EditInfo != nil {
		ei := *t.EditInfo
		ret.EditInfo = &ei
	}
	return &ret
}

// Conversation groups a server-side conversation identity. It has no server
// identity until the first completed exchange returns one.
type Conversation struct {
	ConversationID string    `json:"conversationId"`
	Title          string    `json:"title"`
	LastMessageAt  time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}
