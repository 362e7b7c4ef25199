package api

import (
	"encoding/json"

	"github.com/hola0123/z-study-chat/pkg/chat"
)

// HistoryMessage is one prior turn sent along with a completion request.
type HistoryMessage struct {
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
}

// StreamRequest starts a completion stream. ConversationID is empty for the
// first exchange of a conversation; the terminal envelope then carries the
// assigned id.
type StreamRequest struct {
	Model          string           `json:"model"`
	Messages       []HistoryMessage `json:"messages"`
	ChatHistory    []HistoryMessage `json:"chatHistory,omitempty"`
	ConversationID string           `json:"conversationId,omitempty"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Temperature    float64          `json:"temperature,omitempty"`
}

type EditMessageRequest struct {
	Content      string `json:"content"`
	AutoComplete bool   `json:"autoComplete,omitempty"`
	Model        string `json:"model,omitempty"`
}

// BranchInfo describes the version branch an edit created.
type BranchInfo struct {
	NewVersionNumber int  `json:"newVersionNumber"`
	TotalVersions    int  `json:"totalVersions"`
	BranchedFromChat bool `json:"branchedFromChat,omitempty"`
	DeactivatedChats int  `json:"deactivatedChats,omitempty"`
	RegeneratedChats int  `json:"regeneratedChats,omitempty"`
}

type EditMessageResponse struct {
	UpdatedChat *chat.TurnPayload `json:"updatedChat"`
	BranchInfo  *BranchInfo       `json:"branchInfo,omitempty"`
}

type RegenerateRequest struct {
	Model string `json:"model,omitempty"`
}

// RetryResponse is the non-streaming regeneration result.
type RetryResponse struct {
	NewAssistantChat *chat.TurnPayload `json:"newAssistantChat"`
	Usage            *Usage            `json:"usage,omitempty"`
	Cost             *Cost             `json:"cost,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type Cost struct {
	USD float64 `json:"usd"`
	IDR float64 `json:"idr"`
}

// SwitchVersionRequest selects a version either relatively ("prev"/"next")
// or absolutely. Exactly one of Direction and VersionNumber is set.
type SwitchVersionRequest struct {
	Direction     string `json:"direction,omitempty"`
	VersionNumber int    `json:"versionNumber,omitempty"`
	VersionType   string `json:"versionType,omitempty"`
}

type VersionCounters struct {
	CurrentVersion int `json:"currentVersion"`
	TotalVersions  int `json:"totalVersions"`
}

type SwitchVersionResponse struct {
	SwitchedTo         *chat.TurnPayload   `json:"switchedToVersion"`
	ConversationThread []*chat.TurnPayload `json:"conversationThread,omitempty"`
	VersionInfo        *VersionCounters    `json:"versionInfo,omitempty"`
}

type VersionsResponse struct {
	Versions       []*chat.VersionPayload `json:"versions"`
	VersionType    string                 `json:"versionType,omitempty"`
	TotalVersions  int                    `json:"totalVersions,omitempty"`
	CurrentVersion int                    `json:"currentVersion,omitempty"`
}

type VersionComparison struct {
	ChatID   string               `json:"chatId"`
	Version1 *chat.VersionPayload `json:"version1"`
	Version2 *chat.VersionPayload `json:"version2"`
}

// PageOptions filter a conversation-chats fetch. The zero value asks for the
// default page of active, current-version rows in ascending order.
type PageOptions struct {
	Limit              int
	LastEvaluatedKey   string
	SortOrder          string
	IncludeInactive    bool
	IncludeAllVersions bool
}

type ChatsPage struct {
	Chats            []*chat.TurnPayload `json:"chats"`
	LastEvaluatedKey string              `json:"lastEvaluatedKey,omitempty"`
	HasMore          bool                `json:"hasMore"`
}

type ConversationsPage struct {
	Conversations []*chat.Conversation `json:"conversations"`
	Total         int                  `json:"total,omitempty"`
	Page          int                  `json:"page,omitempty"`
}

// envelope is the {success, message, data} wrapper every non-stream endpoint
// responds with.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
