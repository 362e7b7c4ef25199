package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

const previewLength = 100

// Version is one immutable content snapshot of a turn. Versions are never
// deleted by client action; switching only changes which one is active.
type Version struct {
	ChatID                 string    `json:"chatId"`
	VersionID              string    `json:"versionId"`
	VersionNumber          int       `json:"versionNumber"`
	UserVersionNumber      int       `json:"userVersionNumber,omitempty"`
	AssistantVersionNumber int       `json:"assistantVersionNumber,omitempty"`
	IsCurrentVersion       bool      `json:"isCurrentVersion"`
	Content                string    `json:"content"`
	ContentPreview         string    `json:"contentPreview"`
	WordCount              int       `json:"wordCount"`
	CharacterCount         int       `json:"characterCount"`
	LinkedUserChatID       string    `json:"linkedUserChatId,omitempty"`
	OriginalChatID         string    `json:"originalChatId,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// NewVersion fills in the derived display fields (preview, word and character
// counts) from the content body.
func NewVersion(chatID string, versionNumber int, content string, createdAt time.Time) Version {
	return Version{
		ChatID:         chatID,
		VersionID:      chatID,
		VersionNumber:  versionNumber,
		Content:        content,
		ContentPreview: Preview(content),
		WordCount:      len(strings.Fields(content)),
		CharacterCount: utf8.RuneCountInString(content),
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}

// ResolveVersionNumber returns the role-specific version number of the turn.
// User turns read the user-version counter, assistant turns the assistant
// one; older payload shapes only carry the generic field, which is used as a
// fallback. A turn always has at least version 1.
func ResolveVersionNumber(t *Turn) int {
	switch t.Role {
	case RoleUser, RoleSystem:
		if t.UserVersionNumber > 0 {
			return t.UserVersionNumber
		}
	case RoleAssistant:
		if t.AssistantVersionNumber > 0 {
			return t.AssistantVersionNumber
		}
	}
	if t.VersionNumber > 0 {
		return t.VersionNumber
	}
	return 1
}

// IsEdited reports the edit marker, independent of the version count.
func IsEdited(t *Turn) bool {
	return t.EditInfo != nil && t.EditInfo.IsEdited
}

// Normalize repairs inconsistent version flags on a payload: a turn claiming
// multiple versions while carrying totalVersions <= 1 is treated as having
// only one.
func Normalize(t *Turn) {
	if t.TotalVersions < 1 {
		t.TotalVersions = 1
	}
	t.HasMultipleVersions = t.TotalVersions > 1
	if t.VersionNumber < 1 && t.UserVersionNumber < 1 && t.AssistantVersionNumber < 1 {
		t.VersionNumber = 1
	}
}

// MarkEdited sets the edit marker with the given timestamp.
func (t *Turn) MarkEdited(at time.Time) {
	if t.EditInfo == nil {
		t.EditInfo = &EditInfo{CanEdit: true}
	}
	t.EditInfo.IsEdited = true
	t.EditInfo.LastEditedAt = &at
}
