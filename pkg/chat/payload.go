package chat

import (
	"time"

	"github.com/google/uuid"
)

// TurnPayload is the wire row returned by the conversation-fetch endpoint.
// Two API generations are in the wild: the current one carries a role and a
// string content per row, the previous one stores a whole exchange per row
// (content is a {prompt, response} object and the version counters live in
// userVersion/assistantVersion). Both are adapted here into canonical Turns;
// the reducer never sees the raw rows.
type TurnPayload struct {
	ChatID         string  `json:"chatId"`
	ConversationID string  `json:"conversationId,omitempty"`
	Role           Role    `json:"role,omitempty"`
	Content        Content `json:"content"`
	Model          string  `json:"model,omitempty"`
	MessageIndex   int     `json:"messageIndex,omitempty"`
	IsActive       *bool   `json:"isActive,omitempty"`

	VersionNumber          int    `json:"versionNumber,omitempty"`
	UserVersionNumber      int    `json:"userVersionNumber,omitempty"`
	AssistantVersionNumber int    `json:"assistantVersionNumber,omitempty"`
	UserVersion            int    `json:"userVersion,omitempty"`
	AssistantVersion       int    `json:"assistantVersion,omitempty"`
	IsCurrentVersion       *bool  `json:"isCurrentVersion,omitempty"`
	IsLatestVersion        *bool  `json:"isLatestVersion,omitempty"`
	HasMultipleVersions    bool   `json:"hasMultipleVersions,omitempty"`
	TotalVersions          int    `json:"totalVersions,omitempty"`
	LinkedUserChatID       string `json:"linkedUserChatId,omitempty"`
	OriginalChatID         string `json:"originalChatId,omitempty"`
	VersionType            string `json:"versionType,omitempty"`

	IsEdited bool       `json:"isEdited,omitempty"`
	EditInfo *EditInfo  `json:"editInfo,omitempty"`
	EditedAt *time.Time `json:"editedAt,omitempty"`

	PromptTokens     int     `json:"promptTokens,omitempty"`
	CompletionTokens int     `json:"completionTokens,omitempty"`
	CostUSD          float64 `json:"costUSD,omitempty"`
	CostIDR          float64 `json:"costIDR,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

func (p *TurnPayload) current() bool {
	if p.IsCurrentVersion != nil {
		return *p.IsCurrentVersion
	}
	if p.IsLatestVersion != nil {
		return *p.IsLatestVersion
	}
	return true
}

func (p *TurnPayload) active() bool {
	if p.IsActive == nil {
		return true
	}
	return *p.IsActive
}

func (p *TurnPayload) userVersion() int {
	if p.UserVersionNumber > 0 {
		return p.UserVersionNumber
	}
	return p.UserVersion
}

func (p *TurnPayload) assistantVersion() int {
	if p.AssistantVersionNumber > 0 {
		return p.AssistantVersionNumber
	}
	return p.AssistantVersion
}

func (p *TurnPayload) editInfo() *EditInfo {
	if p.EditInfo != nil {
		return p.EditInfo
	}
	if p.IsEdited {
		return &EditInfo{CanEdit: true, IsEdited: true, LastEditedAt: p.EditedAt}
	}
	return nil
}

// TurnsFromPayload expands one wire row into canonical turns. A single-turn
// row yields one turn; an exchange row yields a linked user/assistant pair.
// Assistant turns are always linked to the user version they respond to,
// regardless of which versioning scheme the backend used for the row.
func TurnsFromPayload(p *TurnPayload) []*Turn {
	if !p.Content.IsExchange() {
		t := turnFromPayload(p, p.Role, p.Content.ForRole(p.Role))
		if t.Role == RoleAssistant && t.LinkedUserChatID == "" {
			t.LinkedUserChatID = p.LinkedUserChatID
		}
		return []*Turn{t}
	}

	user := turnFromPayload(p, RoleUser, p.Content.Prompt)
	assistant := turnFromPayload(p, RoleAssistant, p.Content.Response)
	assistant.LinkedUserChatID = user.ChatID
	return []*Turn{user, assistant}
}

// TurnsFromPayloads flattens a page of rows, dropping inactive ones and
// assigning contiguous indices starting at base.
func TurnsFromPayloads(payloads []*TurnPayload, base int) []*Turn {
	ret := []*Turn{}
	idx := base
	for _, p := range payloads {
		if !p.active() {
			continue
		}
		for _, t := range TurnsFromPayload(p) {
			t.Index = idx
			idx++
			ret = append(ret, t)
		}
	}
	return ret
}

func turnFromPayload(p *TurnPayload, role Role, content string) *Turn {
	t := &Turn{
		LocalID:                uuid.New(),
		ChatID:                 p.ChatID,
		ConversationID:         p.ConversationID,
		Role:                   role,
		Index:                  p.MessageIndex,
		Content:                content,
		Model:                  p.Model,
		IsActive:               p.active(),
		VersionNumber:          p.VersionNumber,
		UserVersionNumber:      p.userVersion(),
		AssistantVersionNumber: p.assistantVersion(),
		IsCurrentVersion:       p.current(),
		TotalVersions:          p.TotalVersions,
		HasMultipleVersions:    p.HasMultipleVersions,
		LinkedUserChatID:       p.LinkedUserChatID,
		OriginalChatID:         p.OriginalChatID,
		EditInfo:               p.editInfo(),
		PromptTokens:           p.PromptTokens,
		CompletionTokens:       p.CompletionTokens,
		CostUSD:                p.CostUSD,
		CostIDR:                p.CostIDR,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
	Normalize(t)
	return t
}

// VersionPayload is the wire row of the version-list endpoint.
type VersionPayload struct {
	ChatID           string  `json:"chatId"`
	UserVersion      int     `json:"userVersion,omitempty"`
	AssistantVersion int     `json:"assistantVersion,omitempty"`
	IsLatestVersion  bool    `json:"isLatestVersion"`
	VersionType      string  `json:"versionType,omitempty"`
	Content          Content `json:"content"`
	LinkedUserChatID string  `json:"linkedUserChatId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// VersionFromPayload adapts a wire version row into the canonical Version
// shape, computing the derived display fields.
func VersionFromPayload(p *VersionPayload) Version {
	number := p.UserVersion
	if number == 0 {
		number = p.AssistantVersion
	}
	if number == 0 {
		number = 1
	}

	v := NewVersion(p.ChatID, number, p.Content.Body(), p.CreatedAt)
	v.UserVersionNumber = p.UserVersion
	v.AssistantVersionNumber = p.AssistantVersion
	v.IsCurrentVersion = p.IsLatestVersion
	v.LinkedUserChatID = p.LinkedUserChatID
	v.OriginalChatID = p.ChatID
	return v
}
