package streaming

// Usage is the token accounting block of the terminal envelope.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type Cost struct {
	USD float64 `json:"usd"`
	IDR float64 `json:"idr"`
}

type ConversationInfo struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
}

// NewChat carries the authoritative identity of a turn created by the
// completed exchange.
type NewChat struct {
	ChatID                 string `json:"chatId"`
	Role                   string `json:"role"`
	Content                string `json:"content"`
	UserVersionNumber      int    `json:"userVersionNumber,omitempty"`
	AssistantVersionNumber int    `json:"assistantVersionNumber,omitempty"`
	LinkedUserChatID       string `json:"linkedUserChatId,omitempty"`
}

type NewChats struct {
	UserChat      *NewChat `json:"userChat,omitempty"`
	AssistantChat *NewChat `json:"assistantChat,omitempty"`
}

type OptimizationInfo struct {
	OriginalHistoryLength  int `json:"originalHistoryLength"`
	OptimizedHistoryLength int `json:"optimizedHistoryLength"`
	TokensSaved            int `json:"tokensSaved"`
	UpdatedChatsCount      int `json:"updatedChatsCount"`
}

// EditedMessage is present on edit-and-complete streams and carries the new
// version metadata of the edited user turn.
type EditedMessage struct {
	ChatID              string `json:"chatId"`
	Content             string `json:"content"`
	UserVersionNumber   int    `json:"userVersionNumber,omitempty"`
	TotalVersions       int    `json:"totalVersions,omitempty"`
	HasMultipleVersions bool   `json:"hasMultipleVersions,omitempty"`
}

// AssistantMessage is present on regenerate streams.
type AssistantMessage struct {
	ChatID                 string `json:"chatId"`
	Content                string `json:"content"`
	AssistantVersionNumber int    `json:"assistantVersionNumber,omitempty"`
	TotalVersions          int    `json:"totalVersions,omitempty"`
	HasMultipleVersions    bool   `json:"hasMultipleVersions,omitempty"`
	LinkedUserChatID       string `json:"linkedUserChatId,omitempty"`
	IsNewVersion           bool   `json:"isNewVersion,omitempty"`
}

// Final is the terminal metadata envelope of a completion stream. All fields
// are optional on the wire; the envelope is only authoritative once the
// stream has ended. Blocks may arrive across several records, in which case
// the last record before the sentinel wins.
type Final struct {
	Conversation     *ConversationInfo `json:"conversation,omitempty"`
	Usage            *Usage            `json:"usage,omitempty"`
	Cost             *Cost             `json:"cost,omitempty"`
	NewChats         *NewChats         `json:"newChats,omitempty"`
	OptimizationInfo *OptimizationInfo `json:"optimizationInfo,omitempty"`
	EditedMessage    *EditedMessage    `json:"editedMessage,omitempty"`
	AssistantMessage *AssistantMessage `json:"assistantMessage,omitempty"`
}

func (f *Final) empty() bool {
	return f.Conversation == nil &&
		f.Usage == nil &&
		f.Cost == nil &&
		f.NewChats == nil &&
		f.OptimizationInfo == nil &&
		f.EditedMessage == nil &&
		f.AssistantMessage == nil
}
