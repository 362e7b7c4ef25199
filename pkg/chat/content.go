package chat

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Content absorbs the two content shapes the backend has shipped over time: a
// plain string in the current API generation, and a {prompt, response} object
// in the previous one. It is resolved into a plain string per role at the
// ingestion boundary; nothing past that boundary branches on shape again.
type Content struct {
	Text     string
	Prompt   string
	Response string

	object bool
}

type contentObject struct {
	Prompt   string `json:"prompt,omitempty"`
	Response string `json:"response,omitempty"`
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.object = false
		return nil
	}

	var obj contentObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.Wrap(err, "content is neither a string nor a prompt/response object")
	}

	c.Prompt = obj.Prompt
	c.Response = obj.Response
	c.object = true
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.object {
		return json.Marshal(contentObject{Prompt: c.Prompt, Response: c.Response})
	}
	return json.Marshal(c.Text)
}

// IsExchange reports whether the content carries a full prompt/response pair,
// i.e. the row represents a whole exchange rather than a single turn.
func (c Content) IsExchange() bool {
	return c.object
}

// ForRole resolves the content body for the given role.
func (c Content) ForRole(role Role) string {
	if !c.object {
		return c.Text
	}
	switch role {
	case RoleUser, RoleSystem:
		return c.Prompt
	case RoleAssistant:
		return c.Response
	}
	return ""
}

// Body returns whichever side of the content is present, preferring the
// prompt. Used for version previews where the role is implied by the track.
func (c Content) Body() string {
	if !c.object {
		return c.Text
	}
	if c.Prompt != "" {
		return c.Prompt
	}
	return c.Response
}
