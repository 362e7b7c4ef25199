package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVersionNumberPerRole(t *testing.T) {
	user := NewTurn(RoleUser, "q")
	user.UserVersionNumber = 3
	user.AssistantVersionNumber = 7
	assert.Equal(t, 3, ResolveVersionNumber(user))

	asst := NewTurn(RoleAssistant, "r")
	asst.UserVersionNumber = 3
	asst.AssistantVersionNumber = 7
	assert.Equal(t, 7, ResolveVersionNumber(asst))
}

func TestResolveVersionNumberLegacyFallback(t *testing.T) {
	turn := NewTurn(RoleUser, "q")
	turn.UserVersionNumber = 0
	turn.VersionNumber = 4
	assert.Equal(t, 4, ResolveVersionNumber(turn))

	turn.VersionNumber = 0
	assert.Equal(t, 1, ResolveVersionNumber(turn))
}

func TestNormalizeRepairsInconsistentFlags(t *testing.T) {
	turn := &Turn{Role: RoleUser, HasMultipleVersions: true, TotalVersions: 1}
	Normalize(turn)
	assert.False(t, turn.HasMultipleVersions)
	assert.Equal(t, 1, turn.TotalVersions)
	assert.Equal(t, 1, ResolveVersionNumber(turn))

	turn = &Turn{Role: RoleUser, TotalVersions: 3}
	Normalize(turn)
	assert.True(t, turn.HasMultipleVersions)
}

func TestIsEditedIndependentOfVersionCount(t *testing.T) {
	turn := NewTurn(RoleUser, "q")
	assert.False(t, IsEdited(turn))

	// an edit that produced no new version still marks the turn
	turn.MarkEdited(time.Now())
	assert.True(t, IsEdited(turn))
	assert.Equal(t, 1, turn.TotalVersions)
}

func TestNewVersionComputesDerivedFields(t *testing.T) {
	content := strings.Repeat("word ", 30)
	v := NewVersion("u1", 2, content, time.Now())

	assert.Equal(t, 30, v.WordCount)
	assert.Equal(t, len([]rune(content)), v.CharacterCount)
	assert.Len(t, []rune(v.ContentPreview), 100)
}

func TestPreviewCountsRunesNotBytes(t *testing.T) {
	content := strings.Repeat("é", 150)
	preview := Preview(content)
	require.Equal(t, 100, len([]rune(preview)))
	assert.Equal(t, strings.Repeat("é", 100), preview)
}
