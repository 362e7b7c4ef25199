package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hola0123/z-study-chat/pkg/api"
	"github.com/hola0123/z-study-chat/pkg/chat"
)

type fakeVersionService struct {
	calls int
	resp  *api.VersionsResponse
	err   error
}

func (f *fakeVersionService) GetChatVersions(ctx context.Context, chatID string, versionType string, limit int, page int) (*api.VersionsResponse, error) {
	f.calls++
	return f.resp, f.err
}

func TestNavigatorCachesVersionList(t *testing.T) {
	svc := &fakeVersionService{
		resp: &api.VersionsResponse{
			Versions: []*chat.VersionPayload{
				{ChatID: "u1", UserVersion: 1, Content: chat.Content{Text: "first wording"}, CreatedAt: time.Now()},
				{ChatID: "u1", UserVersion: 2, IsLatestVersion: true, Content: chat.Content{Text: "second wording"}, CreatedAt: time.Now()},
			},
		},
	}
	n := NewNavigator(svc)
	turn := chat.NewTurn(chat.RoleUser, "second wording", chat.WithChatID("u1"))

	versions, err := n.Versions(context.Background(), turn)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, "first wording", versions[0].Content)
	assert.True(t, versions[1].IsCurrentVersion)

	_, err = n.Versions(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.calls)

	n.Invalidate("u1")
	_, err = n.Versions(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, 2, svc.calls)
}

func TestNavigatorInvalidateRefreshesAfterNewVersion(t *testing.T) {
	svc := &fakeVersionService{
		resp: &api.VersionsResponse{
			Versions: []*chat.VersionPayload{
				{ChatID: "a1", AssistantVersion: 1, IsLatestVersion: true, Content: chat.Content{Text: "first answer"}},
			},
		},
	}
	n := NewNavigator(svc)
	turn := chat.NewTurn(chat.RoleAssistant, "first answer", chat.WithChatID("a1"))

	versions, err := n.Versions(context.Background(), turn)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	// a regenerate created a second version on the backend
	svc.resp = &api.VersionsResponse{
		Versions: []*chat.VersionPayload{
			{ChatID: "a1", AssistantVersion: 1, Content: chat.Content{Text: "first answer"}},
			{ChatID: "a1", AssistantVersion: 2, IsLatestVersion: true, Content: chat.Content{Text: "second answer"}},
		},
	}

	versions, err = n.Versions(context.Background(), turn)
	require.NoError(t, err)
	require.Len(t, versions, 1, "cached list served until invalidated")

	n.Invalidate("a1")
	versions, err = n.Versions(context.Background(), turn)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "second answer", versions[1].Content)
	assert.True(t, versions[1].IsCurrentVersion)
}

func TestNavigatorRejectsPendingTurn(t *testing.T) {
	n := NewNavigator(&fakeVersionService{})
	_, err := n.Versions(context.Background(), chat.NewTurn(chat.RoleUser, "unsent"))
	require.Error(t, err)
}

func TestPreviousAndNextVersionWrapAround(t *testing.T) {
	turn := chat.NewTurn(chat.RoleAssistant, "x", chat.WithChatID("a1"))
	turn.TotalVersions = 3

	turn.AssistantVersionNumber = 2
	assert.Equal(t, 1, PreviousVersion(turn))
	assert.Equal(t, 3, NextVersion(turn))

	turn.AssistantVersionNumber = 1
	assert.Equal(t, 3, PreviousVersion(turn))
	assert.Equal(t, 2, NextVersion(turn))

	turn.AssistantVersionNumber = 3
	assert.Equal(t, 2, PreviousVersion(turn))
	assert.Equal(t, 1, NextVersion(turn))
}

func TestVersionNavigationSingleVersionStaysPut(t *testing.T) {
	turn := chat.NewTurn(chat.RoleUser, "x", chat.WithChatID("u1"))
	turn.UserVersionNumber = 1
	turn.TotalVersions = 1

	assert.Equal(t, 1, PreviousVersion(turn))
	assert.Equal(t, 1, NextVersion(turn))
}
