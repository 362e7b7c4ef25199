package transcript

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/hola0123/z-study-chat/pkg/api"
	"github.com/hola0123/z-study-chat/pkg/chat"
)

// VersionService is the slice of the backend client the navigator needs.
type VersionService interface {
	GetChatVersions(ctx context.Context, chatID string, versionType string, limit int, page int) (*api.VersionsResponse, error)
}

var _ VersionService = (*api.Client)(nil)

// Navigator browses the version history of individual turns. Version lists
// are fetched lazily, on the first request per turn, and cached until
// invalidated by an edit or regeneration.
type Navigator struct {
	svc   VersionService
	mu    sync.Mutex
	cache map[string][]chat.Version
}

func NewNavigator(svc VersionService) *Navigator {
	return &Navigator{
		svc:   svc,
		cache: map[string][]chat.Version{},
	}
}

// Versions returns all versions of the given turn, oldest first.
func (n *Navigator) Versions(ctx context.Context, t *chat.Turn) ([]chat.Version, error) {
	if t.Pending() {
		return nil, errors.New("turn has no backend identity yet")
	}

	n.mu.Lock()
	cached, ok := n.cache[t.ChatID]
	n.mu.Unlock()
	if ok {
		return cached, nil
	}

	versionType := "user"
	if t.Role == chat.RoleAssistant {
		versionType = "assistant"
	}
	resp, err := n.svc.GetChatVersions(ctx, t.ChatID, versionType, 0, 0)
	if err != nil {
		return nil, err
	}

	versions := make([]chat.Version, 0, len(resp.Versions))
	for _, p := range resp.Versions {
		versions = append(versions, chat.VersionFromPayload(p))
	}

	n.mu.Lock()
	n.cache[t.ChatID] = versions
	n.mu.Unlock()
	return versions, nil
}

// Invalidate drops the cached version list of a turn. Call it after any
// operation that creates a new version.
func (n *Navigator) Invalidate(chatID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.cache, chatID)
}

// PreviousVersion returns the version number preceding the turn's current
// one, wrapping around to the newest at the oldest. A turn with a single
// version stays where it is.
func PreviousVersion(t *chat.Turn) int {
	current := chat.ResolveVersionNumber(t)
	if t.TotalVersions <= 1 {
		return current
	}
	return (current-2+t.TotalVersions)%t.TotalVersions + 1
}

// NextVersion returns the version number following the turn's current one,
// wrapping around to the oldest at the newest.
func NextVersion(t *chat.Turn) int {
	current := chat.ResolveVersionNumber(t)
	if t.TotalVersions <= 1 {
		return current
	}
	return current%t.TotalVersions + 1
}
