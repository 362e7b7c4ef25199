package transcript

import (
	"sort"

	"github.com/hola0123/z-study-chat/pkg/chat"
)

type turnKey struct {
	chatID string
	role   chat.Role
}

// MergeOlder prepends an older history page to the displayed turns. Incoming
// rows that are already displayed are dropped, so re-fetching an overlapping
// page is harmless. The older page is sorted chronologically before the
// merge; displayed turns keep their state untouched.
func MergeOlder(existing []*chat.Turn, older []*chat.Turn) []*chat.Turn {
	if len(older) == 0 {
		return existing
	}

	seen := map[turnKey]bool{}
	for _, t := range existing {
		if t.ChatID == "" {
			continue
		}
		seen[turnKey{chatID: t.ChatID, role: t.Role}] = true
	}

	fresh := make([]*chat.Turn, 0, len(older))
	for _, t := range older {
		if t.ChatID != "" && seen[turnKey{chatID: t.ChatID, role: t.Role}] {
			continue
		}
		fresh = append(fresh, t)
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		if !fresh[i].CreatedAt.Equal(fresh[j].CreatedAt) {
			return fresh[i].CreatedAt.Before(fresh[j].CreatedAt)
		}
		// a user turn precedes the assistant turn of the same exchange
		return fresh[i].Role == chat.RoleUser && fresh[j].Role == chat.RoleAssistant
	})

	ret := make([]*chat.Turn, 0, len(fresh)+len(existing))
	ret = append(ret, fresh...)
	ret = append(ret, existing...)
	return ret
}
