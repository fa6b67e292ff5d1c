package memory

import (
	"context"
	"sync"

	"contest-service/internal/domain"
)

// UserDirectory is an in-memory implementation of app.UserDirectory. The
// transport layer registers every identity it resolves so leaderboards can
// attach display names; unknown users stay anonymous.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.LeaderboardUser
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{users: make(map[string]domain.LeaderboardUser)}
}

func (d *UserDirectory) Register(user domain.User) {
	if user.ID == "" {
		return
	}
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	d.mu.Lock()
	d.users[user.ID] = domain.LeaderboardUser{ID: user.ID, DisplayName: name}
	d.mu.Unlock()
}

func (d *UserDirectory) LookupUser(_ context.Context, userID string) (domain.LeaderboardUser, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	return u, ok
}
