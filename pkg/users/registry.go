package users

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cbodonnell/memoria/pkg/game/constants"
	"github.com/cbodonnell/memoria/pkg/game/types"
)

// DefaultUsers returns the fixed account list the server boots with.
// Persisted scores and flags are applied over these at startup.
func DefaultUsers() []*types.User {
	users := make([]*types.User, 0, 11)
	for i := 1; i <= 10; i++ {
		users = append(users, &types.User{
			ID:       fmt.Sprintf("%d", i),
			Username: fmt.Sprintf("jugador%d", i),
			Password: fmt.Sprintf("clave%d", i),
			Score:    constants.StartingScore,
		})
	}
	users = append(users, &types.User{
		ID:       "admin",
		Username: "admin",
		Password: "admin123",
		IsAdmin:  true,
	})
	return users
}

// Registry is the in-memory account table. All mutation happens on the
// game loop goroutine; the lock covers reads from HTTP handlers.
type Registry struct {
	lock  sync.RWMutex
	users map[string]*types.User
	order []string
}

// NewRegistry creates a Registry from a user list.
func NewRegistry(list []*types.User) *Registry {
	r := &Registry{
		users: make(map[string]*types.User, len(list)),
		order: make([]string, 0, len(list)),
	}
	for _, u := range list {
		r.users[u.ID] = u
		r.order = append(r.order, u.ID)
	}
	return r
}

// Authenticate matches a username/password pair against the user list.
func (r *Registry) Authenticate(username, password string) (*types.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, id := range r.order {
		u := r.users[id]
		if u.Username == username && u.Password == password {
			return u, nil
		}
	}
	return nil, fmt.Errorf("invalid credentials for %q", username)
}

// Get returns the user with the given id, or nil.
func (r *Registry) Get(id string) *types.User {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.users[id]
}

// All returns every user in registration order.
func (r *Registry) All() []*types.User {
	r.lock.RLock()
	defer r.lock.RUnlock()
	list := make([]*types.User, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.users[id])
	}
	return list
}

// NonAdmins returns every non-admin user in registration order.
func (r *Registry) NonAdmins() []*types.User {
	r.lock.RLock()
	defer r.lock.RUnlock()
	list := make([]*types.User, 0, len(r.order))
	for _, id := range r.order {
		if !r.users[id].IsAdmin {
			list = append(list, r.users[id])
		}
	}
	return list
}

// ApplyScores restores persisted per-user state onto the registry.
// Unknown ids in the snapshot are ignored.
func (r *Registry) ApplyScores(scores map[string]types.UserScore) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id, s := range scores {
		u, ok := r.users[id]
		if !ok {
			continue
		}
		u.Score = s.Score
		u.IsBlocked = s.IsBlocked
		u.IsLockedDueToScore = s.IsLockedDueToScore
		u.TablesPlayed = s.TablesPlayed
	}
}

// ExportScores captures the persisted per-user state for a snapshot.
func (r *Registry) ExportScores() map[string]types.UserScore {
	r.lock.RLock()
	defer r.lock.RUnlock()
	scores := make(map[string]types.UserScore, len(r.users))
	keys := make([]string, 0, len(r.users))
	for id := range r.users {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	for _, id := range keys {
		u := r.users[id]
		scores[id] = types.UserScore{
			Score:              u.Score,
			IsBlocked:          u.IsBlocked,
			IsLockedDueToScore: u.IsLockedDueToScore,
			TablesPlayed:       u.TablesPlayed,
		}
	}
	return scores
}
