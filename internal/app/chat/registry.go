package chat

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/app/protocol"
	"linechat/internal/app/user"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/randx"
)

// Registry is the shared table of live users and reserved names. It owns the
// broadcast fan-out of join, leave and chat messages.
type Registry struct {
	// mu guards users and reserved together: a name is reserved if and only if
	// a live user holds it.
	mu sync.RWMutex

	// users maps a user id to its User.
	users map[string]user.User

	// reserved maps a username to the id of the user holding it.
	reserved map[string]string

	broadcast *Broadcaster

	logger zerolog.Logger
}

// NewRegistry creates an empty Registry whose subscribers buffer up to
// broadcastBuffer messages each.
func NewRegistry(broadcastBuffer int) *Registry {
	return &Registry{
		users:     make(map[string]user.User),
		reserved:  make(map[string]string),
		broadcast: NewBroadcaster(broadcastBuffer),
		logger:    logx.Component("registry"),
	}
}

// Register reserves username and creates its User, then publishes UserJoined.
// It fails with ErrInvalidUsername or ErrUsernameTaken. Two concurrent calls for
// one name never both succeed.
func (r *Registry) Register(username string) (user.User, *errs.CustomError) {
	name, ok := user.NormalizeUsername(username)
	if !ok {
		return user.User{}, errs.NewError(errs.ErrInvalidUsername)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.reserved[name]; taken {
		r.logger.Debug().Str("username", name).Msg("Registration refused: name already reserved.")
		return user.User{}, errs.NewError(errs.ErrUsernameTaken)
	}

	u := user.User{
		ID:       randx.UserID(),
		Username: name,
		State:    user.StateAuthenticated,
		JoinedAt: time.Now().UTC(),
	}
	r.users[u.ID] = u
	r.reserved[name] = u.ID

	// Published under the lock so joins and leaves reach subscribers in table order.
	r.broadcast.Publish(protocol.NewMessage(protocol.UserJoined{Username: name}))

	r.logger.Info().
		Str("user_id", u.ID).
		Str("username", name).
		Int("total_users", len(r.users)).
		Msg("User registered.")

	return u, nil
}

// Remove deletes the user and its name reservation, then publishes UserLeft.
// Unknown ids are ignored.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return
	}

	if holder := r.reserved[u.Username]; holder != userID {
		panic(fmt.Sprintf("chat: registry invariant violated: %q reserved by %q, not by its user %q",
			u.Username, holder, userID))
	}

	delete(r.users, userID)
	delete(r.reserved, u.Username)

	r.broadcast.Publish(protocol.NewMessage(protocol.UserLeft{Username: u.Username}))

	r.logger.Info().
		Str("user_id", userID).
		Str("username", u.Username).
		Int("total_users", len(r.users)).
		Msg("User removed.")
}

// ListUsers returns a sorted snapshot of the live usernames. It may be stale
// as soon as it returns.
func (r *Registry) ListUsers() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.reserved))
	for name := range r.reserved {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Count returns the number of live users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Broadcast publishes a chat line to every subscriber. It does not check that
// from is still registered.
func (r *Registry) Broadcast(from, content string) {
	now := time.Now().UTC()
	r.broadcast.Publish(protocol.Message{
		ID:        randx.MessageID(),
		Payload:   protocol.MessageReceived{From: from, Content: content, Timestamp: now},
		Timestamp: now,
	})
}

// Subscribe opens a broadcast subscription starting now.
func (r *Registry) Subscribe() *Subscription {
	return r.broadcast.Subscribe()
}

// DroppedBroadcasts returns how many broadcast messages slow subscribers lost.
func (r *Registry) DroppedBroadcasts() int64 {
	return r.broadcast.Dropped()
}

// Close ends all broadcast subscriptions.
func (r *Registry) Close() {
	r.broadcast.Close()
}
