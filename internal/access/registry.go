package access

import (
	"fmt"
	"slices"

	"github.com/nerrad567/printwatch/internal/infrastructure/config"
)

// User is a configured bot user.
type User struct {
	ID          int64
	AccessLevel int
	Notify      bool
}

// Registry maps users to privilege levels and holds the notify roster.
//
// Thread Safety:
//   - Immutable after Build; safe for concurrent use without locking.
type Registry struct {
	levels  []string
	index   map[string]int
	members []map[int64]struct{}
	roster  []int64
	users   map[int64]User
}

// Build derives a Registry from a level table and user list.
//
// Parameters:
//   - levels: Level names, lowest privilege first
//   - users: Configured users; AccessLevel indexes into levels
//
// Returns:
//   - *Registry: Immutable registry
//   - error: ErrConfigInvalid if levels or users are missing, a level name
//     repeats, a user id repeats, or a user references an out-of-range level
func Build(levels []string, users []User) (*Registry, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: access_levels is missing", ErrConfigInvalid)
	}
	if users == nil {
		return nil, fmt.Errorf("%w: users is missing", ErrConfigInvalid)
	}

	r := &Registry{
		levels:  slices.Clone(levels),
		index:   make(map[string]int, len(levels)),
		members: make([]map[int64]struct{}, len(levels)),
		users:   make(map[int64]User, len(users)),
	}

	for i, name := range levels {
		if name == "" {
			return nil, fmt.Errorf("%w: access level %d has no name", ErrConfigInvalid, i)
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("%w: access level %q listed twice", ErrConfigInvalid, name)
		}
		r.index[name] = i
		r.members[i] = make(map[int64]struct{})
	}

	for _, u := range users {
		if u.AccessLevel < 0 || u.AccessLevel >= len(levels) {
			return nil, fmt.Errorf("%w: user %d has access_level %d, want 0..%d",
				ErrConfigInvalid, u.ID, u.AccessLevel, len(levels)-1)
		}
		if _, dup := r.users[u.ID]; dup {
			return nil, fmt.Errorf("%w: user %d listed twice", ErrConfigInvalid, u.ID)
		}
		r.users[u.ID] = u

		// Membership is the closed interval [0, AccessLevel].
		for i := 0; i <= u.AccessLevel; i++ {
			r.members[i][u.ID] = struct{}{}
		}

		if u.Notify {
			r.roster = append(r.roster, u.ID)
		}
	}

	slices.Sort(r.roster)
	return r, nil
}

// FromConfig builds a Registry from the access section of the configuration.
func FromConfig(cfg config.AccessConfig) (*Registry, error) {
	var users []User
	if cfg.Users != nil {
		users = make([]User, 0, len(cfg.Users))
		for _, u := range cfg.Users {
			users = append(users, User{ID: u.ID, AccessLevel: u.AccessLevel, Notify: u.Notify})
		}
	}
	return Build(cfg.Levels, users)
}

// IsAuthorized reports whether userID holds level (or any level above it).
// Unknown levels authorise nobody.
func (r *Registry) IsAuthorized(userID int64, level string) bool {
	i, ok := r.index[level]
	if !ok {
		return false
	}
	_, member := r.members[i][userID]
	return member
}

// NotifyRoster returns the ids of users that receive state-change
// notifications, in ascending order. The slice is a copy.
func (r *Registry) NotifyRoster() []int64 {
	return slices.Clone(r.roster)
}

// Members returns the ids holding level, in ascending order.
func (r *Registry) Members(level string) ([]int64, error) {
	i, ok := r.index[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	ids := make([]int64, 0, len(r.members[i]))
	for id := range r.members[i] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Levels returns the level table, lowest privilege first.
func (r *Registry) Levels() []string {
	return slices.Clone(r.levels)
}

// LevelCount returns the number of derived level sets.
func (r *Registry) LevelCount() int {
	return len(r.members)
}

// HighestLevel returns the name of the highest level a user holds.
func (r *Registry) HighestLevel(userID int64) (string, bool) {
	u, ok := r.users[userID]
	if !ok {
		return "", false
	}
	return r.levels[u.AccessLevel], true
}

// User returns the configured user record.
func (r *Registry) User(userID int64) (User, bool) {
	u, ok := r.users[userID]
	return u, ok
}

// RequireLevels checks that every name is in the level table.
// Used at startup to reject configurations whose gates name missing levels.
func (r *Registry) RequireLevels(names ...string) error {
	for _, name := range names {
		if _, ok := r.index[name]; !ok {
			return fmt.Errorf("%w: %w %q", ErrConfigInvalid, ErrUnknownLevel, name)
		}
	}
	return nil
}
