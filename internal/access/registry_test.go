package access

import (
	"errors"
	"slices"
	"testing"

	"github.com/nerrad567/printwatch/internal/infrastructure/config"
)

var testLevels = []string{"monitor", "control", "admin"}

func testUsers() []User {
	return []User{
		{ID: 10, AccessLevel: 0, Notify: true},
		{ID: 20, AccessLevel: 1, Notify: false},
		{ID: 30, AccessLevel: 2, Notify: true},
		{ID: 40, AccessLevel: 1, Notify: true},
	}
}

func TestBuild_MonotonicMembership(t *testing.T) {
	r, err := Build(testLevels, testUsers())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// is_authorized(U, L) holds iff U.access_level >= index(L)
	for _, u := range testUsers() {
		for i, level := range testLevels {
			want := u.AccessLevel >= i
			if got := r.IsAuthorized(u.ID, level); got != want {
				t.Errorf("IsAuthorized(%d, %q) = %v, want %v", u.ID, level, got, want)
			}
		}
	}
}

func TestBuild_SetCountAndRoster(t *testing.T) {
	r, err := Build(testLevels, testUsers())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if r.LevelCount() != len(testLevels) {
		t.Errorf("LevelCount() = %d, want %d", r.LevelCount(), len(testLevels))
	}

	want := []int64{10, 30, 40}
	if got := r.NotifyRoster(); !slices.Equal(got, want) {
		t.Errorf("NotifyRoster() = %v, want %v", got, want)
	}

	monitors, err := r.Members("monitor")
	if err != nil {
		t.Fatalf("Members(monitor) error = %v", err)
	}
	if !slices.Equal(monitors, []int64{10, 20, 30, 40}) {
		t.Errorf("Members(monitor) = %v, want all users", monitors)
	}

	admins, _ := r.Members("admin")
	if !slices.Equal(admins, []int64{30}) {
		t.Errorf("Members(admin) = %v, want [30]", admins)
	}
}

func TestBuild_UnknownUserAndLevel(t *testing.T) {
	r, err := Build(testLevels, testUsers())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if r.IsAuthorized(99, "monitor") {
		t.Error("IsAuthorized(unknown user) = true, want false")
	}
	if r.IsAuthorized(30, "superuser") {
		t.Error("IsAuthorized(unknown level) = true, want false")
	}
	if _, err := r.Members("superuser"); !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("Members(unknown) error = %v, want ErrUnknownLevel", err)
	}
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		levels []string
		users  []User
	}{
		{name: "missing levels", levels: nil, users: testUsers()},
		{name: "missing users", levels: testLevels, users: nil},
		{name: "level too high", levels: testLevels, users: []User{{ID: 1, AccessLevel: 3}}},
		{name: "negative level", levels: testLevels, users: []User{{ID: 1, AccessLevel: -1}}},
		{name: "duplicate level", levels: []string{"monitor", "monitor"}, users: []User{}},
		{name: "empty level name", levels: []string{"monitor", ""}, users: []User{}},
		{name: "duplicate user", levels: testLevels, users: []User{{ID: 1}, {ID: 1, AccessLevel: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Build(tt.levels, tt.users)
			if !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("Build() error = %v, want ErrConfigInvalid", err)
			}
			if r != nil {
				t.Error("Build() returned a registry alongside an error")
			}
		})
	}
}

func TestBuild_EmptyUserList(t *testing.T) {
	r, err := Build(testLevels, []User{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if r.LevelCount() != 3 {
		t.Errorf("LevelCount() = %d, want 3", r.LevelCount())
	}
	if len(r.NotifyRoster()) != 0 {
		t.Errorf("NotifyRoster() = %v, want empty", r.NotifyRoster())
	}
}

func TestRegistry_CopiesAreIsolated(t *testing.T) {
	levels := []string{"monitor", "control"}
	r, err := Build(levels, []User{{ID: 1, AccessLevel: 1, Notify: true}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	levels[1] = "tampered"
	r.NotifyRoster()[0] = 999

	if !r.IsAuthorized(1, "control") {
		t.Error("mutating the input level slice changed the registry")
	}
	if r.NotifyRoster()[0] != 1 {
		t.Error("mutating a returned roster changed the registry")
	}
}

func TestRegistry_HighestLevel(t *testing.T) {
	r, _ := Build(testLevels, testUsers())

	if got, ok := r.HighestLevel(20); !ok || got != "control" {
		t.Errorf("HighestLevel(20) = %q, %v; want control, true", got, ok)
	}
	if _, ok := r.HighestLevel(99); ok {
		t.Error("HighestLevel(unknown) ok = true, want false")
	}
}

func TestRegistry_RequireLevels(t *testing.T) {
	r, _ := Build(testLevels, testUsers())

	if err := r.RequireLevels("monitor", "control"); err != nil {
		t.Errorf("RequireLevels(known) error = %v", err)
	}
	err := r.RequireLevels("monitor", "operator")
	if !errors.Is(err, ErrConfigInvalid) || !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("RequireLevels(unknown) error = %v, want ErrConfigInvalid and ErrUnknownLevel", err)
	}
}

func TestFromConfig(t *testing.T) {
	r, err := FromConfig(config.AccessConfig{
		Levels: []string{"monitor", "control"},
		Users:  []config.UserConfig{{ID: 5, AccessLevel: 1, Notify: true}},
	})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if !r.IsAuthorized(5, "monitor") || !r.IsAuthorized(5, "control") {
		t.Error("FromConfig() user 5 should hold monitor and control")
	}

	_, err = FromConfig(config.AccessConfig{Levels: []string{"monitor"}})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("FromConfig(no users) error = %v, want ErrConfigInvalid", err)
	}
}
