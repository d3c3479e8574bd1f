package provisioner

import (
	"context"
	"fmt"
	"os"

	"github.com/steelcutops/provision/steelcut/usermanager"
)

type fakeUser struct {
	primary string
	groups  []string
}

type fakeHome struct {
	owner string
	group string
	mode  os.FileMode
}

// fakeSystem is an in-memory account database and home directory tree that
// behaves like the shadow-utils commands it stands in for.
type fakeSystem struct {
	groups    map[string]bool
	users     map[string]*fakeUser
	homes     map[string]*fakeHome
	passwords map[string]string
	hashed    map[string]bool
	fail      map[string]error
	calls     []string
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		groups:    map[string]bool{"root": true, "users": true},
		users:     map[string]*fakeUser{},
		homes:     map[string]*fakeHome{},
		passwords: map[string]string{},
		hashed:    map[string]bool{},
		fail:      map[string]error{},
	}
}

func (f *fakeSystem) op(call string) error {
	f.calls = append(f.calls, call)
	return f.fail[call]
}

func (f *fakeSystem) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeSystem) GroupExists(ctx context.Context, name string) (bool, error) {
	if err := f.op("getent group " + name); err != nil {
		return false, err
	}
	return f.groups[name], nil
}

func (f *fakeSystem) UserExists(ctx context.Context, username string) (bool, error) {
	if err := f.op("getent passwd " + username); err != nil {
		return false, err
	}
	return f.users[username] != nil, nil
}

func (f *fakeSystem) AddGroup(ctx context.Context, name string) error {
	if err := f.op("groupadd " + name); err != nil {
		return err
	}
	if f.groups[name] {
		return fmt.Errorf("groupadd: group '%s' already exists", name)
	}
	f.groups[name] = true
	return nil
}

func (f *fakeSystem) AddUser(ctx context.Context, user usermanager.User) error {
	if err := f.op("useradd " + user.Username); err != nil {
		return err
	}
	if f.users[user.Username] != nil {
		return fmt.Errorf("useradd: user '%s' already exists", user.Username)
	}
	for _, g := range append([]string{user.PrimaryGroup}, user.Groups...) {
		if !f.groups[g] {
			return fmt.Errorf("useradd: group '%s' does not exist", g)
		}
	}
	f.users[user.Username] = &fakeUser{primary: user.PrimaryGroup, groups: append([]string(nil), user.Groups...)}
	f.homes[user.HomeDir] = &fakeHome{owner: user.Username, group: user.PrimaryGroup, mode: 0755}
	return nil
}

func (f *fakeSystem) PrimaryGroup(ctx context.Context, username string) (string, error) {
	if err := f.op("id -gn " + username); err != nil {
		return "", err
	}
	u := f.users[username]
	if u == nil {
		return "", fmt.Errorf("id: '%s': no such user", username)
	}
	return u.primary, nil
}

func (f *fakeSystem) Groups(ctx context.Context, username string) ([]string, error) {
	if err := f.op("id -nG " + username); err != nil {
		return nil, err
	}
	u := f.users[username]
	if u == nil {
		return nil, fmt.Errorf("id: '%s': no such user", username)
	}
	return append([]string{u.primary}, u.groups...), nil
}

func (f *fakeSystem) SetPrimaryGroup(ctx context.Context, username, group string) error {
	if err := f.op("usermod -g " + group + " " + username); err != nil {
		return err
	}
	if !f.groups[group] {
		return fmt.Errorf("usermod: group '%s' does not exist", group)
	}
	f.users[username].primary = group
	return nil
}

func (f *fakeSystem) AddToGroup(ctx context.Context, username, group string) error {
	if err := f.op("usermod -aG " + group + " " + username); err != nil {
		return err
	}
	if !f.groups[group] {
		return fmt.Errorf("usermod: group '%s' does not exist", group)
	}
	u := f.users[username]
	u.groups = append(u.groups, group)
	return nil
}

func (f *fakeSystem) SetPassword(ctx context.Context, username, password string, hashed bool) error {
	if err := f.op("chpasswd " + username); err != nil {
		return err
	}
	f.passwords[username] = password
	f.hashed[username] = hashed
	return nil
}

func (f *fakeSystem) DirExists(ctx context.Context, path string) (bool, error) {
	if err := f.op("test -d " + path); err != nil {
		return false, err
	}
	return f.homes[path] != nil, nil
}

func (f *fakeSystem) Chown(ctx context.Context, path, owner, group string) error {
	if err := f.op("chown " + path); err != nil {
		return err
	}
	f.homes[path].owner, f.homes[path].group = owner, group
	return nil
}

func (f *fakeSystem) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	if err := f.op("chmod " + path); err != nil {
		return err
	}
	f.homes[path].mode = mode
	return nil
}
