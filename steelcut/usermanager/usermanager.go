package usermanager

import "context"

// User represents an account to be created on the system.
type User struct {
	Username     string   // user login name
	PrimaryGroup string   // primary group name
	Groups       []string // supplementary group names, may be empty
	HomeDir      string   // user home directory, created by useradd
	Shell        string   // user's login shell
}

// UserManager encompasses the account administration operations needed to
// reconcile users and groups against the live system.
type UserManager interface {
	// Reports whether a group with the given name exists
	GroupExists(ctx context.Context, name string) (bool, error)

	// Reports whether an account with the given name exists
	UserExists(ctx context.Context, username string) (bool, error)

	// Creates a group
	AddGroup(ctx context.Context, name string) error

	// Creates a user with a home directory, shell, primary and supplementary groups
	AddUser(ctx context.Context, user User) error

	// Returns the name of the user's current primary group
	PrimaryGroup(ctx context.Context, username string) (string, error)

	// Returns every group the user belongs to, primary included
	Groups(ctx context.Context, username string) ([]string, error)

	// Changes the user's primary group
	SetPrimaryGroup(ctx context.Context, username, group string) error

	// Appends the user to a supplementary group
	AddToGroup(ctx context.Context, username, group string) error

	// Sets the account password; hashed means password is already a crypt(3) string
	SetPassword(ctx context.Context, username, password string, hashed bool) error
}
