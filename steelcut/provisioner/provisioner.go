// Package provisioner reconciles manifest records against the live account
// database: personal group, account, home directory permissions,
// supplementary memberships and a freshly generated password.
//
// Records are handled strictly in order. A failing step either abandons
// the record or is logged and skipped; nothing is retried and no failure
// crosses a record boundary.
package provisioner

import (
	"context"
	"fmt"
	"io"
	"path"
	"slices"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/steelcutops/provision/logger"
	"github.com/steelcutops/provision/steelcut/filemanager"
	"github.com/steelcutops/provision/steelcut/manifest"
	"github.com/steelcutops/provision/steelcut/passwordmanager"
	"github.com/steelcutops/provision/steelcut/usermanager"
)

const homeMode = 0700

type PasswordGenerator interface {
	Generate() (string, passwordmanager.Source, error)
}

type CredentialWriter interface {
	Append(username, password string) error
}

type Options struct {
	HomeRoot string
	Shell    string
	// ResetExistingPasswords rotates the password of accounts that already
	// existed. Each run then appends a new credential row for them.
	ResetExistingPasswords bool
	// HashPasswords passes sha512-crypt hashes to chpasswd -e instead of
	// plaintext.
	HashPasswords bool
}

type Provisioner struct {
	Users       usermanager.UserManager
	Files       filemanager.FileManager
	Passwords   PasswordGenerator
	Credentials CredentialWriter
	Logger      logger.Logger
	Options     Options
}

// Run processes every record of the manifest read from r. name is only
// used in log entries. The returned error is non-nil when the manifest
// could not be read to the end or ctx was cancelled; per-record failures
// are reported through the summary.
func (p *Provisioner) Run(ctx context.Context, name string, r io.Reader) (Summary, error) {
	runID := uuid.NewString()
	p.Logger.Infof("Starting user provisioning run %s for %s", runID, name)

	var summary Summary
	sc := manifest.NewScanner(r)
	for sc.Next() {
		rec, err := sc.Record()
		if ctxErr := ctx.Err(); ctxErr != nil {
			p.Logger.Errorf("Run %s interrupted before line %d: %v", runID, rec.Line, ctxErr)
			return summary, ctxErr
		}
		if err != nil {
			p.Logger.Errorf("Invalid username %q on line %d, skipping", rec.Username, rec.Line)
			summary.add(Result{Line: rec.Line, Username: rec.Username, Outcome: Invalid, Err: err})
			continue
		}
		summary.add(p.Provision(ctx, rec))
	}
	if err := sc.Err(); err != nil {
		p.Logger.Errorf("Failed to read %s: %v", name, err)
		return summary, err
	}

	p.Logger.Infof("User provisioning completed for %s (run %s): %s", name, runID, summary)
	return summary, nil
}

// Provision applies a single, already validated record.
func (p *Provisioner) Provision(ctx context.Context, rec manifest.Record) Result {
	user := rec.Username
	res := Result{Line: rec.Line, Username: user}
	var errs *multierror.Error

	abandon := func(format string, args ...interface{}) Result {
		err := fmt.Errorf(format, args...)
		p.Logger.Errorf("%v", err)
		res.Outcome = Failed
		res.Err = multierror.Append(errs, err).ErrorOrNil()
		return res
	}
	warn := func(format string, args ...interface{}) {
		err := fmt.Errorf(format, args...)
		p.Logger.Errorf("%v", err)
		errs = multierror.Append(errs, err)
	}

	groups := p.validGroups(rec.Groups, warn)

	// Personal group.
	exists, err := p.Users.GroupExists(ctx, user)
	if err != nil {
		return abandon("Failed to look up group %s: %w", user, err)
	}
	if exists {
		p.Logger.Infof("Group %s already exists", user)
	} else if err := p.Users.AddGroup(ctx, user); err != nil {
		return abandon("Failed to create group %s: %w", user, err)
	} else {
		p.Logger.Infof("Created group %s", user)
	}

	// Account.
	existed, err := p.Users.UserExists(ctx, user)
	if err != nil {
		return abandon("Failed to look up user %s: %w", user, err)
	}
	if existed {
		p.Logger.Infof("User %s already exists", user)
		p.reconcilePrimaryGroup(ctx, user, warn)
	} else {
		for _, g := range groups {
			p.ensureGroup(ctx, g, warn)
		}
		err := p.Users.AddUser(ctx, usermanager.User{
			Username:     user,
			PrimaryGroup: user,
			Groups:       groups,
			HomeDir:      p.homeDir(user),
			Shell:        p.Options.Shell,
		})
		if err != nil {
			return abandon("Failed to create user %s: %w", user, err)
		}
		res.Created = true
		p.Logger.Infof("Created user %s with groups %v", user, groups)
	}

	p.hardenHome(ctx, user, warn)
	p.reconcileMembership(ctx, user, groups, warn)

	if existed && !p.Options.ResetExistingPasswords {
		p.Logger.Infof("Keeping existing password for user %s", user)
		res.Outcome = Skipped
		res.Err = errs.ErrorOrNil()
		return res
	}

	// Password.
	password, source, err := p.Passwords.Generate()
	switch {
	case source == passwordmanager.SourceFallback:
		warn("No random source available for %s, using the fixed fallback password: %w", user, err)
	case err != nil:
		p.Logger.Infof("Using %s random source for %s: %v", source, user, err)
	}

	secret, hashed := password, false
	if p.Options.HashPasswords {
		secret, err = passwordmanager.HashSHA512(password)
		if err != nil {
			return abandon("Failed to hash password for %s: %w", user, err)
		}
		hashed = true
	}
	if err := p.Users.SetPassword(ctx, user, secret, hashed); err != nil {
		return abandon("Failed to set password for %s: %w", user, err)
	}
	res.PasswordSet = true
	p.Logger.Infof("Set password for user %s", user)

	if err := p.Credentials.Append(user, password); err != nil {
		warn("Failed to record credentials for %s: %w", user, err)
	} else {
		p.Logger.Infof("Recorded credentials for user %s", user)
	}

	res.Outcome = Provisioned
	res.Err = errs.ErrorOrNil()
	return res
}

// validGroups drops supplementary group names that are not valid names,
// reporting each one.
func (p *Provisioner) validGroups(groups []string, warn func(string, ...interface{})) []string {
	valid := make([]string, 0, len(groups))
	for _, g := range groups {
		if !manifest.ValidGroupName(g) {
			warn("Invalid group name %q, skipping", g)
			continue
		}
		valid = append(valid, g)
	}
	return valid
}

func (p *Provisioner) homeDir(user string) string {
	return path.Join(p.Options.HomeRoot, user)
}

func (p *Provisioner) reconcilePrimaryGroup(ctx context.Context, user string, warn func(string, ...interface{})) {
	primary, err := p.Users.PrimaryGroup(ctx, user)
	if err != nil {
		warn("Failed to read primary group of %s: %w", user, err)
		return
	}
	if primary == user {
		return
	}
	if err := p.Users.SetPrimaryGroup(ctx, user, user); err != nil {
		warn("Failed to change primary group of %s from %s to %s: %w", user, primary, user, err)
		return
	}
	p.Logger.Infof("Changed primary group of %s from %s to %s", user, primary, user)
}

func (p *Provisioner) ensureGroup(ctx context.Context, group string, warn func(string, ...interface{})) {
	exists, err := p.Users.GroupExists(ctx, group)
	if err != nil {
		warn("Failed to look up group %s: %w", group, err)
		return
	}
	if exists {
		return
	}
	if err := p.Users.AddGroup(ctx, group); err != nil {
		warn("Failed to create group %s: %w", group, err)
		return
	}
	p.Logger.Infof("Created group %s", group)
}

func (p *Provisioner) hardenHome(ctx context.Context, user string, warn func(string, ...interface{})) {
	home := p.homeDir(user)
	exists, err := p.Files.DirExists(ctx, home)
	if err != nil {
		warn("Failed to check home directory %s: %w", home, err)
		return
	}
	if !exists {
		warn("Home directory %s does not exist", home)
		return
	}
	if err := p.Files.Chown(ctx, home, user, user); err != nil {
		warn("Failed to set ownership of %s: %w", home, err)
	} else {
		p.Logger.Infof("Set ownership of %s to %s:%s", home, user, user)
	}
	if err := p.Files.Chmod(ctx, home, homeMode); err != nil {
		warn("Failed to set permissions on %s: %w", home, err)
	} else {
		p.Logger.Infof("Set permissions on %s to %o", home, homeMode)
	}
}

func (p *Provisioner) reconcileMembership(ctx context.Context, user string, groups []string, warn func(string, ...interface{})) {
	if len(groups) == 0 {
		return
	}
	current, err := p.Users.Groups(ctx, user)
	if err != nil {
		warn("Failed to read group memberships of %s: %w", user, err)
		return
	}
	for _, g := range groups {
		if slices.Contains(current, g) {
			p.Logger.Infof("User %s is already a member of %s", user, g)
			continue
		}
		if err := p.Users.AddToGroup(ctx, user, g); err != nil {
			warn("Failed to add user %s to group %s: %w", user, g, err)
			continue
		}
		current = append(current, g)
		p.Logger.Infof("Added user %s to group %s", user, g)
	}
}
