package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

const DefaultPath = "/etc/provision/provision.ini"

// Password hashing modes for chpasswd.
const (
	HashSystem = "system" // plaintext to chpasswd, hashed by PAM with the system default
	HashSHA512 = "sha512" // pre-hashed with sha512-crypt and passed to chpasswd -e
)

type Config struct {
	Paths    PathsConfig    `ini:"paths"`
	Accounts AccountsConfig `ini:"accounts"`
	Commands CommandsConfig `ini:"commands"`
}

type PathsConfig struct {
	LogFile         string `ini:"log_file"`
	CredentialsFile string `ini:"credentials_file"`
	LockFile        string `ini:"lock_file"`
	HomeRoot        string `ini:"home_root"`
}

type AccountsConfig struct {
	DefaultShell           string `ini:"default_shell"`
	ResetExistingPasswords bool   `ini:"reset_existing_passwords"`
	PasswordHash           string `ini:"password_hash"`
	AdminUID               int    `ini:"admin_uid"`
	AdminGID               int    `ini:"admin_gid"`
}

type CommandsConfig struct {
	Timeout time.Duration `ini:"timeout"`
}

func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			LogFile:         "/var/log/user_management.log",
			CredentialsFile: "/var/secure/user_passwords.csv",
			LockFile:        "/var/secure/.provision.lock",
			HomeRoot:        "/home",
		},
		Accounts: AccountsConfig{
			DefaultShell:           "/bin/bash",
			ResetExistingPasswords: true,
			PasswordHash:           HashSystem,
		},
		Commands: CommandsConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads an INI file from fs over the defaults. A missing file at the
// default path is not an error; a missing explicitly requested file is.
func Load(fs afero.Fs, path string, required bool) (*Config, error) {
	cfg := Default()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, err
	}

	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := file.MapTo(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Accounts.PasswordHash {
	case HashSystem, HashSHA512:
	default:
		return fmt.Errorf("accounts.password_hash must be %q or %q, got %q", HashSystem, HashSHA512, c.Accounts.PasswordHash)
	}
	if c.Paths.LogFile == "" || c.Paths.CredentialsFile == "" || c.Paths.HomeRoot == "" {
		return errors.New("paths.log_file, paths.credentials_file and paths.home_root must be set")
	}
	if c.Commands.Timeout <= 0 {
		return fmt.Errorf("commands.timeout must be positive, got %s", c.Commands.Timeout)
	}
	return nil
}
