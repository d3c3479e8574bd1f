package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/steelcutops/provision/logger"
	"github.com/steelcutops/provision/steelcut/commandmanager"
	"github.com/steelcutops/provision/steelcut/config"
	"github.com/steelcutops/provision/steelcut/credentialstore"
	"github.com/steelcutops/provision/steelcut/filemanager"
	"github.com/steelcutops/provision/steelcut/hostmanager"
	"github.com/steelcutops/provision/steelcut/manifest"
	"github.com/steelcutops/provision/steelcut/passwordmanager"
	"github.com/steelcutops/provision/steelcut/provisioner"
	"github.com/steelcutops/provision/steelcut/usermanager"
)

const (
	exitOK = iota
	exitNotRoot
	exitUsage
	exitManifestNotFound
	exitLogSetup
	exitSecureSetup
	exitLocked
	exitConfig
	exitRunFailed
)

var (
	ErrPermission       = errors.New("this program must be run as root")
	ErrUsage            = errors.New("usage: provision [flags] <manifest_path>")
	ErrManifestNotFound = errors.New("manifest file not found")
	ErrLogSetup         = errors.New("cannot prepare log file")
	ErrSecureSetup      = errors.New("cannot prepare secure directory")
	ErrConfig           = errors.New("invalid configuration")
)

type flags struct {
	ConfigPath            string
	Debug                 bool
	DryRun                bool
	KeepExistingPasswords bool
	LogFileName           string
	ManifestPath          string
}

// app holds the process-level collaborators so tests can swap them.
type app struct {
	fs       afero.Fs
	geteuid  func() int
	stdout   io.Writer
	stderr   io.Writer
	commands commandmanager.CommandManager
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		fs:      afero.NewOsFs(),
		geteuid: os.Geteuid,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	os.Exit(a.run(ctx, os.Args[1:]))
}

func parseFlags(args []string, output io.Writer) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug log level")
	fs.BoolVar(&f.DryRun, "dry-run", false, "Parse and validate the manifest without changing the system")
	fs.BoolVar(&f.KeepExistingPasswords, "keep-existing-passwords", false, "Do not reset passwords of accounts that already exist")
	fs.StringVar(&f.ConfigPath, "config", config.DefaultPath, "Path to INI configuration file")
	fs.StringVar(&f.LogFileName, "log", "", "Log file name (overrides paths.log_file)")
	fs.Usage = func() {
		fmt.Fprintln(output, ErrUsage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return f, ErrUsage
	}
	f.ManifestPath = fs.Arg(0)
	return f, nil
}

func (a *app) run(ctx context.Context, args []string) int {
	f, err := parseFlags(args, a.stderr)
	if f == nil || !f.DryRun {
		// The privilege check comes first, even before a usage error.
		if a.geteuid() != 0 {
			return a.fail(ErrPermission)
		}
	}
	if err != nil {
		return a.fail(err)
	}

	if err := a.checkManifest(f.ManifestPath); err != nil {
		return a.fail(err)
	}

	cfg, err := config.Load(a.fs, f.ConfigPath, f.ConfigPath != config.DefaultPath)
	if err != nil {
		return a.fail(fmt.Errorf("%w: %v", ErrConfig, err))
	}
	if f.LogFileName != "" {
		cfg.Paths.LogFile = f.LogFileName
	}
	if f.KeepExistingPasswords {
		cfg.Accounts.ResetExistingPasswords = false
	}

	if f.DryRun {
		return a.dryRun(f.ManifestPath)
	}
	return a.provision(ctx, f, cfg)
}

func (a *app) checkManifest(path string) error {
	info, err := a.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrManifestNotFound, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrManifestNotFound, path)
	}
	return nil
}

func (a *app) provision(ctx context.Context, f *flags, cfg *config.Config) int {
	uid, gid := cfg.Accounts.AdminUID, cfg.Accounts.AdminGID

	logFile, err := logger.OpenFile(a.fs, cfg.Paths.LogFile, uid, gid)
	if err != nil {
		return a.fail(fmt.Errorf("%w %s: %v", ErrLogSetup, cfg.Paths.LogFile, err))
	}
	defer logFile.Close()
	log := logger.New(logFile, a.stderr, f.Debug)

	store := credentialstore.New(a.fs, cfg.Paths.CredentialsFile, uid, gid)
	store.LockPath = cfg.Paths.LockFile
	if err := store.PrepareDir(); err != nil {
		return logFail(log, fmt.Errorf("%w %s: %v", ErrSecureSetup, store.Dir(), err))
	}
	if err := store.Lock(); err != nil {
		if !errors.Is(err, credentialstore.ErrLocked) {
			err = fmt.Errorf("%w: %v", ErrSecureSetup, err)
		}
		return logFail(log, err)
	}
	defer store.Unlock()
	if err := store.PrepareFile(); err != nil {
		return logFail(log, fmt.Errorf("%w: credentials file %s: %v", ErrSecureSetup, store.Path, err))
	}

	commands := a.commands
	if commands == nil {
		commands = commandmanager.NewUnixCommandManager(cfg.Commands.Timeout, log)
	}

	if info, err := hostmanager.NewUnixHostManager(commands).Info(ctx); err != nil {
		log.Debugf("Could not identify host: %v", err)
	} else {
		log.Infof("Provisioning on %s (%s %s)", info.Hostname, info.OSVersion, info.KernelVersion)
	}

	manifestFile, err := a.fs.Open(f.ManifestPath)
	if err != nil {
		return logFail(log, fmt.Errorf("%w: %v", ErrManifestNotFound, err))
	}
	defer manifestFile.Close()

	p := &provisioner.Provisioner{
		Users:       usermanager.NewLinuxUserManager(commands),
		Files:       filemanager.NewUnixFileManager(commands),
		Passwords:   passwordmanager.NewGenerator(),
		Credentials: store,
		Logger:      log,
		Options: provisioner.Options{
			HomeRoot:               cfg.Paths.HomeRoot,
			Shell:                  cfg.Accounts.DefaultShell,
			ResetExistingPasswords: cfg.Accounts.ResetExistingPasswords,
			HashPasswords:          cfg.Accounts.PasswordHash == config.HashSHA512,
		},
	}

	if _, err := p.Run(ctx, f.ManifestPath, manifestFile); err != nil {
		return exitRunFailed
	}
	return exitOK
}

// dryRun validates the manifest and prints what would be provisioned.
func (a *app) dryRun(path string) int {
	file, err := a.fs.Open(path)
	if err != nil {
		return a.fail(fmt.Errorf("%w: %s", ErrManifestNotFound, path))
	}
	defer file.Close()

	invalid := 0
	sc := manifest.NewScanner(file)
	for sc.Next() {
		rec, err := sc.Record()
		if err != nil {
			invalid++
			fmt.Fprintf(a.stdout, "line %d: skip: %v\n", rec.Line, err)
			continue
		}
		fmt.Fprintf(a.stdout, "line %d: %s groups=%v\n", rec.Line, rec.Username, rec.Groups)
	}
	if err := sc.Err(); err != nil {
		return a.fail(fmt.Errorf("read %s: %w", path, err))
	}
	fmt.Fprintf(a.stdout, "%d invalid record(s)\n", invalid)
	return exitOK
}

func (a *app) fail(err error) int {
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return exitCode(err)
}

func logFail(log logger.Logger, err error) int {
	log.Errorf("%v", err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ErrPermission):
		return exitNotRoot
	case errors.Is(err, ErrUsage):
		return exitUsage
	case errors.Is(err, ErrManifestNotFound):
		return exitManifestNotFound
	case errors.Is(err, ErrLogSetup):
		return exitLogSetup
	case errors.Is(err, ErrSecureSetup):
		return exitSecureSetup
	case errors.Is(err, credentialstore.ErrLocked):
		return exitLocked
	case errors.Is(err, ErrConfig):
		return exitConfig
	default:
		return exitRunFailed
	}
}
