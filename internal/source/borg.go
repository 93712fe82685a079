package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/maximevalette/backups-reporter/internal/config"
	"github.com/maximevalette/backups-reporter/internal/domain"
	apperrors "github.com/maximevalette/backups-reporter/internal/errors"
)

const (
	borgMountTimeout  = 5 * time.Minute
	borgUmountTimeout = time.Minute
)

type runBorgFunc func(ctx context.Context, env []string, args ...string) (stderr string, err error)

var runBorg runBorgFunc = runBorgCommand

// SetRunBorgForTest allows tests to stub out borg invocations.
func SetRunBorgForTest(fn runBorgFunc) func() {
	prev := runBorg
	runBorg = fn
	return func() { runBorg = prev }
}

// BorgProvider lists archives from a Borg repository through a
// read-only FUSE mount of the whole repository.
type BorgProvider struct {
	cfg    config.BorgRepoConfig
	logger *slog.Logger
}

// NewBorgProvider creates a provider for one configured Borg repository
func NewBorgProvider(cfg config.BorgRepoConfig, logger *slog.Logger) *BorgProvider {
	return &BorgProvider{cfg: cfg, logger: logger}
}

// Name returns the source label
func (p *BorgProvider) Name() string {
	return "borg:" + p.cfg.Name
}

// Fetch mounts the repository, lists the limit most recent archives and
// unmounts again. The unmount runs on every path once the mount
// succeeded, including listing failures.
func (p *BorgProvider) Fetch(ctx context.Context, limit int) ([]domain.Entry, error) {
	mountPoint, err := os.MkdirTemp("", fmt.Sprintf("borg_%s_", p.cfg.Name))
	if err != nil {
		return nil, apperrors.NewSourceError(p.Name(), "create mount point", err)
	}

	mountCtx, cancel := context.WithTimeout(ctx, borgMountTimeout)
	defer cancel()

	stderr, err := runBorg(mountCtx, p.env(), "mount", p.cfg.Repository, mountPoint)
	if err != nil {
		os.Remove(mountPoint)
		if strings.TrimSpace(stderr) != "" {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))
		}
		return nil, apperrors.NewSourceError(p.Name(), "mount repository", err)
	}
	defer p.unmount(mountPoint)

	p.logger.Info("mounted borg repository", "source", p.Name(), "mount_point", mountPoint)

	entries, err := p.listArchives(mountPoint, limit)
	if err != nil {
		return nil, apperrors.NewSourceError(p.Name(), "list archives", err)
	}
	return entries, nil
}

// listArchives reads the mount point; every top-level directory is one
// archive. Archive sizes are not cheaply knowable without extracting
// the archive, so Size stays nil.
func (p *BorgProvider) listArchives(mountPoint string, limit int) ([]domain.Entry, error) {
	dirEntries, err := os.ReadDir(mountPoint)
	if err != nil {
		return nil, err
	}

	var entries []domain.Entry
	for _, dirEntry := range dirEntries {
		if !dirEntry.IsDir() {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		entries = append(entries, domain.Entry{
			Source:    p.Name(),
			Name:      dirEntry.Name(),
			Timestamp: info.ModTime().UTC(),
			Kind:      domain.EntryKindBorgArchive,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// unmount releases the mount. It deliberately uses a fresh context so
// the release still happens when the run context is already canceled.
func (p *BorgProvider) unmount(mountPoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), borgUmountTimeout)
	defer cancel()

	if stderr, err := runBorg(ctx, nil, "umount", mountPoint); err != nil {
		p.logger.Error("failed to unmount borg repository", "source", p.Name(), "err", err, "stderr", strings.TrimSpace(stderr))
	} else {
		p.logger.Info("unmounted borg repository", "source", p.Name())
	}
	if err := os.Remove(mountPoint); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove mount point", "source", p.Name(), "err", err)
	}
}

func (p *BorgProvider) env() []string {
	env := os.Environ()
	if p.cfg.Passphrase != "" {
		env = append(env, "BORG_PASSPHRASE="+p.cfg.Passphrase)
	}

	if strings.HasPrefix(p.cfg.Repository, "ssh://") || strings.Contains(p.cfg.Repository, "@") {
		var sshOptions []string
		if !p.cfg.SSHStrictHostKeyChecking {
			sshOptions = append(sshOptions, "-o", "StrictHostKeyChecking=no", "-o", "UserKnownHostsFile=/dev/null")
		} else if p.cfg.SSHKnownHostsFile != "" {
			sshOptions = append(sshOptions, "-o", "UserKnownHostsFile="+p.cfg.SSHKnownHostsFile)
		}
		if len(sshOptions) > 0 {
			env = append(env, "BORG_RSH=ssh "+strings.Join(sshOptions, " "))
		}
	}
	return env
}

func runBorgCommand(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "borg", args...)
	if env != nil {
		cmd.Env = env
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}
