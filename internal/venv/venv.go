package venv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/nbiso/internal/config"
	"github.com/roach88/nbiso/internal/shell"
)

// Provisioner hands out isolated environments.
type Provisioner interface {
	// Clone returns the directory of a fresh environment that has packages
	// installed. The caller owns the directory and removes it when done.
	Clone(ctx context.Context, name string, packages []string) (string, error)
}

// CommandError reports a provisioning command that exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited %d", e.Command, e.ExitCode)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// VenvProvisioner clones a cached base environment with virtualenv-clone.
//
// Thread-safety: safe for concurrent use. Concurrent requests for the same
// package set share one base environment build.
type VenvProvisioner struct {
	runner    shell.Runner
	python    string
	cloneTool string
	workDir   string
	logger    *zap.Logger

	// NewID names clone directories. Defaults to random UUIDs.
	NewID func() string

	group singleflight.Group
	mu    sync.Mutex
	bases map[string]string
}

// New creates a provisioner from the venv section of cfg.
func New(cfg config.VenvConfig, runner shell.Runner, logger *zap.Logger) *VenvProvisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VenvProvisioner{
		runner:    runner,
		python:    cfg.Python,
		cloneTool: cfg.CloneTool,
		workDir:   cfg.WorkDir,
		logger:    logger,
		NewID:     uuid.NewString,
		bases:     make(map[string]string),
	}
}

// Clone implements Provisioner.
func (p *VenvProvisioner) Clone(ctx context.Context, name string, packages []string) (string, error) {
	base, err := p.Base(ctx, name, packages)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(p.workDir, p.NewID())
	if err := p.run(ctx, shell.Command{Name: p.cloneTool, Args: []string{base, dir}}); err != nil {
		return "", fmt.Errorf("clone environment %s: %w", name, err)
	}
	p.logger.Debug("cloned environment", zap.String("base", base), zap.String("dir", dir))
	return dir, nil
}

// Base returns the base environment for packages, creating it on first use.
func (p *VenvProvisioner) Base(ctx context.Context, name string, packages []string) (string, error) {
	key := name + "-" + packageHash(packages)

	p.mu.Lock()
	dir, ok := p.bases[key]
	p.mu.Unlock()
	if ok {
		return dir, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		p.mu.Lock()
		dir, ok := p.bases[key]
		p.mu.Unlock()
		if ok {
			return dir, nil
		}

		dir, err := p.create(ctx, key, packages)
		if err != nil {
			return "", err
		}

		p.mu.Lock()
		p.bases[key] = dir
		p.mu.Unlock()
		return dir, nil
	})
	if err != nil {
		return "", fmt.Errorf("base environment %s: %w", name, err)
	}
	return v.(string), nil
}

// create builds a base environment in a new directory under the work dir.
// The directory is unique to this provisioner, so processes sharing a work
// dir never rebuild each other's base.
func (p *VenvProvisioner) create(ctx context.Context, key string, packages []string) (string, error) {
	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(p.workDir, key+"-*")
	if err != nil {
		return "", fmt.Errorf("create base dir: %w", err)
	}

	p.logger.Info("creating base environment",
		zap.String("dir", dir), zap.Strings("packages", packages))

	if err := p.install(ctx, dir, packages); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

func (p *VenvProvisioner) install(ctx context.Context, dir string, packages []string) error {
	if err := p.run(ctx, shell.Command{Name: p.python, Args: []string{"-m", "venv", "--clear", dir}}); err != nil {
		return err
	}
	if len(packages) == 0 {
		return nil
	}

	args := append([]string{"-m", "pip", "install", "--quiet"}, packages...)
	return p.run(ctx, shell.Command{Name: filepath.Join(dir, "bin", "python"), Args: args})
}

// Close removes the base environments built by p. Clones are owned by
// their callers and are left alone.
func (p *VenvProvisioner) Close() error {
	p.mu.Lock()
	bases := p.bases
	p.bases = make(map[string]string)
	p.mu.Unlock()

	var errs []error
	for _, dir := range bases {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove base environment %s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

func (p *VenvProvisioner) run(ctx context.Context, cmd shell.Command) error {
	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &CommandError{
			Command:  cmd.String(),
			ExitCode: res.ExitCode,
			Output:   strings.TrimSpace(string(res.Combined())),
		}
	}
	return nil
}

// packageHash identifies a package set independent of order.
func packageHash(packages []string) string {
	sorted := slices.Clone(packages)
	slices.Sort(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])[:12]
}
