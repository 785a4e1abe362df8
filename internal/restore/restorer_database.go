// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/backhaul/internal/logging"
)

// Supported database engines.
const (
	EngineMySQL    = "mysql"
	EnginePostgres = "postgres"
)

// stderrTailSize is how much client stderr is kept for error messages.
const stderrTailSize = 4 << 10

// DatabaseOptions holds the connection parameters handed to the engine client.
type DatabaseOptions struct {
	Engine     string
	Host       string
	Port       int
	Name       string
	User       string
	Password   string
	BinaryPath string
	Timeout    time.Duration
}

// Command is one external process invocation.
type Command struct {
	Path  string
	Args  []string
	Env   []string
	Stdin io.Reader
}

// CommandRunner runs external commands. ExecRunner is the production implementation.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec, killing the process when ctx ends.
type ExecRunner struct {
	// WaitDelay bounds how long to wait for I/O after the process is killed.
	WaitDelay time.Duration
}

// Run starts the command and waits for it. A non-zero exit includes the tail of stderr.
func (r ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...) //nolint:gosec // G204: binary and args come from operator configuration
	cmd.Env = c.Env
	cmd.Stdin = c.Stdin
	cmd.Stdout = io.Discard

	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr

	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", filepath.Base(c.Path), err, msg)
		}
		return fmt.Errorf("%s: %w", filepath.Base(c.Path), err)
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// DatabaseRestorer replays SQL dumps through the engine's command-line client.
// SQL is never parsed here; the client does all statement handling.
type DatabaseRestorer struct {
	opts   DatabaseOptions
	runner CommandRunner
}

// NewDatabaseRestorer creates a database restorer. A nil runner uses ExecRunner.
func NewDatabaseRestorer(opts DatabaseOptions, runner CommandRunner) (*DatabaseRestorer, error) {
	switch opts.Engine {
	case "":
		opts.Engine = EngineMySQL
	case EngineMySQL, EnginePostgres:
	default:
		return nil, fmt.Errorf("unsupported database engine %q", opts.Engine)
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Name == "" {
		opts.Name = "app"
	}
	if opts.User == "" {
		opts.User = "root"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if runner == nil {
		runner = ExecRunner{}
	}

	if opts.Password == "" {
		logging.Warn().
			Str("engine", opts.Engine).
			Str("user", opts.User).
			Msg("Database restore configured without a password; set DB_PASSWORD for non-local engines")
	}

	return &DatabaseRestorer{opts: opts, runner: runner}, nil
}

// Restore replays the dump at path. The run is bounded by the configured
// timeout and by ctx.
func (r *DatabaseRestorer) Restore(ctx context.Context, path string) error {
	dump, err := os.Open(path) //nolint:gosec // G304: path is a staged or extracted artifact
	if err != nil {
		return fmt.Errorf("open dump: %w", err)
	}
	defer dump.Close() //nolint:errcheck // read-only file

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	cmd := r.command(path, dump)

	logging.Ctx(ctx).Info().
		Str("engine", r.opts.Engine).
		Str("host", r.opts.Host).
		Str("database", r.opts.Name).
		Str("dump", filepath.Base(path)).
		Msg("Replaying database dump")

	if err := r.runner.Run(runCtx, cmd); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("database restore timed out after %s: %w", r.opts.Timeout, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("database restore canceled: %w", ctx.Err())
		}
		return fmt.Errorf("database restore: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("dump", filepath.Base(path)).
		Dur("duration", time.Since(start)).
		Msg("Database dump replayed")
	return nil
}

// command builds the client invocation for the configured engine.
func (r *DatabaseRestorer) command(path string, dump io.Reader) Command {
	env := os.Environ()

	switch r.opts.Engine {
	case EnginePostgres:
		args := []string{
			"-h", r.opts.Host,
			"-U", r.opts.User,
			"-d", r.opts.Name,
			"-v", "ON_ERROR_STOP=1",
			"-q",
			"-f", path,
		}
		if r.opts.Port > 0 {
			args = append([]string{"-p", strconv.Itoa(r.opts.Port)}, args...)
		}
		if r.opts.Password != "" {
			env = append(env, "PGPASSWORD="+r.opts.Password)
		}
		return Command{Path: r.binary("psql"), Args: args, Env: env}

	default:
		args := []string{"-h", r.opts.Host, "-u", r.opts.User}
		if r.opts.Port > 0 {
			args = append(args, "-P", strconv.Itoa(r.opts.Port))
		}
		args = append(args, r.opts.Name)
		if r.opts.Password != "" {
			env = append(env, "MYSQL_PWD="+r.opts.Password)
		}
		return Command{Path: r.binary("mysql"), Args: args, Env: env, Stdin: dump}
	}
}

func (r *DatabaseRestorer) binary(defaultName string) string {
	if r.opts.BinaryPath != "" {
		return r.opts.BinaryPath
	}
	return defaultName
}
