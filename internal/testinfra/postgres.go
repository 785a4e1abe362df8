// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tomtom215/backhaul/internal/restore"
)

const (
	// DefaultPostgresImage is the server image used by NewPostgresContainer.
	DefaultPostgresImage = "docker.io/postgres:17-alpine"

	defaultDatabase = "backhaul_test"
	defaultUser     = "backhaul"
	defaultPassword = "test-password"
)

// PostgresContainer is a running PostgreSQL server.
type PostgresContainer struct {
	*postgres.PostgresContainer

	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresOption configures NewPostgresContainer.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	image        string
	startTimeout time.Duration
}

// WithPostgresImage overrides DefaultPostgresImage.
func WithPostgresImage(image string) PostgresOption {
	return func(c *postgresConfig) {
		c.image = image
	}
}

// NewPostgresContainer starts PostgreSQL and waits until it accepts connections.
func NewPostgresContainer(ctx context.Context, opts ...PostgresOption) (*PostgresContainer, error) {
	cfg := &postgresConfig{
		image:        DefaultPostgresImage,
		startTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	container, err := postgres.Run(ctx,
		cfg.image,
		postgres.WithDatabase(defaultDatabase),
		postgres.WithUsername(defaultUser),
		postgres.WithPassword(defaultPassword),
		testcontainers.WithWaitStrategy(
			// The server restarts once after initdb.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(cfg.startTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		Host:              host,
		Port:              port.Int(),
		Database:          defaultDatabase,
		User:              defaultUser,
		Password:          defaultPassword,
	}, nil
}

// DSN returns a connection string for the mapped host port.
func (c *PostgresContainer) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RestoreOptions returns restorer options that address the server from
// inside its own container, for use with Runner.
func (c *PostgresContainer) RestoreOptions() restore.DatabaseOptions {
	return restore.DatabaseOptions{
		Engine:   restore.EnginePostgres,
		Host:     "localhost",
		Name:     c.Database,
		User:     c.User,
		Password: c.Password,
		Timeout:  time.Minute,
	}
}

// Runner returns a restore.CommandRunner that executes client commands
// inside the container.
func (c *PostgresContainer) Runner() restore.CommandRunner {
	return &ContainerRunner{Container: c.PostgresContainer}
}

// ContainerRunner runs restore commands with docker exec. Files passed with
// -f are copied to the same path inside the container first. Stdin is not
// supported.
type ContainerRunner struct {
	Container testcontainers.Container

	// Commands records the argv of every run.
	Commands [][]string
}

var _ restore.CommandRunner = (*ContainerRunner)(nil)

// Run implements restore.CommandRunner.
func (r *ContainerRunner) Run(ctx context.Context, cmd restore.Command) error {
	if cmd.Stdin != nil {
		return fmt.Errorf("container runner does not support stdin")
	}

	for i, arg := range cmd.Args {
		if arg != "-f" || i+1 >= len(cmd.Args) {
			continue
		}
		file := cmd.Args[i+1]
		if code, _, err := r.Container.Exec(ctx, []string{"mkdir", "-p", path.Dir(file)}); err != nil || code != 0 {
			return fmt.Errorf("mkdir %s in container: code %d: %w", path.Dir(file), code, err)
		}
		if err := r.Container.CopyFileToContainer(ctx, file, file, 0o644); err != nil {
			return fmt.Errorf("copy %s to container: %w", file, err)
		}
	}

	argv := append([]string{path.Base(cmd.Path)}, cmd.Args...)
	r.Commands = append(r.Commands, argv)

	code, out, err := r.Container.Exec(ctx, argv, tcexec.Multiplexed(), tcexec.WithEnv(clientEnv(cmd.Env)))
	if err != nil {
		return fmt.Errorf("exec %s: %w", argv[0], err)
	}
	if code != 0 {
		output, _ := io.ReadAll(out)
		return fmt.Errorf("%s exited with code %d: %s", argv[0], code, strings.TrimSpace(string(output)))
	}
	return nil
}

// clientEnv keeps only the client credential variables; the host
// environment is meaningless inside the container.
func clientEnv(env []string) []string {
	var out []string
	for _, kv := range env {
		if strings.HasPrefix(kv, "PG") || strings.HasPrefix(kv, "MYSQL_PWD=") {
			out = append(out, kv)
		}
	}
	return out
}
