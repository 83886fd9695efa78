package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"backupd/internal/archive"
	"backupd/internal/config"
)

// Tools holds the paths of the external PostgreSQL binaries. Zero values
// fall back to the binaries on PATH.
type Tools struct {
	PGDump    string `mapstructure:"pg_dump"`
	PGRestore string `mapstructure:"pg_restore"`
	PSQL      string `mapstructure:"psql"`
}

func (t Tools) pgDump() string {
	if t.PGDump != "" {
		return t.PGDump
	}
	return "pg_dump"
}

func (t Tools) pgRestore() string {
	if t.PGRestore != "" {
		return t.PGRestore
	}
	return "pg_restore"
}

func (t Tools) psql() string {
	if t.PSQL != "" {
		return t.PSQL
	}
	return "psql"
}

// runTool executes one external tool invocation under a deadline. A hung
// tool is killed when the deadline expires and the error carries a distinct
// timed-out reason.
func runTool(ctx context.Context, timeout time.Duration, env []string, name string, args ...string) error {
	if timeout <= 0 {
		timeout = config.DefaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", name, timeout)
	}
	if out := bytes.TrimSpace(stderr.Bytes()); len(out) > 0 {
		return fmt.Errorf("%s failed: %s", name, out)
	}
	return fmt.Errorf("%s failed: %w", name, err)
}

func connectionArgs(db config.DatabaseConfig) []string {
	return []string{
		"-h", db.Host,
		"-p", strconv.Itoa(db.Port),
		"-U", db.User,
		"-d", db.Database,
	}
}

func connectionEnv(db config.DatabaseConfig, sslMode string) []string {
	return []string{
		"PGPASSWORD=" + db.Password,
		"PGSSLMODE=" + sslMode,
	}
}

// dump runs pg_dump writing the given format to outPath.
func (e *Engine) dump(ctx context.Context, db config.DatabaseConfig, format archive.Format, outPath string, timeout time.Duration) error {
	args := connectionArgs(db)
	args = append(args, "--no-owner", "--no-acl")
	if format == archive.FormatCustom {
		args = append(args, "--format=custom")
	} else {
		args = append(args, "--format=plain")
	}
	if db.Schema != "" {
		args = append(args, "-n", db.Schema)
	}
	for _, table := range db.ExcludeTables {
		args = append(args, "-T", table)
	}
	args = append(args, "-f", outPath)

	env := connectionEnv(db, e.store.SSLMode(db.Host))
	return runTool(ctx, timeout, env, e.tools.pgDump(), args...)
}

// restore replays a dump into the database. Custom archives go through
// pg_restore with clean/recreate semantics; plain dumps are replayed with
// psql after the target schema has been destructively reset.
func (e *Engine) restore(ctx context.Context, db config.DatabaseConfig, format archive.Format, dumpPath string, timeout time.Duration) error {
	env := connectionEnv(db, e.store.SSLMode(db.Host))

	if format == archive.FormatCustom {
		args := connectionArgs(db)
		args = append(args, "--clean", "--if-exists", "--no-owner", "--no-acl")
		if db.Schema != "" {
			args = append(args, "-n", db.Schema)
		}
		args = append(args, dumpPath)
		return runTool(ctx, timeout, env, e.tools.pgRestore(), args...)
	}

	schema := db.Schema
	if schema == "" {
		schema = "public"
	}
	reset := fmt.Sprintf("DROP SCHEMA IF EXISTS %q CASCADE; CREATE SCHEMA %q;", schema, schema)
	resetArgs := append(connectionArgs(db), "-v", "ON_ERROR_STOP=1", "-c", reset)
	if err := runTool(ctx, timeout, env, e.tools.psql(), resetArgs...); err != nil {
		return err
	}

	args := append(connectionArgs(db), "-v", "ON_ERROR_STOP=1", "-f", dumpPath)
	return runTool(ctx, timeout, env, e.tools.psql(), args...)
}
