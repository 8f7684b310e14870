// Package migrate applies the embedded schema migrations and development seeds with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/obs"
	"sitegate.io/internal/projects"
)

//go:embed sql/*.sql
var migrations embed.FS

//go:embed seeds/*.sql
var seeds embed.FS

// seams for tests
var (
	gooseUp     = goose.UpContext
	gooseDown   = goose.DownContext
	gooseStatus = goose.StatusContext
)

type gooseLogger struct{ l *zap.SugaredLogger }

func (g gooseLogger) Printf(format string, v ...any) { g.l.Infof(format, v...) }
func (g gooseLogger) Fatalf(format string, v ...any) { g.l.Fatalf(format, v...) }

func setup(fsys fs.FS) error {
	goose.SetBaseFS(fsys)
	goose.SetLogger(gooseLogger{l: obs.Named("migrate").Sugar()})
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("migrate: dialect: %w", err)
	}
	return nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB) error {
	if err := setup(migrations); err != nil {
		return err
	}
	if err := gooseUp(ctx, db, "sql"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the latest migration.
func Down(ctx context.Context, db *sql.DB) error {
	if err := setup(migrations); err != nil {
		return err
	}
	if err := gooseDown(ctx, db, "sql"); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status logs the applied and pending migrations.
func Status(ctx context.Context, db *sql.DB) error {
	if err := setup(migrations); err != nil {
		return err
	}
	if err := gooseStatus(ctx, db, "sql"); err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	return nil
}

// Seed loads the development data set without versioning, so it can be re-run. Never run it
// against production.
func Seed(ctx context.Context, db *sql.DB) error {
	if err := setup(seeds); err != nil {
		return err
	}
	if err := gooseUp(ctx, db, "seeds", goose.WithNoVersioning()); err != nil {
		return fmt.Errorf("migrate seed: %w", err)
	}
	return setDemoPasswords(ctx, db)
}

// setDemoPasswords gives every seeded account without a hash the demo password.
func setDemoPasswords(ctx context.Context, db *sql.DB) error {
	hash, err := auth.HashPassword(projects.DemoPassword)
	if err != nil {
		return fmt.Errorf("migrate seed: %w", err)
	}
	for _, table := range []string{"client_users", "subcontractor_users"} {
		if _, err := db.ExecContext(ctx,
			`update `+table+` set password_hash = $1 where password_hash = ''`, hash); err != nil {
			return fmt.Errorf("migrate seed: %s passwords: %w", table, err)
		}
	}
	return nil
}
