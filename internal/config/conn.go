package config

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// DSN builds the connection string for the configured database, applying the
// store's SSL policy for the target host.
func (s *Store) DSN() (string, error) {
	cfg, err := s.DatabaseConfig()
	if err != nil {
		return "", err
	}
	parts := []string{
		fmt.Sprintf("host=%s", cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		fmt.Sprintf("user=%s", cfg.User),
		fmt.Sprintf("dbname=%s", cfg.Database),
		fmt.Sprintf("sslmode=%s", s.SSLMode(cfg.Host)),
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}
	return strings.Join(parts, " "), nil
}

// TestConnection opens a connection to the configured database and pings it.
// Used by the API to validate credentials before they are saved into a
// backup schedule.
func (s *Store) TestConnection(ctx context.Context) error {
	dsn, err := s.DSN()
	if err != nil {
		return err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
