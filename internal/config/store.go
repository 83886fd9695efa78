package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrConfigurationMissing is returned when runtime mode is active and
	// the requested configuration has not been set yet.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrInvalidModeOperation is returned when a setter is called while the
	// store is in static mode.
	ErrInvalidModeOperation = errors.New("operation not allowed in static mode")
)

// Endpoint host fragments that identify self-hosted or S3-compatible
// providers needing path-style addressing.
var pathStyleHosts = []string{
	"supabase.co",
	"minio",
	"localhost",
	"127.0.0.1",
	"digitaloceanspaces.com",
}

// runtimeValues holds everything settable in runtime mode. Switching into
// runtime mode installs a fresh instance, so prior values never leak across
// a mode switch.
type runtimeValues struct {
	database *DatabaseConfig
	policy   *BackupPolicy
	remote   *RemoteStorageSettings
}

// Store resolves configuration snapshots for the engine. Reads return either
// entirely static or entirely runtime values depending on the current mode,
// never a mix. All access is guarded by a RWMutex: mode switches and setter
// calls may arrive concurrently with engine reads.
type Store struct {
	mu          sync.RWMutex
	mode        Mode
	static      *Config
	runtime     *runtimeValues
	clusterHost string
}

// NewStore builds a store backed by the given static configuration. The
// store starts in the mode the static configuration names.
func NewStore(static *Config) (*Store, error) {
	mode := Mode(static.Mode)
	switch mode {
	case ModeStatic, ModeRuntime:
	default:
		return nil, fmt.Errorf("invalid configuration mode %q", static.Mode)
	}
	return &Store{
		mode:        mode,
		static:      static,
		runtime:     &runtimeValues{},
		clusterHost: static.ClusterHost,
	}, nil
}

// Mode reports the active sourcing mode.
func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode switches the sourcing mode. Entering runtime mode installs a fresh
// set of runtime values: nothing is migrated from the static configuration
// and previously set runtime values are discarded.
func (s *Store) SetMode(mode Mode) error {
	switch mode {
	case ModeStatic, ModeRuntime:
	default:
		return fmt.Errorf("invalid configuration mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == ModeRuntime && s.mode != ModeRuntime {
		s.runtime = &runtimeValues{}
	}
	s.mode = mode
	return nil
}

// DatabaseConfig returns the database connection settings. In runtime mode
// it fails with ErrConfigurationMissing until a config has been set; there
// is no safe default for credentials.
func (s *Store) DatabaseConfig() (DatabaseConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode == ModeStatic {
		if s.static.Database.Host == "" || s.static.Database.Database == "" {
			return DatabaseConfig{}, fmt.Errorf("%w: database not configured", ErrConfigurationMissing)
		}
		return s.static.Database, nil
	}
	if s.runtime.database == nil {
		return DatabaseConfig{}, fmt.Errorf("%w: database config has not been set", ErrConfigurationMissing)
	}
	return *s.runtime.database, nil
}

// BackupPolicy returns the backup policy. Unlike the database config it has
// safe defaults, so in runtime mode with nothing set the documented defaults
// are returned instead of an error.
func (s *Store) BackupPolicy() BackupPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode == ModeStatic {
		return s.static.Backup
	}
	if s.runtime.policy == nil {
		return defaultPolicy()
	}
	return *s.runtime.policy
}

// RemoteStorage returns the resolved object storage settings. With nothing
// set in runtime mode it returns the zero config: callers gate on
// IsConfigured rather than an error here.
func (s *Store) RemoteStorage() RemoteStorageConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw RemoteStorageSettings
	if s.mode == ModeStatic {
		raw = s.static.S3
	} else if s.runtime.remote != nil {
		raw = *s.runtime.remote
	}
	return resolveRemote(raw)
}

// SetDatabaseConfig stores runtime database settings.
func (s *Store) SetDatabaseConfig(cfg DatabaseConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("host is required")
	}
	if cfg.User == "" {
		return fmt.Errorf("user is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeRuntime {
		return fmt.Errorf("%w: set database config", ErrInvalidModeOperation)
	}
	s.runtime.database = &cfg
	return nil
}

// SetBackupPolicy stores a runtime backup policy. Zero fields fall back to
// the documented defaults.
func (s *Store) SetBackupPolicy(policy BackupPolicy) error {
	if policy.Schedule == "" {
		policy.Schedule = DefaultSchedule
	}
	if policy.RetentionDays == 0 {
		policy.RetentionDays = DefaultRetentionDays
	}
	if policy.StorageMode == "" {
		policy.StorageMode = DefaultStorageMode
	}
	if policy.LocalPath == "" {
		policy.LocalPath = DefaultLocalPath
	}
	if policy.Format == "" {
		policy.Format = DefaultFormat
	}
	if policy.ToolTimeout == 0 {
		policy.ToolTimeout = DefaultToolTimeout
	}
	if err := validateStorageMode(policy.StorageMode); err != nil {
		return err
	}
	if err := validateFormat(policy.Format); err != nil {
		return err
	}
	if policy.RetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeRuntime {
		return fmt.Errorf("%w: set backup policy", ErrInvalidModeOperation)
	}
	s.runtime.policy = &policy
	return nil
}

// SetRemoteStorage stores runtime object storage settings.
func (s *Store) SetRemoteStorage(settings RemoteStorageSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeRuntime {
		return fmt.Errorf("%w: set remote storage config", ErrInvalidModeOperation)
	}
	s.runtime.remote = &settings
	return nil
}

// ResetRuntime discards every runtime value, reverting reads to the unset
// state. Defaults are never silently reused across a reset.
func (s *Store) ResetRuntime() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeRuntime {
		return fmt.Errorf("%w: reset runtime config", ErrInvalidModeOperation)
	}
	s.runtime = &runtimeValues{}
	return nil
}

// SSLMode maps a database host to the sslmode handed to the dump and restore
// tools. Loopback and the in-cluster hostname connect without TLS; any other
// host requires TLS but accepts self-signed certificates. This is an
// internal-network simplification, not a general TLS policy.
func (s *Store) SSLMode(host string) string {
	s.mu.RLock()
	clusterHost := s.clusterHost
	s.mu.RUnlock()
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "disable"
	}
	if clusterHost != "" && host == clusterHost {
		return "disable"
	}
	return "require"
}

func defaultPolicy() BackupPolicy {
	return BackupPolicy{
		AutoEnabled:   false,
		Schedule:      DefaultSchedule,
		RetentionDays: DefaultRetentionDays,
		StorageMode:   DefaultStorageMode,
		LocalPath:     DefaultLocalPath,
		Format:        DefaultFormat,
		ToolTimeout:   DefaultToolTimeout,
	}
}

func resolveRemote(raw RemoteStorageSettings) RemoteStorageConfig {
	cfg := RemoteStorageConfig{
		AccessKeyID:     raw.AccessKeyID,
		SecretAccessKey: raw.SecretAccessKey,
		Region:          raw.Region,
		Bucket:          raw.Bucket,
		Prefix:          raw.Prefix,
		Endpoint:        raw.Endpoint,
	}
	if raw.ForcePathStyle != nil {
		cfg.ForcePathStyle = *raw.ForcePathStyle
	} else {
		cfg.ForcePathStyle = inferPathStyle(raw.Endpoint)
	}
	return cfg
}

// inferPathStyle reports whether the endpoint looks like a self-hosted or
// S3-compatible provider that needs path-style addressing.
func inferPathStyle(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}
	for _, fragment := range pathStyleHosts {
		if strings.Contains(host, fragment) {
			return true
		}
	}
	return false
}
