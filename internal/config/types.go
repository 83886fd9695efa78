package config

import "time"

// Mode selects where the store sources its values from.
type Mode string

const (
	// ModeStatic resolves everything from the config file and environment
	// at startup; setters are rejected.
	ModeStatic Mode = "static"
	// ModeRuntime starts empty and is populated through the setters.
	ModeRuntime Mode = "runtime"
)

// StorageMode decides where created backups are persisted.
type StorageMode string

const (
	StorageModeLocal  StorageMode = "local"
	StorageModeRemote StorageMode = "remote"
	StorageModeBoth   StorageMode = "both"
)

// Backup policy defaults used in runtime mode when nothing has been set.
const (
	DefaultSchedule      = "0 2 * * *"
	DefaultRetentionDays = 7
	DefaultStorageMode   = StorageModeLocal
	DefaultFormat        = "sql"
	DefaultLocalPath     = "backups"
	DefaultToolTimeout   = 30 * time.Minute
)

// DatabaseConfig holds the connection parameters handed to the dump and
// restore tools. There are no safe defaults for credentials, so reading an
// unset database config fails rather than guessing.
type DatabaseConfig struct {
	Host          string   `mapstructure:"host" json:"host"`
	Port          int      `mapstructure:"port" json:"port"`
	User          string   `mapstructure:"user" json:"user"`
	Password      string   `mapstructure:"password" json:"password"`
	Database      string   `mapstructure:"database" json:"database"`
	Schema        string   `mapstructure:"schema" json:"schema,omitempty"`
	ExcludeTables []string `mapstructure:"exclude_tables" json:"excludeTables,omitempty"`
}

// BackupPolicy controls scheduling, placement and retention of backups.
type BackupPolicy struct {
	AutoEnabled   bool          `mapstructure:"auto" json:"autoEnabled"`
	Schedule      string        `mapstructure:"schedule" json:"schedule"`
	RetentionDays int           `mapstructure:"retention_days" json:"retentionDays"`
	StorageMode   StorageMode   `mapstructure:"storage_mode" json:"storageMode"`
	LocalPath     string        `mapstructure:"local_path" json:"localPath"`
	Format        string        `mapstructure:"format" json:"format"`
	ToolTimeout   time.Duration `mapstructure:"tool_timeout" json:"-"`
}

// RemoteStorageConfig is the fully resolved view of the object storage
// settings, with ForcePathStyle already inferred when it was not set
// explicitly.
type RemoteStorageConfig struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	Endpoint        string `json:"endpoint,omitempty"`
	ForcePathStyle  bool   `json:"forcePathStyle"`
}

// RemoteStorageSettings is the raw, as-written form. ForcePathStyle is a
// pointer so "not set" can be told apart from an explicit false.
type RemoteStorageSettings struct {
	AccessKeyID     string `mapstructure:"access_key_id" json:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"secretAccessKey"`
	Region          string `mapstructure:"region" json:"region"`
	Bucket          string `mapstructure:"bucket" json:"bucket"`
	Prefix          string `mapstructure:"prefix" json:"prefix"`
	Endpoint        string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	ForcePathStyle  *bool  `mapstructure:"force_path_style" json:"forcePathStyle,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	Production bool   `mapstructure:"production"`
}
