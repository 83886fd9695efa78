package config

import (
	"errors"
	"fmt"
	"strings"

	"backupd/pkg/log"

	"github.com/spf13/viper"
)

// Config is the static configuration loaded at startup from the config file
// and environment variables. In static mode it is also the source of every
// store read; in runtime mode only Server, Log and the in-cluster host
// remain authoritative.
type Config struct {
	Mode        string                `mapstructure:"mode"`
	ClusterHost string                `mapstructure:"cluster_host"`
	Server      ServerConfig          `mapstructure:"server"`
	Log         log.Config            `mapstructure:"log"`
	Database    DatabaseConfig        `mapstructure:"database"`
	Backup      BackupPolicy          `mapstructure:"backup"`
	S3          RemoteStorageSettings `mapstructure:"s3"`
}

// NewConfig loads configuration from file and environment variables.
// configPath: path to the config file (e.g., "config.yaml"). If empty, looks
// for "config.yaml" in the current directory.
func NewConfig(configPath string) (*Config, error) {
	config := new(Config)

	viper.SetDefault("mode", string(ModeStatic))
	viper.SetDefault("cluster_host", "")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.production", false)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.path", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)

	viper.SetDefault("database.host", "")
	viper.SetDefault("database.port", 5432)

	viper.SetDefault("backup.auto", false)
	viper.SetDefault("backup.schedule", DefaultSchedule)
	viper.SetDefault("backup.retention_days", DefaultRetentionDays)
	viper.SetDefault("backup.storage_mode", string(DefaultStorageMode))
	viper.SetDefault("backup.local_path", DefaultLocalPath)
	viper.SetDefault("backup.format", DefaultFormat)
	viper.SetDefault("backup.tool_timeout", DefaultToolTimeout.String())

	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.prefix", "")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine: defaults plus environment variables.
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	if err := validateStorageMode(config.Backup.StorageMode); err != nil {
		return nil, err
	}
	if err := validateFormat(config.Backup.Format); err != nil {
		return nil, err
	}

	return config, nil
}

func validateStorageMode(m StorageMode) error {
	switch m {
	case StorageModeLocal, StorageModeRemote, StorageModeBoth:
		return nil
	}
	return fmt.Errorf("invalid storage mode %q", m)
}

func validateFormat(f string) error {
	switch f {
	case "sql", "dump":
		return nil
	}
	return fmt.Errorf("invalid backup format %q", f)
}
