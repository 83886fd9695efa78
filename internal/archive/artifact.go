package archive

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Format identifies the dump format of an artifact. It is attached when the
// artifact descriptor is built and carried through to restore, so the
// restore tool is never chosen by re-parsing a filename.
type Format string

const (
	// FormatPlain is a plain-text SQL dump, replayable with psql.
	FormatPlain Format = "sql"
	// FormatCustom is the compressed custom archive format, restorable only
	// with pg_restore.
	FormatCustom Format = "dump"
)

// Location records which archive(s) an artifact was found in. It is computed
// during reconciliation, never stored.
type Location string

const (
	LocationLocal  Location = "local"
	LocationRemote Location = "remote"
	LocationBoth   Location = "both"
)

// Artifact describes one backup file, real or merged across archives.
// Filename is the identity: the same filename in both archives is the same
// logical backup. No content comparison is performed.
type Artifact struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	Format    Format    `json:"format"`
	Location  Location  `json:"location"`
}

const filenamePrefix = "backup_"

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "sql", "plain":
		return FormatPlain, nil
	case "dump", "custom":
		return FormatCustom, nil
	}
	return "", fmt.Errorf("unknown backup format %q", s)
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// SanitizeFilename reduces any input to its base name, so traversal attempts
// like "../../etc/passwd" can never escape an archive directory.
func SanitizeFilename(name string) string {
	name = filepath.Base(filepath.Clean(name))
	// Object keys use forward slashes regardless of platform.
	return path.Base(name)
}

// IsBackupFilename reports whether name looks like an artifact produced by
// this system: backup_<token>.sql or backup_<token>.dump.
func IsBackupFilename(name string) bool {
	if !strings.HasPrefix(name, filenamePrefix) {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".sql", ".dump":
		return true
	}
	return false
}

// FormatOf derives the format from an artifact filename.
func FormatOf(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".dump") {
		return FormatCustom
	}
	return FormatPlain
}

// BackupFilename generates the canonical artifact name for a database and
// creation time: backup_<database>_<timestamp>.<ext>, with ':' and '.' in
// the ISO 8601 timestamp replaced by '-' to stay filesystem safe.
func BackupFilename(database string, ts time.Time, format Format) string {
	stamp := ts.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return fmt.Sprintf("%s%s_%s.%s", filenamePrefix, database, stamp, format.Ext())
}
