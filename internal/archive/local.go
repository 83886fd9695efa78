package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Local is the filesystem-backed archive. Listing is best-effort: an absent
// or unreadable directory yields an empty listing so the reconciled view
// never hard-fails on this side.
type Local struct {
	dir    string
	logger zerolog.Logger
}

// NewLocal returns a local archive rooted at dir. The directory is created
// lazily on first write, not here.
func NewLocal(dir string, logger zerolog.Logger) *Local {
	return &Local{dir: dir, logger: logger}
}

// Dir returns the archive directory.
func (l *Local) Dir() string {
	return l.dir
}

// EnsureDir creates the archive directory if it does not exist yet.
func (l *Local) EnsureDir() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", l.dir, err)
	}
	return nil
}

// ResolvePath maps a filename to its path inside the archive directory. The
// input is reduced to its base name first, so traversal attempts cannot
// escape the directory.
func (l *Local) ResolvePath(filename string) string {
	return filepath.Join(l.dir, SanitizeFilename(filename))
}

// List scans the archive directory non-recursively and returns an artifact
// per backup file found. It never fails: errors are logged and degrade to an
// empty listing.
func (l *Local) List() []Artifact {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn().Err(err).Str("dir", l.dir).Msg("failed to read backup directory")
		}
		return nil
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() || !IsBackupFilename(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			l.logger.Warn().Err(err).Str("file", entry.Name()).Msg("failed to stat backup file")
			continue
		}
		artifacts = append(artifacts, Artifact{
			Filename:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			Format:    FormatOf(entry.Name()),
			Location:  LocationLocal,
		})
	}
	return artifacts
}

// Contains reports whether the archive currently holds the file.
func (l *Local) Contains(filename string) bool {
	info, err := os.Stat(l.ResolvePath(filename))
	return err == nil && !info.IsDir()
}

// Delete removes the file from the archive.
func (l *Local) Delete(filename string) error {
	p := l.ResolvePath(filename)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("backup file %s not found: %w", filename, os.ErrNotExist)
		}
		return fmt.Errorf("failed to stat backup file %s: %w", filename, err)
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("failed to delete backup file %s: %w", filename, err)
	}
	return nil
}
