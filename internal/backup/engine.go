package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"backupd/internal/archive"
	"backupd/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// localArchive and remoteArchive narrow the two archives to what the engine
// needs; satisfied by archive.Local and archive.Remote.
type localArchive interface {
	Dir() string
	EnsureDir() error
	ResolvePath(filename string) string
	List() []archive.Artifact
	Contains(filename string) bool
	Delete(filename string) error
}

type remoteArchive interface {
	IsConfigured() bool
	List(ctx context.Context) ([]archive.Artifact, bool)
	Upload(ctx context.Context, localPath, filename string) error
	Download(ctx context.Context, filename, destinationPath string) error
	Contains(ctx context.Context, filename string) bool
	Delete(ctx context.Context, filename string) error
}

// Stats summarizes a reconciled listing. Local and Remote count an artifact
// once per side it appears on, so a "both" artifact increments both; TotalSize
// counts each artifact exactly once.
type Stats struct {
	Total     int   `json:"total"`
	Local     int   `json:"local"`
	Remote    int   `json:"remote"`
	TotalSize int64 `json:"totalSize"`
}

// ListResult is the merged view over both archives. Partial is set when a
// configured side failed to list, so callers can tell "no remote backups"
// from "remote archive unreachable".
type ListResult struct {
	Artifacts []archive.Artifact `json:"artifacts"`
	Stats     Stats              `json:"stats"`
	Partial   bool               `json:"partial"`
}

// DeleteResult reports which archives a deletion actually removed the
// artifact from.
type DeleteResult struct {
	DeletedLocal  bool `json:"deletedLocal"`
	DeletedRemote bool `json:"deletedRemote"`
}

// Engine orchestrates backup creation, placement, reconciled listing,
// restore and retention across the two archives.
type Engine struct {
	store  *config.Store
	remote remoteArchive
	tools  Tools
	logger zerolog.Logger

	// localFor builds the local archive for the policy's current directory;
	// the directory is runtime-mutable so it cannot be captured once.
	localFor func(dir string) localArchive
	now      func() time.Time
	tempDir  string
}

// NewEngine wires the engine against the configuration store and the remote
// archive.
func NewEngine(store *config.Store, remote remoteArchive, tools Tools, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		remote: remote,
		tools:  tools,
		logger: logger,
		localFor: func(dir string) localArchive {
			return archive.NewLocal(dir, logger)
		},
		now:     time.Now,
		tempDir: os.TempDir(),
	}
}

// CreateBackup dumps the configured database and places the artifact
// according to the storage mode. The dump always writes to the local
// directory first: even in remote-only mode the local file acts as a staging
// buffer and is removed after a successful upload.
func (e *Engine) CreateBackup(ctx context.Context, formatOverride string) (archive.Artifact, error) {
	policy := e.store.BackupPolicy()
	db, err := e.store.DatabaseConfig()
	if err != nil {
		return archive.Artifact{}, err
	}

	format, err := archive.ParseFormat(policy.Format)
	if err != nil {
		return archive.Artifact{}, err
	}
	if formatOverride != "" {
		format, err = archive.ParseFormat(formatOverride)
		if err != nil {
			return archive.Artifact{}, err
		}
	}

	local := e.localFor(policy.LocalPath)
	if err := local.EnsureDir(); err != nil {
		return archive.Artifact{}, fmt.Errorf("%w: %v", ErrBackupCreationFailed, err)
	}

	createdAt := e.now()
	filename := archive.BackupFilename(db.Database, createdAt, format)
	outPath := local.ResolvePath(filename)

	e.logger.Info().Str("filename", filename).Str("format", string(format)).Msg("creating backup")

	if err := e.dump(ctx, db, format, outPath, policy.ToolTimeout); err != nil {
		// The dump tool may leave a partial file behind; remove it.
		os.Remove(outPath)
		return archive.Artifact{}, fmt.Errorf("%w: %v", ErrBackupCreationFailed, err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return archive.Artifact{}, fmt.Errorf("%w: dump produced no output: %v", ErrBackupCreationFailed, err)
	}

	art := archive.Artifact{
		Filename:  filename,
		Size:      info.Size(),
		CreatedAt: createdAt,
		Format:    format,
		Location:  archive.LocationLocal,
	}

	wantRemote := policy.StorageMode == config.StorageModeRemote || policy.StorageMode == config.StorageModeBoth
	if wantRemote && e.remote.IsConfigured() {
		if err := e.remote.Upload(ctx, outPath, filename); err != nil {
			// The staging file stays in place so the operator can retry.
			return archive.Artifact{}, err
		}
		art.Location = archive.LocationBoth
		if policy.StorageMode == config.StorageModeRemote {
			if err := local.Delete(filename); err != nil {
				e.logger.Warn().Err(err).Str("filename", filename).Msg("failed to remove local staging file after upload")
			} else {
				art.Location = archive.LocationRemote
			}
		}
	}

	e.logger.Info().Str("filename", filename).Int64("size", art.Size).Str("location", string(art.Location)).Msg("backup created")
	return art, nil
}

// ListAll fetches both archive listings independently and merges them by
// filename into one view, newest first. Each side is best-effort, so one
// archive being down degrades the view instead of failing it.
func (e *Engine) ListAll(ctx context.Context) ListResult {
	policy := e.store.BackupPolicy()
	local := e.localFor(policy.LocalPath)

	localList := local.List()
	remoteList, remoteOK := e.remote.List(ctx)

	merged := make(map[string]*archive.Artifact, len(localList)+len(remoteList))
	order := make([]string, 0, len(localList)+len(remoteList))

	for i := range localList {
		a := localList[i]
		merged[a.Filename] = &a
		order = append(order, a.Filename)
	}
	for i := range remoteList {
		a := remoteList[i]
		if existing, ok := merged[a.Filename]; ok {
			// Same filename on both sides is the same logical backup;
			// metadata stays from the side queried first.
			existing.Location = archive.LocationBoth
			continue
		}
		merged[a.Filename] = &a
		order = append(order, a.Filename)
	}

	result := ListResult{Partial: !remoteOK}
	for _, name := range order {
		result.Artifacts = append(result.Artifacts, *merged[name])
	}
	sort.Slice(result.Artifacts, func(i, j int) bool {
		return result.Artifacts[i].CreatedAt.After(result.Artifacts[j].CreatedAt)
	})

	for _, a := range result.Artifacts {
		result.Stats.Total++
		result.Stats.TotalSize += a.Size
		if a.Location == archive.LocationLocal || a.Location == archive.LocationBoth {
			result.Stats.Local++
		}
		if a.Location == archive.LocationRemote || a.Location == archive.LocationBoth {
			result.Stats.Remote++
		}
	}
	return result
}

// DeleteBackup removes the artifact from whichever archives the current
// storage mode implies. Failures on one side never abort the other; the
// call fails with ErrBackupNotFound only when nothing was deleted.
func (e *Engine) DeleteBackup(ctx context.Context, filename string) (DeleteResult, error) {
	filename = archive.SanitizeFilename(filename)
	policy := e.store.BackupPolicy()
	local := e.localFor(policy.LocalPath)

	var result DeleteResult

	if policy.StorageMode == config.StorageModeLocal || policy.StorageMode == config.StorageModeBoth {
		if local.Contains(filename) {
			if err := local.Delete(filename); err != nil {
				e.logger.Warn().Err(err).Str("filename", filename).Msg("local delete failed")
			} else {
				result.DeletedLocal = true
			}
		}
	}

	if policy.StorageMode == config.StorageModeRemote || policy.StorageMode == config.StorageModeBoth {
		if e.remote.IsConfigured() && e.remote.Contains(ctx, filename) {
			if err := e.remote.Delete(ctx, filename); err != nil {
				e.logger.Warn().Err(err).Str("filename", filename).Msg("remote delete failed")
			} else {
				result.DeletedRemote = true
			}
		}
	}

	if !result.DeletedLocal && !result.DeletedRemote {
		return result, fmt.Errorf("%w: %s", ErrBackupNotFound, filename)
	}
	return result, nil
}

// RestoreBackup restores the named artifact into the configured database.
// A local copy is used directly; otherwise the artifact is downloaded to a
// temporary file that is removed on every exit path. The restore tool is
// chosen by the artifact's format, fixed when its descriptor was built.
func (e *Engine) RestoreBackup(ctx context.Context, filename string) error {
	filename = archive.SanitizeFilename(filename)
	policy := e.store.BackupPolicy()
	db, err := e.store.DatabaseConfig()
	if err != nil {
		return err
	}

	listing := e.ListAll(ctx)
	var art *archive.Artifact
	for i := range listing.Artifacts {
		if listing.Artifacts[i].Filename == filename {
			art = &listing.Artifacts[i]
			break
		}
	}
	if art == nil {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, filename)
	}

	local := e.localFor(policy.LocalPath)
	dumpPath := local.ResolvePath(filename)
	if art.Location == archive.LocationRemote {
		if !e.remote.IsConfigured() {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, filename)
		}
		tmp := filepath.Join(e.tempDir, fmt.Sprintf("restore_%s_%s", uuid.NewString(), filename))
		if err := e.remote.Download(ctx, filename, tmp); err != nil {
			return err
		}
		defer os.Remove(tmp)
		dumpPath = tmp
	}

	e.logger.Info().Str("filename", filename).Str("format", string(art.Format)).Msg("restoring backup")

	if err := e.restore(ctx, db, art.Format, dumpPath, policy.ToolTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrRestoreFailed, err)
	}

	e.logger.Info().Str("filename", filename).Msg("backup restored")
	return nil
}

// ApplyRetention deletes every reconciled artifact older than the policy's
// retention window from each archive it appears in. Per-artifact failures
// are logged and skipped; re-running with nothing newly expired deletes
// nothing and returns 0.
func (e *Engine) ApplyRetention(ctx context.Context) (int, error) {
	policy := e.store.BackupPolicy()
	if policy.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := e.now().AddDate(0, 0, -policy.RetentionDays)
	local := e.localFor(policy.LocalPath)

	listing := e.ListAll(ctx)
	deleted := 0
	for _, art := range listing.Artifacts {
		if !art.CreatedAt.Before(cutoff) {
			continue
		}
		removed := false
		if art.Location == archive.LocationLocal || art.Location == archive.LocationBoth {
			if err := local.Delete(art.Filename); err != nil {
				e.logger.Warn().Err(err).Str("filename", art.Filename).Msg("retention: local delete failed")
			} else {
				removed = true
			}
		}
		if art.Location == archive.LocationRemote || art.Location == archive.LocationBoth {
			if err := e.remote.Delete(ctx, art.Filename); err != nil {
				e.logger.Warn().Err(err).Str("filename", art.Filename).Msg("retention: remote delete failed")
			} else {
				removed = true
			}
		}
		if removed {
			deleted++
			e.logger.Info().Str("filename", art.Filename).Time("createdAt", art.CreatedAt).Msg("retention: expired backup deleted")
		}
	}
	return deleted, nil
}

// RunScheduled executes one scheduled pass: create a backup, then sweep
// retention. A failed creation aborts the pass; retention failures are
// partial and only logged.
func (e *Engine) RunScheduled(ctx context.Context) error {
	if _, err := e.CreateBackup(ctx, ""); err != nil {
		return err
	}
	if _, err := e.ApplyRetention(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("scheduled retention sweep failed")
	}
	return nil
}
