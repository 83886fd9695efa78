package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backupd/internal/archive"
	"backupd/internal/backup"
	"backupd/internal/config"
	"backupd/internal/scheduler"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTools(t *testing.T) backup.Tools {
	t.Helper()
	dir := t.TempDir()

	dump := `#!/bin/sh
if [ -n "$PGTOOL_FAIL" ]; then echo "server exploded" >&2; exit 1; fi
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-f" ]; then out="$2"; fi
  shift
done
printf -- "-- stub dump\n" > "$out"
`
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
		return p
	}
	return backup.Tools{
		PGDump:    write("pg_dump", dump),
		PGRestore: write("pg_restore", "#!/bin/sh\nexit 0\n"),
		PSQL:      write("psql", "#!/bin/sh\nexit 0\n"),
	}
}

func testServer(t *testing.T, mode config.Mode, production bool) (*Server, *config.Store) {
	t.Helper()
	cfg := &config.Config{
		Mode: string(mode),
		Database: config.DatabaseConfig{
			Host: "localhost", Port: 5432, User: "postgres",
			Password: "pw", Database: "appdb",
		},
		Backup: config.BackupPolicy{
			Schedule:      "0 2 * * *",
			RetentionDays: 7,
			StorageMode:   config.StorageModeLocal,
			LocalPath:     t.TempDir(),
			Format:        "sql",
			ToolTimeout:   time.Minute,
		},
		Server: config.ServerConfig{Addr: ":0", Production: production},
	}
	store, err := config.NewStore(cfg)
	require.NoError(t, err)

	remote := archive.NewRemote(store.RemoteStorage, zerolog.Nop())
	engine := backup.NewEngine(store, remote, stubTools(t), zerolog.Nop())
	sched := scheduler.New(engine, zerolog.Nop())
	t.Cleanup(sched.Stop)

	return New(cfg.Server, store, engine, sched, zerolog.Nop()), store
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, false)
	rec := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateBackupEndpoint(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, false)

	rec := doRequest(t, s, http.MethodPost, "/api/backups", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var art archive.Artifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &art))
	assert.True(t, archive.IsBackupFilename(art.Filename))
	assert.Equal(t, archive.LocationLocal, art.Location)

	rec = doRequest(t, s, http.MethodGet, "/api/backups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing backup.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Stats.Total)
}

func TestCreateBackupInvalidFormat(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, false)
	rec := doRequest(t, s, http.MethodPost, "/api/backups?format=tar", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBackupToolFailure(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, false)
	t.Setenv("PGTOOL_FAIL", "1")

	rec := doRequest(t, s, http.MethodPost, "/api/backups", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "server exploded")
}

func TestErrorRedactionInProduction(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, true)
	t.Setenv("PGTOOL_FAIL", "1")

	rec := doRequest(t, s, http.MethodPost, "/api/backups", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "server exploded")
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestDeleteMissingBackupReturns404(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, false)
	rec := doRequest(t, s, http.MethodDelete, "/api/backups/backup_appdb_missing.sql", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestoreMissingBackupReturns404(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, false)
	rec := doRequest(t, s, http.MethodPost, "/api/backups/backup_appdb_missing.sql/restore", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigSettersRejectedInStaticMode(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, false)

	body := `{"host":"localhost","user":"postgres","database":"appdb"}`
	rec := doRequest(t, s, http.MethodPut, "/api/config/database", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/config/reset", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModeSwitchAndRuntimeConfig(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, false)

	rec := doRequest(t, s, http.MethodPut, "/api/config/mode", `{"mode":"runtime"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Database config is unset in fresh runtime mode.
	rec = doRequest(t, s, http.MethodGet, "/api/config/database", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"host":"localhost","user":"postgres","password":"pw","database":"appdb"}`
	rec = doRequest(t, s, http.MethodPut, "/api/config/database", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/config/database", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"pw"`, "password must be redacted in responses")
}

func TestSetPolicyInvalidCron(t *testing.T) {
	s, store := testServer(t, config.ModeStatic, false)
	require.NoError(t, store.SetMode(config.ModeRuntime))

	rec := doRequest(t, s, http.MethodPut, "/api/config/policy", `{"schedule":"whenever"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPut, "/api/config/policy", `{"schedule":"30 1 * * *"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "30 1 * * *")
}

func TestStorageConfigRedactsSecret(t *testing.T) {
	s, store := testServer(t, config.ModeStatic, false)
	require.NoError(t, store.SetMode(config.ModeRuntime))

	body := `{"accessKeyId":"AKIA123","secretAccessKey":"topsecret","bucket":"b","endpoint":"https://abc.supabase.co/storage/v1/s3"}`
	rec := doRequest(t, s, http.MethodPut, "/api/config/storage", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/config/storage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "topsecret")
	assert.Contains(t, rec.Body.String(), `"forcePathStyle":true`)
}

func TestSchedulerEndpoints(t *testing.T) {
	s, _ := testServer(t, config.ModeStatic, false)

	rec := doRequest(t, s, http.MethodGet, "/api/scheduler/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)

	rec = doRequest(t, s, http.MethodPost, "/api/scheduler/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":true`)
	assert.Contains(t, rec.Body.String(), "nextRun")

	rec = doRequest(t, s, http.MethodPost, "/api/scheduler/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)
}
