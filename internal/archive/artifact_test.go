package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"backup_app_2025.sql":       "backup_app_2025.sql",
		"../../etc/passwd":          "passwd",
		"/etc/passwd":               "passwd",
		"..\\..\\backup.sql":        "..\\..\\backup.sql", // backslash is not a separator on linux
		"dir/backup_app.dump":       "backup_app.dump",
		"./backup_app.sql":          "backup_app.sql",
		"a/b/../c/backup_app_x.sql": "backup_app_x.sql",
	}
	for input, want := range cases {
		assert.Equal(t, want, SanitizeFilename(input), "input %q", input)
	}
}

func TestIsBackupFilename(t *testing.T) {
	assert.True(t, IsBackupFilename("backup_app_2025-01-01.sql"))
	assert.True(t, IsBackupFilename("backup_app_2025-01-01.dump"))
	assert.False(t, IsBackupFilename("notes.txt"))
	assert.False(t, IsBackupFilename("app_2025.sql"))
	assert.False(t, IsBackupFilename("backup_app.tar.gz"))
}

func TestBackupFilename(t *testing.T) {
	ts := time.Date(2025, 3, 14, 1, 59, 26, 535_000_000, time.UTC)

	name := BackupFilename("appdb", ts, FormatPlain)
	assert.Equal(t, "backup_appdb_2025-03-14T01-59-26-535Z.sql", name)
	assert.True(t, IsBackupFilename(name))

	name = BackupFilename("appdb", ts, FormatCustom)
	assert.Equal(t, "backup_appdb_2025-03-14T01-59-26-535Z.dump", name)

	// Timestamps must be filesystem safe regardless of the source zone.
	est := time.FixedZone("EST", -5*3600)
	name = BackupFilename("appdb", ts.In(est), FormatPlain)
	assert.NotContains(t, name, ":")
	assert.Equal(t, "backup_appdb_2025-03-14T01-59-26-535Z.sql", name)
}

func TestParseFormat(t *testing.T) {
	for _, input := range []string{"sql", "SQL", ".sql", "plain"} {
		f, err := ParseFormat(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, FormatPlain, f)
	}
	for _, input := range []string{"dump", ".dump", "custom"} {
		f, err := ParseFormat(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, FormatCustom, f)
	}
	_, err := ParseFormat("tar")
	assert.Error(t, err)
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatCustom, FormatOf("backup_app.dump"))
	assert.Equal(t, FormatCustom, FormatOf("backup_app.DUMP"))
	assert.Equal(t, FormatPlain, FormatOf("backup_app.sql"))
}
