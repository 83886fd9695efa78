package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backupd/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectAPI struct {
	objects  map[string][]byte
	modTime  time.Time
	failList bool
	deleted  []string
}

func newFakeObjectAPI() *fakeObjectAPI {
	return &fakeObjectAPI{
		objects: map[string][]byte{},
		modTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeObjectAPI) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var buf []byte
	if params.Body != nil {
		var err error
		buf, err = io.ReadAll(params.Body)
		if err != nil {
			return nil, err
		}
	}
	f.objects[aws.ToString(params.Key)] = buf
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeObjectAPI) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(params.Key)]; !ok {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeObjectAPI) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(params.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeObjectAPI) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.failList {
		return nil, errors.New("connection refused")
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	prefix := aws.ToString(params.Prefix)
	for key, body := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(body))),
			LastModified: aws.Time(f.modTime),
		})
	}
	return out, nil
}

func newTestRemote(cfg *config.RemoteStorageConfig, api *fakeObjectAPI) (*Remote, *int) {
	calls := 0
	r := NewRemote(func() config.RemoteStorageConfig { return *cfg }, zerolog.Nop())
	r.newClient = func(config.RemoteStorageConfig) (objectAPI, error) {
		calls++
		return api, nil
	}
	return r, &calls
}

func configuredRemote() *config.RemoteStorageConfig {
	return &config.RemoteStorageConfig{
		AccessKeyID:     "AKIA123",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
		Bucket:          "backups",
		Prefix:          "db",
	}
}

func TestRemoteIsConfigured(t *testing.T) {
	cfg := configuredRemote()
	r, _ := newTestRemote(cfg, newFakeObjectAPI())
	assert.True(t, r.IsConfigured())

	cfg.Bucket = ""
	assert.False(t, r.IsConfigured())
}

func TestRemoteListUnconfigured(t *testing.T) {
	r, calls := newTestRemote(&config.RemoteStorageConfig{}, newFakeObjectAPI())

	artifacts, ok := r.List(context.Background())
	assert.Empty(t, artifacts)
	// Unconfigured is "no remote backups", not "remote unreachable".
	assert.True(t, ok)
	assert.Zero(t, *calls)
}

func TestRemoteListMapsObjects(t *testing.T) {
	api := newFakeObjectAPI()
	api.objects["db/backup_app_a.sql"] = []byte("select 1;")
	api.objects["db/backup_app_b.dump"] = []byte("bin")
	api.objects["db/backup_junk.txt"] = []byte("ignored")

	r, _ := newTestRemote(configuredRemote(), api)
	artifacts, ok := r.List(context.Background())
	require.True(t, ok)
	require.Len(t, artifacts, 2)

	byName := map[string]Artifact{}
	for _, a := range artifacts {
		byName[a.Filename] = a
	}
	require.Contains(t, byName, "backup_app_a.sql")
	assert.Equal(t, int64(9), byName["backup_app_a.sql"].Size)
	assert.Equal(t, api.modTime, byName["backup_app_a.sql"].CreatedAt)
	assert.Equal(t, LocationRemote, byName["backup_app_a.sql"].Location)
	assert.Equal(t, FormatCustom, byName["backup_app_b.dump"].Format)
}

func TestRemoteListFailureIsBestEffort(t *testing.T) {
	api := newFakeObjectAPI()
	api.failList = true

	r, _ := newTestRemote(configuredRemote(), api)
	artifacts, ok := r.List(context.Background())
	assert.Empty(t, artifacts)
	assert.False(t, ok)
}

func TestRemoteClientCache(t *testing.T) {
	cfg := configuredRemote()
	api := newFakeObjectAPI()
	r, calls := newTestRemote(cfg, api)

	_, _ = r.List(context.Background())
	_, _ = r.List(context.Background())
	assert.Equal(t, 1, *calls, "same settings must reuse the cached handle")

	cfg.Endpoint = "https://minio.internal:9000"
	_, _ = r.List(context.Background())
	assert.Equal(t, 2, *calls, "changed endpoint must rebuild the handle")

	// Changing only the prefix does not touch the client signature.
	cfg.Prefix = "other"
	_, _ = r.List(context.Background())
	assert.Equal(t, 2, *calls)
}

func TestRemoteUploadDownloadDelete(t *testing.T) {
	api := newFakeObjectAPI()
	r, _ := newTestRemote(configuredRemote(), api)

	src := filepath.Join(t.TempDir(), "backup_app_a.sql")
	require.NoError(t, os.WriteFile(src, []byte("select 1;"), 0o644))

	require.NoError(t, r.Upload(context.Background(), src, "backup_app_a.sql"))
	assert.Contains(t, api.objects, "db/backup_app_a.sql")
	assert.True(t, r.Contains(context.Background(), "backup_app_a.sql"))

	dest := filepath.Join(t.TempDir(), "restored.sql")
	require.NoError(t, r.Download(context.Background(), "backup_app_a.sql", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "select 1;", string(data))

	require.NoError(t, r.Delete(context.Background(), "backup_app_a.sql"))
	assert.NotContains(t, api.objects, "db/backup_app_a.sql")
	assert.False(t, r.Contains(context.Background(), "backup_app_a.sql"))
}

func TestRemoteDownloadMissing(t *testing.T) {
	r, _ := newTestRemote(configuredRemote(), newFakeObjectAPI())

	dest := filepath.Join(t.TempDir(), "restored.sql")
	err := r.Download(context.Background(), "backup_missing.sql", dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteDownloadFailed)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no partial file on failed download")
}

func TestRemoteOperationsUnconfigured(t *testing.T) {
	r, _ := newTestRemote(&config.RemoteStorageConfig{}, newFakeObjectAPI())

	err := r.Upload(context.Background(), "nope", "backup_a.sql")
	assert.ErrorIs(t, err, ErrRemoteNotConfigured)
	err = r.Download(context.Background(), "backup_a.sql", "nope")
	assert.ErrorIs(t, err, ErrRemoteNotConfigured)
	err = r.Delete(context.Background(), "backup_a.sql")
	assert.ErrorIs(t, err, ErrRemoteNotConfigured)
}

// Traversal attempts in object keys must collapse to the basename under the
// configured prefix.
func TestRemoteKeySanitized(t *testing.T) {
	api := newFakeObjectAPI()
	r, _ := newTestRemote(configuredRemote(), api)

	src := filepath.Join(t.TempDir(), "backup_app_a.sql")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, r.Upload(context.Background(), src, "../../backup_app_a.sql"))
	assert.Contains(t, api.objects, "db/backup_app_a.sql")
}
