package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"backupd/internal/config"
	awss3 "backupd/pkg/s3"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

var (
	// ErrRemoteNotConfigured is returned by mutating operations when access
	// key, secret or bucket are missing.
	ErrRemoteNotConfigured  = errors.New("remote storage is not configured")
	ErrRemoteUploadFailed   = errors.New("remote upload failed")
	ErrRemoteDownloadFailed = errors.New("remote download failed")
	ErrRemoteDeleteFailed   = errors.New("remote delete failed")
)

// objectAPI is the slice of the S3 client the archive uses; narrowed for
// testing.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// clientSignature identifies the settings a client handle depends on. Any
// change across calls invalidates the cached handle.
type clientSignature struct {
	accessKeyID    string
	region         string
	endpoint       string
	forcePathStyle bool
}

// Remote is the object-storage-backed archive. The client handle is memoized
// per settings signature and rebuilt when the signature changes, so runtime
// reconfiguration takes effect on the next operation.
type Remote struct {
	source func() config.RemoteStorageConfig
	logger zerolog.Logger

	mu        sync.Mutex
	client    objectAPI
	signature clientSignature

	// newClient is swappable in tests.
	newClient func(cfg config.RemoteStorageConfig) (objectAPI, error)
}

// NewRemote returns a remote archive reading its settings from source on
// every operation.
func NewRemote(source func() config.RemoteStorageConfig, logger zerolog.Logger) *Remote {
	return &Remote{
		source: source,
		logger: logger,
		newClient: func(cfg config.RemoteStorageConfig) (objectAPI, error) {
			return awss3.NewClient(cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.ForcePathStyle)
		},
	}
}

// IsConfigured reports whether the archive can be used: access key, secret
// and bucket must all be present.
func (r *Remote) IsConfigured() bool {
	cfg := r.source()
	return cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" && cfg.Bucket != ""
}

func (r *Remote) resolve() (objectAPI, config.RemoteStorageConfig, error) {
	cfg := r.source()
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, cfg, ErrRemoteNotConfigured
	}

	sig := clientSignature{
		accessKeyID:    cfg.AccessKeyID,
		region:         cfg.Region,
		endpoint:       cfg.Endpoint,
		forcePathStyle: cfg.ForcePathStyle,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil && r.signature == sig {
		return r.client, cfg, nil
	}
	client, err := r.newClient(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to create storage client: %w", err)
	}
	r.client = client
	r.signature = sig
	return client, cfg, nil
}

func (r *Remote) key(cfg config.RemoteStorageConfig, filename string) string {
	return path.Join(cfg.Prefix, SanitizeFilename(filename))
}

// List returns artifacts for every backup object under the configured
// prefix. It is best-effort: any failure, including the archive being
// unconfigured, is logged and degrades to an empty listing so reconciliation
// never hard-fails because this side is down. The second return reports
// whether the listing actually succeeded.
func (r *Remote) List(ctx context.Context) ([]Artifact, bool) {
	client, cfg, err := r.resolve()
	if err != nil {
		if !errors.Is(err, ErrRemoteNotConfigured) {
			r.logger.Warn().Err(err).Msg("remote listing unavailable")
			return nil, false
		}
		return nil, true
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.Bucket),
		Prefix: aws.String(path.Join(cfg.Prefix, "backup_")),
	}

	var artifacts []Artifact
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("bucket", cfg.Bucket).Msg("failed to list remote backups")
			return nil, false
		}
		for _, obj := range page.Contents {
			name := path.Base(aws.ToString(obj.Key))
			if !IsBackupFilename(name) {
				continue
			}
			artifact := Artifact{
				Filename: name,
				Size:     aws.ToInt64(obj.Size),
				Format:   FormatOf(name),
				Location: LocationRemote,
			}
			if obj.LastModified != nil {
				artifact.CreatedAt = *obj.LastModified
			}
			artifacts = append(artifacts, artifact)
		}
	}
	return artifacts, true
}

// Upload stores the local file under the configured prefix.
func (r *Remote) Upload(ctx context.Context, localPath, filename string) error {
	client, cfg, err := r.resolve()
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", ErrRemoteUploadFailed, localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: failed to stat %s: %v", ErrRemoteUploadFailed, localPath, err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(r.key(cfg, filename)),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUploadFailed, err)
	}
	return nil
}

// Download fetches the object into destinationPath.
func (r *Remote) Download(ctx context.Context, filename, destinationPath string) error {
	client, cfg, err := r.resolve()
	if err != nil {
		return err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(r.key(cfg, filename)),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteDownloadFailed, err)
	}
	defer out.Body.Close()

	file, err := os.Create(destinationPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", ErrRemoteDownloadFailed, destinationPath, err)
	}

	if _, err := io.Copy(file, out.Body); err != nil {
		file.Close()
		os.Remove(destinationPath)
		return fmt.Errorf("%w: %v", ErrRemoteDownloadFailed, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(destinationPath)
		return fmt.Errorf("%w: %v", ErrRemoteDownloadFailed, err)
	}
	return nil
}

// Contains reports whether the object currently exists in the bucket.
// Best-effort: lookup failures count as absent.
func (r *Remote) Contains(ctx context.Context, filename string) bool {
	client, cfg, err := r.resolve()
	if err != nil {
		return false
	}
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(r.key(cfg, filename)),
	})
	return err == nil
}

// Delete removes the object from the bucket.
func (r *Remote) Delete(ctx context.Context, filename string) error {
	client, cfg, err := r.resolve()
	if err != nil {
		return err
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(r.key(cfg, filename)),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteDeleteFailed, err)
	}
	return nil
}
