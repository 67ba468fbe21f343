package minio

import (
	"context"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/charge-repository/internal/config"
	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/infrastructure/archive"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/charge-repository/pkg/errors"
)

const archiveContentType = "application/zip"

// User metadata keys describing a pushed archive.
const (
	metaShellMin  = "Shell-Min"
	metaShellMax  = "Shell-Max"
	metaTraceable = "Traceable"
)

// ArchiveInfo describes a stored archive.
type ArchiveInfo struct {
	Name         string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ArchiveStore keeps repository archives under a prefix of one bucket.
type ArchiveStore struct {
	api     ObjectAPI
	bucket  string
	prefix  string
	logger  logging.Logger
	metrics *prometheus.RepoMetrics
}

// NewArchiveStore returns a store over api.  metrics may be nil.
func NewArchiveStore(api ObjectAPI, cfg config.MinIOConfig, logger logging.Logger, metrics *prometheus.RepoMetrics) *ArchiveStore {
	return &ArchiveStore{
		api:     api,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		logger:  logging.OrDefault(logger).Named("minio"),
		metrics: metrics,
	}
}

// ObjectName maps an archive name to its object key.
func (s *ArchiveStore) ObjectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Push uploads the archive at localPath as name.  The file is read back
// first so that a corrupt archive is never published.
func (s *ArchiveStore) Push(ctx context.Context, localPath, name string) (*ArchiveInfo, error) {
	repo, err := archive.Read(localPath)
	if err != nil {
		return nil, err
	}
	lo, hi := repo.ShellRange()

	object := s.ObjectName(name)
	info, err := s.api.FPutObject(ctx, s.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: archiveContentType,
		UserMetadata: map[string]string{
			metaShellMin:  strconv.Itoa(lo),
			metaShellMax:  strconv.Itoa(hi),
			metaTraceable: strconv.FormatBool(repo.Traceable()),
		},
	})
	if err != nil {
		s.metrics.RecordError("minio", err)
		return nil, errors.Wrap(err, errors.CodeStorageError, "upload archive").
			WithDetailf("bucket=%s object=%s", s.bucket, object)
	}
	s.metrics.RecordArchiveBytes("push", info.Size)
	s.logger.Info("archive pushed", logging.String("object", object), logging.Int64("bytes", info.Size))
	return &ArchiveInfo{Name: name, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

// Pull downloads name, validates it and only then moves it to localPath.
// The repository it holds is returned.
func (s *ArchiveStore) Pull(ctx context.Context, name, localPath string, opts ...charge.Option) (*charge.Repository, error) {
	object := s.ObjectName(name)
	tmp := localPath + ".pull"
	defer os.Remove(tmp)

	if err := s.api.FGetObject(ctx, s.bucket, object, tmp, minio.GetObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "archive not found").
				WithDetailf("bucket=%s object=%s", s.bucket, object).WithCause(err)
		}
		s.metrics.RecordError("minio", err)
		return nil, errors.Wrap(err, errors.CodeStorageError, "download archive").
			WithDetailf("bucket=%s object=%s", s.bucket, object)
	}

	repo, err := archive.Read(tmp, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "validate pulled archive").WithDetailf("object=%s", object)
	}
	if st, err := os.Stat(tmp); err == nil {
		s.metrics.RecordArchiveBytes("pull", st.Size())
	}
	if err := os.Rename(tmp, localPath); err != nil {
		return nil, errors.New(errors.CodeArchiveWrite, "install pulled archive").
			WithDetailf("path=%s", localPath).WithCause(err)
	}
	s.logger.Info("archive pulled", logging.String("object", object), logging.String("path", localPath))
	return repo, nil
}

// Stat describes one stored archive.
func (s *ArchiveStore) Stat(ctx context.Context, name string) (*ArchiveInfo, error) {
	object := s.ObjectName(name)
	info, err := s.api.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.New(errors.CodeNotFound, "archive not found").
				WithDetailf("bucket=%s object=%s", s.bucket, object).WithCause(err)
		}
		return nil, errors.Wrap(err, errors.CodeStorageError, "stat archive").WithDetailf("object=%s", object)
	}
	return &ArchiveInfo{Name: name, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

// List returns the stored archives sorted by name.
func (s *ArchiveStore) List(ctx context.Context) ([]ArchiveInfo, error) {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}
	var out []ArchiveInfo
	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.CodeStorageError, "list archives").WithDetailf("bucket=%s", s.bucket)
		}
		out = append(out, ArchiveInfo{
			Name:         strings.TrimPrefix(obj.Key, prefix),
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
