package minio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/charge-repository/internal/config"
	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/infrastructure/archive"
	"github.com/turtacn/charge-repository/internal/testutil"
	"github.com/turtacn/charge-repository/pkg/errors"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockObjectAPI) FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, filePath, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectAPI) FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName, filePath, opts)
	return args.Error(0)
}

func (m *MockObjectAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockObjectAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return args.Get(0).(<-chan minio.ObjectInfo)
}

type ArchiveStoreTestSuite struct {
	suite.Suite
	api   *MockObjectAPI
	store *ArchiveStore
	dir   string
	repo  *charge.Repository
	local string
}

func (s *ArchiveStoreTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	s.store = NewArchiveStore(s.api, config.MinIOConfig{Bucket: "archives", Prefix: "/corpora/"}, testutil.NewMockLogger(), nil)
	s.dir = s.T().TempDir()

	repo, err := charge.New(1, 2,
		charge.WithTraceable(true),
		charge.WithCanonizer(molecule.NewCanonicalizer(testutil.NewFakeDreadnaut())))
	s.Require().NoError(err)
	s.Require().NoError(repo.Add(context.Background(), testutil.Water(3)))
	s.repo = repo

	s.local = filepath.Join(s.dir, "repo.zip")
	_, err = archive.Write(s.local, repo)
	s.Require().NoError(err)
}

func TestArchiveStoreTestSuite(t *testing.T) {
	suite.Run(t, new(ArchiveStoreTestSuite))
}

func (s *ArchiveStoreTestSuite) TestObjectName() {
	s.Equal("corpora/v1.zip", s.store.ObjectName("v1.zip"))
	bare := NewArchiveStore(s.api, config.MinIOConfig{Bucket: "b"}, nil, nil)
	s.Equal("v1.zip", bare.ObjectName("v1.zip"))
}

func (s *ArchiveStoreTestSuite) TestPush() {
	s.api.On("FPutObject", mock.Anything, "archives", "corpora/v1.zip", s.local,
		mock.MatchedBy(func(o minio.PutObjectOptions) bool {
			return o.ContentType == archiveContentType &&
				o.UserMetadata[metaShellMin] == "1" &&
				o.UserMetadata[metaShellMax] == "2" &&
				o.UserMetadata[metaTraceable] == "true"
		})).
		Return(minio.UploadInfo{Size: 123, ETag: "abc"}, nil)

	info, err := s.store.Push(context.Background(), s.local, "v1.zip")
	s.Require().NoError(err)
	s.Equal(int64(123), info.Size)
	s.Equal("abc", info.ETag)
	s.api.AssertExpectations(s.T())
}

func (s *ArchiveStoreTestSuite) TestPush_RejectsCorruptArchive() {
	bad := filepath.Join(s.dir, "bad.zip")
	s.Require().NoError(os.WriteFile(bad, []byte("not a zip"), 0o644))

	_, err := s.store.Push(context.Background(), bad, "v1.zip")
	s.True(errors.IsCode(err, errors.CodeArchiveRead))
	s.api.AssertNotCalled(s.T(), "FPutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ArchiveStoreTestSuite) TestPush_UploadError() {
	s.api.On("FPutObject", mock.Anything, "archives", "corpora/v1.zip", s.local, mock.Anything).
		Return(minio.UploadInfo{}, minio.ErrorResponse{Code: "AccessDenied"})

	_, err := s.store.Push(context.Background(), s.local, "v1.zip")
	s.True(errors.IsCode(err, errors.CodeStorageError))
}

func (s *ArchiveStoreTestSuite) TestPull() {
	dest := filepath.Join(s.dir, "pulled.zip")
	s.api.On("FGetObject", mock.Anything, "archives", "corpora/v1.zip", dest+".pull", mock.Anything).
		Run(func(args mock.Arguments) {
			data, err := os.ReadFile(s.local)
			s.Require().NoError(err)
			s.Require().NoError(os.WriteFile(args.String(3), data, 0o644))
		}).
		Return(nil)

	repo, err := s.store.Pull(context.Background(), "v1.zip", dest)
	s.Require().NoError(err)
	s.True(repo.Equal(s.repo))

	_, err = os.Stat(dest)
	s.NoError(err)
	_, err = os.Stat(dest + ".pull")
	s.True(os.IsNotExist(err))
}

func (s *ArchiveStoreTestSuite) TestPull_CorruptKeepsExistingFile() {
	dest := filepath.Join(s.dir, "existing.zip")
	s.Require().NoError(os.WriteFile(dest, []byte("old"), 0o644))
	s.api.On("FGetObject", mock.Anything, "archives", "corpora/v1.zip", dest+".pull", mock.Anything).
		Run(func(args mock.Arguments) {
			s.Require().NoError(os.WriteFile(args.String(3), []byte("garbage"), 0o644))
		}).
		Return(nil)

	_, err := s.store.Pull(context.Background(), "v1.zip", dest)
	s.True(errors.IsCode(err, errors.CodeArchiveRead))

	data, err := os.ReadFile(dest)
	s.Require().NoError(err)
	s.Equal("old", string(data))
}

func (s *ArchiveStoreTestSuite) TestPull_NotFound() {
	s.api.On("FGetObject", mock.Anything, "archives", "corpora/missing.zip", mock.Anything, mock.Anything).
		Return(minio.ErrorResponse{Code: "NoSuchKey"})

	_, err := s.store.Pull(context.Background(), "missing.zip", filepath.Join(s.dir, "x.zip"))
	s.True(errors.IsCode(err, errors.CodeNotFound))
}

func (s *ArchiveStoreTestSuite) TestStat() {
	mod := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.api.On("StatObject", mock.Anything, "archives", "corpora/v1.zip", mock.Anything).
		Return(minio.ObjectInfo{Size: 99, ETag: "e", LastModified: mod}, nil)
	s.api.On("StatObject", mock.Anything, "archives", "corpora/none.zip", mock.Anything).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"})

	info, err := s.store.Stat(context.Background(), "v1.zip")
	s.Require().NoError(err)
	s.Equal(int64(99), info.Size)
	s.Equal(mod, info.LastModified)

	_, err = s.store.Stat(context.Background(), "none.zip")
	s.True(errors.IsCode(err, errors.CodeNotFound))
}

func (s *ArchiveStoreTestSuite) TestList() {
	ch := make(chan minio.ObjectInfo, 2)
	ch <- minio.ObjectInfo{Key: "corpora/v2.zip", Size: 2}
	ch <- minio.ObjectInfo{Key: "corpora/v1.zip", Size: 1}
	close(ch)
	s.api.On("ListObjects", mock.Anything, "archives", minio.ListObjectsOptions{Prefix: "corpora/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))

	list, err := s.store.List(context.Background())
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("v1.zip", list[0].Name)
	s.Equal("v2.zip", list[1].Name)
}

func (s *ArchiveStoreTestSuite) TestList_Error() {
	ch := make(chan minio.ObjectInfo, 1)
	ch <- minio.ObjectInfo{Err: minio.ErrorResponse{Code: "AccessDenied"}}
	close(ch)
	s.api.On("ListObjects", mock.Anything, "archives", mock.Anything).Return((<-chan minio.ObjectInfo)(ch))

	_, err := s.store.List(context.Background())
	s.True(errors.IsCode(err, errors.CodeStorageError))
}

func (s *ArchiveStoreTestSuite) TestEnsureBucket() {
	s.api.On("BucketExists", mock.Anything, "new").Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, "new", minio.MakeBucketOptions{Region: "eu-west-1"}).Return(nil)
	s.api.On("BucketExists", mock.Anything, "old").Return(true, nil)

	s.NoError(EnsureBucket(context.Background(), s.api, "new", "eu-west-1", nil))
	s.NoError(EnsureBucket(context.Background(), s.api, "old", "eu-west-1", nil))
	s.api.AssertNumberOfCalls(s.T(), "MakeBucket", 1)
}

func (s *ArchiveStoreTestSuite) TestEnsureBucket_Error() {
	s.api.On("BucketExists", mock.Anything, "b").Return(false, minio.ErrorResponse{Code: "AccessDenied"})
	err := EnsureBucket(context.Background(), s.api, "b", "", nil)
	s.True(errors.IsCode(err, errors.CodeStorageError))
}
