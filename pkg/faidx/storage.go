package faidx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// File is a random-access source opened from a Storage.
type File interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// FileInfo represents file metadata
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Storage is an interface for reading sources and persisting their indexes.
// Supports both local filesystem and S3
type Storage interface {
	// Open opens a source for random access
	Open(path string) (File, error)

	// Stat returns size and modification time
	Stat(path string) (FileInfo, error)

	// ReadFile reads a whole file
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces a file atomically
	WriteFile(path string, data []byte) error

	// IsS3 returns true if this is S3 storage
	IsS3() bool
}

// LocalStorage implements Storage for local filesystem
type LocalStorage struct{}

// NewLocalStorage creates a new local storage backend
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

type localFile struct {
	*os.File
	size int64
}

func (f *localFile) Size() int64 {
	return f.size
}

func (s *LocalStorage) Open(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &localFile{File: f, size: info.Size()}, nil
}

func (s *LocalStorage) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *LocalStorage) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes to a temporary file in the same directory and renames it
// over path, so readers never observe a partial index.
func (s *LocalStorage) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmpName, err)
	}
	return nil
}

func (s *LocalStorage) IsS3() bool {
	return false
}

// S3URI represents a parsed S3 URI
type S3URI struct {
	Bucket string
	Key    string
}

// ParseS3URI parses an S3 URI like s3://bucket/path/to/object
func ParseS3URI(uri string) (*S3URI, error) {
	if !strings.HasPrefix(uri, "s3://") {
		return nil, fmt.Errorf("invalid S3 URI: must start with s3://")
	}

	path := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return nil, fmt.Errorf("invalid S3 URI: missing bucket name")
	}
	if len(parts) < 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid S3 URI: missing object key")
	}

	return &S3URI{Bucket: parts[0], Key: parts[1]}, nil
}

// IsS3URI checks if a path is an S3 URI
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Storage implements Storage for AWS S3. Paths are full s3:// URIs.
// Sources are read with ranged GETs, so sessions never download whole objects.
type S3Storage struct {
	client   S3API
	uploader *manager.Uploader
	ctx      context.Context
}

// NewS3Storage creates a new S3 storage backend using the default AWS
// credential chain.
func NewS3Storage(ctx context.Context, region string) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3StorageWithClient(ctx, s3.NewFromConfig(cfg)), nil
}

// NewS3StorageWithClient wraps an existing client.
func NewS3StorageWithClient(ctx context.Context, client S3API) *S3Storage {
	return &S3Storage{
		client:   client,
		uploader: manager.NewUploader(client),
		ctx:      ctx,
	}
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func (s *S3Storage) Stat(path string) (FileInfo, error) {
	uri, err := ParseS3URI(path)
	if err != nil {
		return FileInfo{}, err
	}
	out, err := s.client.HeadObject(s.ctx, &s3.HeadObjectInput{
		Bucket: aws.String(uri.Bucket),
		Key:    aws.String(uri.Key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return FileInfo{}, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
		}
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return FileInfo{
		Path:    path,
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

func (s *S3Storage) Open(path string) (File, error) {
	info, err := s.Stat(path)
	if err != nil {
		return nil, err
	}
	uri, _ := ParseS3URI(path)
	return &s3File{
		client: s.client,
		ctx:    s.ctx,
		bucket: uri.Bucket,
		key:    uri.Key,
		size:   info.Size,
	}, nil
}

func (s *S3Storage) ReadFile(path string) ([]byte, error) {
	f, err := s.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data := make([]byte, f.Size())
	if _, err := f.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return data, nil
}

// WriteFile uploads data as a single object; S3 puts are atomic.
func (s *S3Storage) WriteFile(path string, data []byte) error {
	uri, err := ParseS3URI(path)
	if err != nil {
		return err
	}
	_, err = s.uploader.Upload(s.ctx, &s3.PutObjectInput{
		Bucket: aws.String(uri.Bucket),
		Key:    aws.String(uri.Key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) IsS3() bool {
	return true
}

// s3File implements io.ReaderAt with ranged GETs.
type s3File struct {
	client S3API
	ctx    context.Context
	bucket string
	key    string
	size   int64
}

func (f *s3File) Size() int64 {
	return f.size
}

func (f *s3File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= f.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := min(off+int64(len(p)), f.size) - 1
	out, err := f.client.GetObject(f.ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read s3://%s/%s at %d: %w", f.bucket, f.key, off, err)
	}
	defer out.Body.Close()

	want := int(end - off + 1)
	n, err := io.ReadFull(out.Body, p[:want])
	if err != nil {
		return n, fmt.Errorf("failed to read s3://%s/%s at %d: %w", f.bucket, f.key, off, err)
	}
	if want < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *s3File) Close() error {
	return nil
}

// NewStorage creates the appropriate storage backend based on path
func NewStorage(path, region string) (Storage, error) {
	if IsS3URI(path) {
		return NewS3Storage(context.Background(), region)
	}
	return NewLocalStorage(), nil
}
