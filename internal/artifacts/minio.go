// Package artifacts uploads executed notebooks and their logs to an
// S3-compatible object store so failures can be inspected after the CI
// workspace is gone.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roach88/nbiso/internal/config"
	"github.com/roach88/nbiso/internal/executor"
)

// Content types of uploaded objects.
const (
	NotebookContentType = "application/x-ipynb+json"
	LogContentType      = "text/plain; charset=utf-8"
)

// Uploader stores the outputs of one execution.
type Uploader interface {
	// Upload returns the key of the uploaded output notebook, or "" when
	// the tool never wrote one.
	Upload(ctx context.Context, sessionID string, res *executor.Result) (string, error)
}

// objectClient is the subset of *minio.Client used here.
type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOUploader uploads to a single bucket.
type MinIOUploader struct {
	client objectClient
	bucket string
	prefix string
	region string
}

// NewMinIOClient builds a client from cfg.
func NewMinIOClient(cfg config.ArtifactsConfig) (*minio.Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("artifact upload is not configured")
	}
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// NewMinIOUploader creates an uploader from cfg.
func NewMinIOUploader(cfg config.ArtifactsConfig) (*MinIOUploader, error) {
	client, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	return newUploader(client, cfg), nil
}

func newUploader(client objectClient, cfg config.ArtifactsConfig) *MinIOUploader {
	return &MinIOUploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
	}
}

// EnsureBucket creates the bucket when it does not exist.
func (u *MinIOUploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("bucket %s exists: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", u.bucket, err)
	}
	return nil
}

// Key is the object key of a file produced for notebook rel in a session:
// <prefix>/<session>/<rel-dir>/<file>.
func (u *MinIOUploader) Key(sessionID, relDir, file string) string {
	parts := []string{}
	if u.prefix != "" {
		parts = append(parts, u.prefix)
	}
	parts = append(parts, sessionID)
	if relDir != "" {
		parts = append(parts, relDir)
	}
	return path.Join(append(parts, file)...)
}

// Upload implements Uploader. Missing files are skipped.
func (u *MinIOUploader) Upload(ctx context.Context, sessionID string, res *executor.Result) (string, error) {
	relDir := res.Notebook.RelDir()

	var notebookKey string
	if fileExists(res.OutputPath) {
		notebookKey = u.Key(sessionID, relDir, filepath.Base(res.OutputPath))
		if err := u.put(ctx, notebookKey, res.OutputPath, NotebookContentType); err != nil {
			return "", err
		}
	}
	if fileExists(res.LogPath) {
		if err := u.put(ctx, u.Key(sessionID, relDir, filepath.Base(res.LogPath)), res.LogPath, LogContentType); err != nil {
			return "", err
		}
	}
	return notebookKey, nil
}

func (u *MinIOUploader) put(ctx context.Context, key, file, contentType string) error {
	_, err := u.client.FPutObject(ctx, u.bucket, key, file, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s to %s/%s: %w", file, u.bucket, key, err)
	}
	return nil
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
