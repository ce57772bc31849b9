package registration

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Uploader copies a local file to durable object storage
type Uploader interface {
	Upload(ctx context.Context, localPath, destination string) error
}

// UploadError reports a failed upload. The local record is kept; the
// failure is surfaced to the user and not retried.
type UploadError struct {
	Destination string
	Err         error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload to %s: %v", e.Destination, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// GCSUploader uploads objects with the Cloud Storage JSON API media upload
type GCSUploader struct {
	client *resty.Client
	bucket string
}

// NewGCSUploader builds an uploader authenticated with an OAuth2 access
// token supplied by the environment
func NewGCSUploader(baseURL, bucket, accessToken string, timeout time.Duration) *GCSUploader {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(accessToken)

	return &GCSUploader{client: client, bucket: bucket}
}

func (u *GCSUploader) Upload(ctx context.Context, localPath, destination string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return &UploadError{Destination: destination, Err: err}
	}

	resp, err := u.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"uploadType": "media",
			"name":       destination,
		}).
		SetHeader("Content-Type", "text/csv").
		SetBody(data).
		Post("/upload/storage/v1/b/" + url.PathEscape(u.bucket) + "/o")
	if err != nil {
		return &UploadError{Destination: destination, Err: err}
	}
	if resp.IsError() {
		return &UploadError{
			Destination: destination,
			Err:         fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String())),
		}
	}
	return nil
}

// LocalUploader copies files into a directory, for development and tests
type LocalUploader struct {
	dir string
}

func NewLocalUploader(dir string) *LocalUploader {
	return &LocalUploader{dir: dir}
}

func (u *LocalUploader) Upload(ctx context.Context, localPath, destination string) error {
	if err := ctx.Err(); err != nil {
		return &UploadError{Destination: destination, Err: err}
	}

	target := filepath.Join(u.dir, filepath.Clean("/"+destination))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return &UploadError{Destination: destination, Err: err}
	}

	src, err := os.Open(localPath)
	if err != nil {
		return &UploadError{Destination: destination, Err: err}
	}
	defer src.Close()

	tmp := target + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return &UploadError{Destination: destination, Err: err}
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return &UploadError{Destination: destination, Err: err}
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return &UploadError{Destination: destination, Err: err}
	}
	if err := os.Rename(tmp, target); err != nil {
		return &UploadError{Destination: destination, Err: err}
	}
	return nil
}
