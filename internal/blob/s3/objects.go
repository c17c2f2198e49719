package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// MinPartSize is the smallest part S3 accepts for multipart uploads.
const MinPartSize int64 = 5 * 1024 * 1024

// Objects reads and writes log segments in one bucket. It implements both
// domain.BlobWriter and domain.BlobReader.
type Objects struct {
	api    *s3.Client
	bucket string
}

// NewObjects binds the client's bucket.
func NewObjects(c *Client) *Objects {
	return &Objects{api: c.S3(), bucket: c.Bucket()}
}

func (o *Objects) input(key string, body io.Reader, contentType string) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
}

// Put stores data under key in a single request.
func (o *Objects) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	if _, err := o.api.PutObject(ctx, o.input(key, data, contentType)); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

// PutMultipart streams data through the upload manager in parts of at least
// MinPartSize bytes.
func (o *Objects) PutMultipart(ctx context.Context, key string, data io.Reader, partSize int64) error {
	up := manager.NewUploader(o.api, func(u *manager.Uploader) {
		u.PartSize = max(partSize, MinPartSize)
	})
	if _, err := up.Upload(ctx, o.input(key, data, logContentType)); err != nil {
		return fmt.Errorf("s3blob: multipart put %s: %w", key, err)
	}
	return nil
}

// Get opens the object at key; the caller closes the body. A missing key is
// reported as domain.ErrNotFound.
func (o *Objects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := o.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	switch {
	case isNotFound(err):
		return nil, fmt.Errorf("s3blob: get %s: %w", key, domain.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	return out.Body, nil
}

// List walks every page under prefix and returns the objects in key order,
// which for archived segments is also recording order.
func (o *Objects) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	pages := s3.NewListObjectsV2Paginator(o.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(o.bucket),
		Prefix: aws.String(prefix),
	})

	var out []domain.BlobInfo
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, domain.BlobInfo{
				Path:         aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// isNotFound matches the SDK's typed errors and the bare 404 some
// S3-compatible stores return instead.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	var status interface{ HTTPStatusCode() int }
	switch {
	case errors.As(err, &noKey), errors.As(err, &notFound):
		return true
	case errors.As(err, &status):
		return status.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}
