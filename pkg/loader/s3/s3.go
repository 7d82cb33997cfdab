package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"docgraph/pkg/loader"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxObjectSize bounds the objects read into memory.
const DefaultMaxObjectSize = 256 << 20

// ErrObjectTooLarge is returned for objects above the loader's size limit.
var ErrObjectTooLarge = errors.New("object exceeds the maximum size")

// ObjectGetter is the subset of the S3 API the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3GraphFileLoader loads document text from an S3 bucket. Source paths
// are object keys. Concurrent loads of the same key share one request;
// nothing is kept after a load returns.
type S3GraphFileLoader struct {
	bucket  string
	client  ObjectGetter
	maxSize int64
	group   singleflight.Group
}

// NewS3GraphFileLoaderWithClient creates a loader for bucket on top of an
// already configured client.
func NewS3GraphFileLoaderWithClient(bucket string, client ObjectGetter) *S3GraphFileLoader {
	return &S3GraphFileLoader{
		bucket:  bucket,
		client:  client,
		maxSize: DefaultMaxObjectSize,
	}
}

// WithMaxObjectSize changes the size limit. n <= 0 keeps the default.
func (l *S3GraphFileLoader) WithMaxObjectSize(n int64) *S3GraphFileLoader {
	if n > 0 {
		l.maxSize = n
	}
	return l
}

// GetFileText retrieves the object named by src.Path from the bucket.
func (l *S3GraphFileLoader) GetFileText(ctx context.Context, src loader.Source) ([]byte, error) {
	result, err, _ := l.group.Do(loader.CacheKey(src), func() (any, error) {
		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(src.Path),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get object %s: %w", src.Path, err)
		}
		defer out.Body.Close()

		if aws.ToInt64(out.ContentLength) > l.maxSize {
			return nil, fmt.Errorf("%s: %w (%d bytes)", src.Path, ErrObjectTooLarge, aws.ToInt64(out.ContentLength))
		}
		body, err := io.ReadAll(io.LimitReader(out.Body, l.maxSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read object %s: %w", src.Path, err)
		}
		if int64(len(body)) > l.maxSize {
			return nil, fmt.Errorf("%s: %w", src.Path, ErrObjectTooLarge)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
