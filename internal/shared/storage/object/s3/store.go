package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"brandkit-backend/internal/shared/storage/object"
	"brandkit-backend/internal/shared/util"
)

// Options configures the S3 store.
type Options struct {
	Region        string
	Bucket        string
	Prefix        string
	KMSKeyID      string
	Endpoint      string // S3-compatible endpoint (MinIO, localstack); enables path-style addressing
	PublicBaseURL string // CDN or website base; overrides the derived bucket URL
}

// Store implements ObjectStore using Amazon S3.
type Store struct {
	client        *s3.Client
	bucket        string
	prefix        string
	kmsKeyID      string
	region        string
	endpoint      string
	publicBaseURL string
}

// New creates a new S3-backed object store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint != "" {
		accessKey := strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID"))
		secretKey := strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY"))
		if accessKey != "" && secretKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
			))
		}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:        client,
		bucket:        opts.Bucket,
		prefix:        normalizePrefix(opts.Prefix),
		kmsKeyID:      strings.TrimSpace(opts.KMSKeyID),
		region:        cfg.Region,
		endpoint:      endpoint,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/"),
	}, nil
}

// Put uploads the reader contents to S3 at key.
func (s *Store) Put(ctx context.Context, key string, contentType string, r io.Reader) (object.Ref, error) {
	if err := ctx.Err(); err != nil {
		return object.Ref{}, err
	}

	clean, err := util.CleanKey(key)
	if err != nil {
		return object.Ref{}, err
	}
	objectKey := applyPrefix(s.prefix, clean)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}

	var size int64
	var counter *countingReader
	if rs, ok := r.(io.ReadSeeker); ok {
		// Seekable bodies let the SDK sign the payload and set Content-Length.
		end, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return object.Ref{}, fmt.Errorf("seek body: %w", err)
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return object.Ref{}, fmt.Errorf("seek body: %w", err)
		}
		size = end
		input.Body = rs
		input.ContentLength = aws.Int64(end)
	} else {
		counter = &countingReader{r: r}
		input.Body = counter
	}

	if s.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return object.Ref{}, fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	if counter != nil {
		size = counter.n
	}

	return object.Ref{Key: clean, Size: size, ContentType: contentType}, nil
}

// Open downloads a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, err := util.CleanKey(key)
	if err != nil {
		return nil, err
	}
	objectKey := applyPrefix(s.prefix, clean)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return out.Body, nil
}

// PublicURL returns the retrievable URL of an uploaded object.
func (s *Store) PublicURL(ctx context.Context, ref object.Ref) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := util.CleanKey(ref.Key)
	if err != nil {
		return "", err
	}
	return s.baseURL() + "/" + escapeKey(applyPrefix(s.prefix, clean)), nil
}

// KeyFromURL maps a URL produced by PublicURL back to its key.
func (s *Store) KeyFromURL(raw string) (string, bool) {
	base := s.baseURL() + "/"
	if !strings.HasPrefix(raw, base) {
		return "", false
	}
	rest := strings.TrimPrefix(raw, base)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	unescaped, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	if s.prefix != "" {
		if !strings.HasPrefix(unescaped, s.prefix+"/") {
			return "", false
		}
		unescaped = strings.TrimPrefix(unescaped, s.prefix+"/")
	}
	clean, err := util.CleanKey(unescaped)
	if err != nil {
		return "", false
	}
	return clean, true
}

func (s *Store) baseURL() string {
	switch {
	case s.publicBaseURL != "":
		return s.publicBaseURL
	case s.endpoint != "":
		return s.endpoint + "/" + s.bucket
	default:
		region := s.region
		if region == "" {
			region = "us-east-1"
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.bucket, region)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

var (
	_ object.ObjectStore = (*Store)(nil)
	_ object.URLResolver = (*Store)(nil)
)
