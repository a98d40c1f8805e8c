package corpus

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bmatcuk/doublestar/v4"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures an S3 source.
type S3Options struct {
	Bucket string
	// Prefix scopes enumeration to keys under this prefix.
	Prefix string
	Region string

	// Include and Exclude are doublestar patterns matched against the key
	// relative to Prefix.
	Include []string
	Exclude []string

	// MaxFileSize is the maximum document size in bytes (0 = 32MB default).
	MaxFileSize int64
}

// S3Source enumerates documents from an S3 bucket.
type S3Source struct {
	client S3API
	opts   S3Options
}

// NewS3Source creates an S3 source using the default AWS credential chain.
func NewS3Source(ctx context.Context, opts S3Options) (*S3Source, error) {
	if opts.Bucket == "" {
		return nil, syncerrors.ConfigError("s3 source requires a bucket", nil)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, syncerrors.CorpusUnavailable("failed to load AWS configuration", err)
	}

	return NewS3SourceWithClient(s3.NewFromConfig(cfg), opts), nil
}

// NewS3SourceWithClient creates an S3 source with an injected client.
func NewS3SourceWithClient(client S3API, opts S3Options) *S3Source {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &S3Source{client: client, opts: opts}
}

// Name identifies the source backend.
func (s *S3Source) Name() string { return "s3" }

// Enumerate lists objects under the configured prefix and streams documents.
func (s *S3Source) Enumerate(ctx context.Context) (<-chan Result, error) {
	results := make(chan Result, resultBuffer)

	go func() {
		defer close(results)
		s.list(ctx, results)
	}()

	return results, nil
}

func (s *S3Source) list(ctx context.Context, results chan<- Result) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
	}
	if s.opts.Prefix != "" {
		input.Prefix = aws.String(s.opts.Prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.emit(ctx, results, Result{Err: syncerrors.CorpusUnavailable(
				fmt.Sprintf("failed to list s3://%s/%s", s.opts.Bucket, s.opts.Prefix), err)})
			return
		}

		for _, obj := range page.Contents {
			select {
			case <-ctx.Done():
				return
			default:
			}

			key := aws.ToString(obj.Key)
			rel := s.relKey(key)
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue // Prefix placeholder objects
			}
			if !s.included(rel) {
				continue
			}
			if obj.Size != nil && *obj.Size > s.opts.MaxFileSize {
				continue
			}

			doc, err := s.fetch(ctx, key, rel)
			if err != nil {
				s.emit(ctx, results, Result{Err: err})
				continue
			}
			if doc == nil {
				continue // Binary object
			}
			if obj.LastModified != nil {
				doc.ModTime = *obj.LastModified
			}
			if !s.emit(ctx, results, Result{Doc: doc}) {
				return
			}
		}
	}
}

// fetch downloads one object and builds a Document.
// Returns (nil, nil) for binary content.
func (s *S3Source) fetch(ctx context.Context, key, rel string) (*Document, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, syncerrors.CorpusError(fmt.Sprintf("failed to get s3 object %s", key), err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxFileSize+1))
	if err != nil {
		return nil, syncerrors.CorpusError(fmt.Sprintf("failed to read s3 object %s", key), err)
	}
	if int64(len(raw)) > s.opts.MaxFileSize {
		return nil, nil
	}

	if isBinary(raw) {
		return nil, nil
	}

	content := string(raw)
	if isHTMLPath(rel) {
		content = HTMLToMarkdown(content)
	}

	return &Document{
		ID:          rel,
		SourcePath:  fmt.Sprintf("s3://%s/%s", s.opts.Bucket, key),
		Collection:  CollectionFromPath(rel),
		Content:     content,
		Fingerprint: Fingerprint(raw),
		Size:        int64(len(raw)),
	}, nil
}

// relKey strips the configured prefix from an object key.
func (s *S3Source) relKey(key string) string {
	if s.opts.Prefix == "" {
		return key
	}
	prefix := s.opts.Prefix
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if key == strings.TrimSuffix(prefix, "/") {
		return ""
	}
	return strings.TrimPrefix(key, prefix)
}

func (s *S3Source) included(rel string) bool {
	cleaned := path.Clean(rel)
	for _, pattern := range sensitivePatterns {
		if ok, _ := doublestar.Match(pattern, cleaned); ok {
			return false
		}
	}
	for _, pattern := range s.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, cleaned); ok {
			return false
		}
	}
	if len(s.opts.Include) == 0 {
		return true
	}
	for _, pattern := range s.opts.Include {
		if ok, _ := doublestar.Match(pattern, cleaned); ok {
			return true
		}
	}
	return false
}

// emit sends a result unless the context is done. Reports delivery.
func (s *S3Source) emit(ctx context.Context, results chan<- Result, r Result) bool {
	select {
	case results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
