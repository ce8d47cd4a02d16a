package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// S3Config holds the settings for an S3-compatible bucket (AWS S3 or MinIO).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for MinIO and other S3-compatible servers
	PathStyle       bool
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
}

// S3Store keeps attachments as objects keyed by their attachment path.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3StoreFromClient(client, cfg.Bucket), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// OpenWriter buffers the payload and uploads it on Close. Objects never become
// visible partially written.
func (s *S3Store) OpenWriter(ctx context.Context, ref ports.AttachmentRef) (ports.AttachmentWriter, error) {
	key, err := ObjectPath(ref)
	if err != nil {
		return nil, err
	}
	if err := ctxDone(ctx); err != nil {
		return nil, err
	}
	return &s3Writer{ctx: ctx, store: s, key: key}, nil
}

func (s *S3Store) Delete(ctx context.Context, ref ports.AttachmentRef) error {
	key, err := ObjectPath(ref)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return unavailable("delete object", err)
	}
	return nil
}

func (s *S3Store) DeleteAllForUser(ctx context.Context, userKey string) (int, error) {
	prefix, err := UserPrefix(userKey)
	if err != nil {
		return 0, err
	}

	n := 0
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return n, unavailable("list objects", err)
		}
		for _, obj := range out.Contents {
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: obj.Key}); err != nil {
				return n, unavailable("delete object", err)
			}
			n++
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		return n, nil
	}
}

type s3Writer struct {
	ctx   context.Context
	store *S3Store
	key   string
	buf   bytes.Buffer
	done  bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, errWriterDone
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.done {
		return errWriterDone
	}
	w.done = true
	_, err := w.store.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:      &w.store.bucket,
		Key:         &w.key,
		Body:        bytes.NewReader(w.buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return unavailable("put object", err)
	}
	return nil
}

func (w *s3Writer) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}
