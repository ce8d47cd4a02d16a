package attachments

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// GCSConfig holds the settings for a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string // optional, falls back to application default credentials
}

// GCSStore keeps attachments as objects in a GCS bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket}, nil
}

// OpenWriter streams to the object. Cancelling the writer's context aborts the
// upload without creating the object.
func (s *GCSStore) OpenWriter(ctx context.Context, ref ports.AttachmentRef) (ports.AttachmentWriter, error) {
	path, err := ObjectPath(ref)
	if err != nil {
		return nil, err
	}
	if err := ctxDone(ctx); err != nil {
		return nil, err
	}
	wctx, cancel := context.WithCancel(ctx)
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(wctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{"userKey": ref.UserKey, "studyKey": ref.StudyKey}
	return &gcsWriter{w: w, cancel: cancel}, nil
}

func (s *GCSStore) Delete(ctx context.Context, ref ports.AttachmentRef) error {
	path, err := ObjectPath(ref)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return unavailable("delete object", err)
	}
	return nil
}

func (s *GCSStore) DeleteAllForUser(ctx context.Context, userKey string) (int, error) {
	prefix, err := UserPrefix(userKey)
	if err != nil {
		return 0, err
	}
	bucket := s.client.Bucket(s.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})

	n := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return n, nil
		}
		if err != nil {
			return n, unavailable("list objects", err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return n, unavailable("delete object", err)
		}
		n++
	}
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

type gcsWriter struct {
	w      *storage.Writer
	cancel context.CancelFunc
	closed bool
}

func (g *gcsWriter) Write(p []byte) (int, error) {
	n, err := g.w.Write(p)
	if err != nil {
		return n, unavailable("write", err)
	}
	return n, nil
}

func (g *gcsWriter) Close() error {
	g.closed = true
	defer g.cancel()
	if err := g.w.Close(); err != nil {
		return unavailable("finalize", err)
	}
	return nil
}

func (g *gcsWriter) Abort() error {
	if !g.closed {
		g.closed = true
		g.cancel()
	}
	return nil
}
