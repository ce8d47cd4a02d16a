package attachments

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

const (
	defaultGridFSBucket = "attachments"
	gridFSTimeout       = 30 * time.Second
)

// GridFSStore keeps attachments in a GridFS bucket of the structured store's
// database. It is still a separate failure domain from the record writes: blob
// writes never join a transaction.
type GridFSStore struct {
	db     *mongo.Database
	bucket string
}

func NewGridFSStore(db *mongo.Database, bucket string) *GridFSStore {
	if bucket == "" {
		bucket = defaultGridFSBucket
	}
	return &GridFSStore{db: db, bucket: bucket}
}

type gridFSMetadata struct {
	UserKey  string `bson:"userKey"`
	StudyKey string `bson:"studyKey"`
	TaskID   int    `bson:"taskId"`
}

// newBucket returns a fresh handle; gridfs.Bucket keeps per-call deadlines
// and buffers and must not be shared across goroutines.
func (s *GridFSStore) newBucket(ctx context.Context) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(s.bucket))
	if err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(gridFSTimeout)
	}
	if err := b.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := b.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *GridFSStore) OpenWriter(ctx context.Context, ref ports.AttachmentRef) (ports.AttachmentWriter, error) {
	path, err := ObjectPath(ref)
	if err != nil {
		return nil, err
	}
	b, err := s.newBucket(ctx)
	if err != nil {
		return nil, unavailable("open gridfs bucket", err)
	}
	meta := gridFSMetadata{UserKey: ref.UserKey, StudyKey: ref.StudyKey, TaskID: ref.TaskID}
	stream, err := b.OpenUploadStream(path, options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return nil, unavailable("open upload stream", err)
	}
	return &gridFSWriter{stream: stream}, nil
}

func (s *GridFSStore) Delete(ctx context.Context, ref ports.AttachmentRef) error {
	path, err := ObjectPath(ref)
	if err != nil {
		return err
	}
	_, err = s.deleteMatching(ctx, bson.M{"filename": path})
	return err
}

func (s *GridFSStore) DeleteAllForUser(ctx context.Context, userKey string) (int, error) {
	if _, err := UserPrefix(userKey); err != nil {
		return 0, err
	}
	return s.deleteMatching(ctx, bson.M{"metadata.userKey": userKey})
}

func (s *GridFSStore) deleteMatching(ctx context.Context, filter bson.M) (int, error) {
	b, err := s.newBucket(ctx)
	if err != nil {
		return 0, unavailable("open gridfs bucket", err)
	}
	cursor, err := b.FindContext(ctx, filter)
	if err != nil {
		return 0, unavailable("find files", err)
	}
	defer cursor.Close(ctx)

	var files []struct {
		ID interface{} `bson:"_id"`
	}
	if err := cursor.All(ctx, &files); err != nil {
		return 0, unavailable("decode files", err)
	}

	n := 0
	for _, f := range files {
		if err := b.DeleteContext(ctx, f.ID); err != nil {
			if errors.Is(err, gridfs.ErrFileNotFound) {
				continue
			}
			return n, unavailable("delete file", err)
		}
		n++
	}
	return n, nil
}

type gridFSWriter struct {
	stream *gridfs.UploadStream
	closed bool
}

func (w *gridFSWriter) Write(p []byte) (int, error) {
	n, err := w.stream.Write(p)
	if err != nil {
		return n, unavailable("write", err)
	}
	return n, nil
}

func (w *gridFSWriter) Close() error {
	if err := w.stream.Close(); err != nil {
		return unavailable("finalize", err)
	}
	w.closed = true
	return nil
}

func (w *gridFSWriter) Abort() error {
	if w.closed {
		return nil
	}
	if err := w.stream.Abort(); err != nil && !errors.Is(err, gridfs.ErrStreamClosed) {
		return unavailable("abort", err)
	}
	return nil
}
