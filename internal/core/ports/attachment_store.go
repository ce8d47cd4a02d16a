package ports

import (
	"context"
	"io"
)

// AttachmentRef addresses one blob in the attachment store.
type AttachmentRef struct {
	UserKey  string
	StudyKey string
	TaskID   int
	Filename string
}

// AttachmentWriter is a scoped write handle. Exactly one of Close or Abort
// must be called; Abort after Close is a no-op.
type AttachmentWriter interface {
	io.Writer
	// Close finalizes the blob and makes it readable.
	Close() error
	// Abort discards whatever was written so far.
	Abort() error
}

// AttachmentStore is the binary store for raw submissions. It fails
// independently of the structured record store.
type AttachmentStore interface {
	OpenWriter(ctx context.Context, ref AttachmentRef) (AttachmentWriter, error)
	// Delete removes one blob; deleting a missing blob is not an error.
	Delete(ctx context.Context, ref AttachmentRef) error
	// DeleteAllForUser removes every blob stored for userKey and returns how many.
	DeleteAllForUser(ctx context.Context, userKey string) (int, error)
}
