// Package attachments implements ports.AttachmentStore on GridFS, S3, GCS and
// memory. Every backend lays blobs out as
// <userKey>/<studyKey>/<taskId>/<filename> so a user's blobs share a prefix.
package attachments

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// ObjectPath returns the storage path of ref.
func ObjectPath(ref ports.AttachmentRef) (string, error) {
	for _, seg := range []string{ref.UserKey, ref.StudyKey, ref.Filename} {
		if err := checkSegment(seg); err != nil {
			return "", err
		}
	}
	return strings.Join([]string{ref.UserKey, ref.StudyKey, strconv.Itoa(ref.TaskID), ref.Filename}, "/"), nil
}

// UserPrefix returns the path prefix shared by every blob of userKey.
func UserPrefix(userKey string) (string, error) {
	if err := checkSegment(userKey); err != nil {
		return "", err
	}
	return userKey + "/", nil
}

func checkSegment(seg string) error {
	if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, "/\\") {
		return fmt.Errorf("%w: invalid attachment path segment %q", domain.ErrInvalidPayload, seg)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("attachments: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// ctxDone returns ctx.Err() if ctx is already cancelled.
func ctxDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
