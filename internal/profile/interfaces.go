package profile

import (
	"context"
	"io"
	"time"
)

// Requester performs one outbound HTTP call. Non-2xx responses are returned
// as responses, not errors; only transport failures are errors.
type Requester interface {
	Do(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes an artifact and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunRecorder persists run metadata.
type RunRecorder interface {
	RecordRun(ctx context.Context, record RunRecord) error
}

// RunReader looks up run metadata. Unknown ids yield ErrRunNotFound.
type RunReader interface {
	GetRun(ctx context.Context, id string) (RunRecord, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
