package webfetch

import (
	"context"
	"time"

	"github.com/JakeFAU/webfetch-archive/internal/archive"
)

// Fetcher performs a single live attempt. Failures should be *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Response, error)
}

// Archive reads and writes archived payloads at candidate locations.
type Archive interface {
	Read(ctx context.Context, candidates []string) (archive.Payload, string, error)
	Write(ctx context.Context, candidates []string, payload archive.Payload) error
}

// Journal persists outcome records.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// Publisher pushes archive notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces journal entry IDs.
type IDGenerator interface {
	NewID() (string, error)
}
