package analyzer

import (
	"context"
	"time"
)

// URLStore persists registered URLs. Lookups that find nothing return a nil
// record and a nil error.
type URLStore interface {
	CreateURL(ctx context.Context, name string) (URLRecord, error)
	FindURLByID(ctx context.Context, id int64) (*URLRecord, error)
	FindURLByName(ctx context.Context, name string) (*URLRecord, error)
	ListURLs(ctx context.Context) ([]URLRecord, error)
	ListURLsWithLatestCheck(ctx context.Context) ([]URLWithLatestCheck, error)
}

// CheckStore persists check history. Checks are append-only.
type CheckStore interface {
	CreateCheck(ctx context.Context, check NewCheck) (CheckRecord, error)
	ListChecksByURLID(ctx context.Context, urlID int64) ([]CheckRecord, error)
	FindLatestCheckByURLID(ctx context.Context, urlID int64) (*CheckRecord, error)
}

// Fetcher performs the outbound GET for a check.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchOutcome
}

// Extractor pulls SEO fields out of an HTML document. It never fails.
type Extractor interface {
	Extract(html []byte) Fields
}

// Limiter throttles outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Publisher pushes check notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
