// Package analyzer defines the page analyzer's core types, the ports its
// collaborators implement, and the URL check workflow built on top of them.
package analyzer

import "time"

// StatusConnectFailure is recorded as the status code when no HTTP response
// was received (DNS, TCP, TLS failure or timeout).
const StatusConnectFailure = 0

// URLRecord is a registered site. Name is always the canonical form produced
// by Normalize.
type URLRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckRecord is one immutable check run against a URLRecord.
type CheckRecord struct {
	ID          int64     `json:"id"`
	URLID       int64     `json:"url_id"`
	StatusCode  int       `json:"status_code"`
	H1          *string   `json:"h1"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Connected reports whether the check received any HTTP response.
func (c CheckRecord) Connected() bool {
	return c.StatusCode != StatusConnectFailure
}

// NewCheck is the input to CheckStore.Create.
type NewCheck struct {
	URLID       int64
	StatusCode  int
	H1          *string
	Title       *string
	Description *string
}

// URLWithLatestCheck pairs a URL with its most recent check, if any.
type URLWithLatestCheck struct {
	URL         URLRecord    `json:"url"`
	LatestCheck *CheckRecord `json:"latest_check"`
}

// Fields holds the SEO fields pulled out of a page. Absent fields are nil.
type Fields struct {
	H1          *string `json:"h1"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// FetchOutcome is the result of a single page fetch. When Connected is false
// no response was received and StatusCode/Body are zero values. Any received
// response, whatever its status, is Connected.
type FetchOutcome struct {
	Connected  bool
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Err        error
}

// CheckNotification is published after a check has been persisted.
type CheckNotification struct {
	URLID      int64     `json:"url_id"`
	CheckID    int64     `json:"check_id"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	CreatedAt  time.Time `json:"created_at"`
}
