// Package webfetch defines the fetch pipeline's shared types and the
// orchestrator that chooses between live content and the archive.
package webfetch

import (
	"fmt"
	"net/http"
	"time"
)

// Source tags where a result's content came from.
type Source string

// Source values reported on every result.
const (
	SourceLive    Source = "live"
	SourceArchive Source = "archive"
)

// FetchResult is returned to callers for every successful fetch.
type FetchResult struct {
	URL    string   `json:"url"`
	Text   string   `json:"text"`
	Links  []string `json:"links"`
	Source Source   `json:"source"`
}

// Response is what a Fetcher hands back for a single live attempt.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Charset     string
	Body        []byte
	Duration    time.Duration
}

// FetchError describes a failed live attempt. StatusCode is zero for
// transport failures such as DNS errors, refused connections or timeouts.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	reason := "unknown error"
	switch {
	case e.Err != nil:
		reason = e.Err.Error()
	case e.StatusCode != 0:
		reason = http.StatusText(e.StatusCode)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %s", e.URL, e.StatusCode, reason)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PermanentRedirect reports whether the attempt ended on a 308.
func (e *FetchError) PermanentRedirect() bool {
	return e.StatusCode == http.StatusPermanentRedirect
}

// State is a step of the fetch state machine.
type State string

// Fetch states. DONE_LIVE, DONE_ARCHIVE and FAILED are terminal.
const (
	StateInit           State = "INIT"
	StateFetching       State = "FETCHING"
	StateExtracting     State = "EXTRACTING"
	StateCaching        State = "CACHING"
	StateFallbackLookup State = "FALLBACK_LOOKUP"
	StateDoneLive       State = "DONE_LIVE"
	StateDoneArchive    State = "DONE_ARCHIVE"
	StateFailed         State = "FAILED"
)

// Outcome carries a result plus the details callers log.
type Outcome struct {
	Result FetchResult
	State  State
	// Candidates are the archive locations derived for the URL.
	Candidates []string
	// MatchedCandidate is the archive location that answered a fallback.
	MatchedCandidate string
	// FetchErr is the live failure that triggered a fallback.
	FetchErr *FetchError
	// ArchiveWriteErr is set when write-through failed for a live result.
	ArchiveWriteErr error
}

// JournalEntry records one orchestrator outcome.
type JournalEntry struct {
	ID         string
	Action     string
	URL        string
	Source     string
	ArchiveKey string
	StatusCode int
	Error      string
	RecordedAt time.Time
}
