package webfetch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/webfetch-archive/internal/archive"
	"github.com/JakeFAU/webfetch-archive/internal/extract"
	"github.com/JakeFAU/webfetch-archive/internal/logging"
	"github.com/JakeFAU/webfetch-archive/internal/metrics"
	"github.com/JakeFAU/webfetch-archive/internal/telemetry"
)

// Interaction actions written to the log and the journal.
const (
	ActionFetch            = "fetch_plain_text"
	ActionArchiveFallback  = "fetch_plain_text_archive_fallback"
	ActionArchiveRedirect  = "fetch_plain_text_archive_redirect"
	ActionFetchError       = "fetch_plain_text_error"
	ActionArchiveWriteFail = "archive_write_error"
)

// Config controls Service behavior.
type Config struct {
	// Topic receives a notification after every successful write-through.
	// Empty disables publishing.
	Topic string
}

// Service runs the fetch state machine: one live attempt, extraction and
// write-through on success, archive lookup on failure.
type Service struct {
	fetcher   Fetcher
	archive   Archive
	journal   Journal
	publisher Publisher
	clock     Clock
	ids       IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Service. journal, publisher, clock and ids may be nil.
func New(
	fetcher Fetcher,
	archive Archive,
	journal Journal,
	publisher Publisher,
	clock Clock,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		fetcher:   fetcher,
		archive:   archive,
		journal:   journal,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Fetch returns the live content of rawURL or, when the live attempt fails,
// the archived copy. The only error is the original *FetchError, returned when
// the archive has nothing either.
func (s *Service) Fetch(ctx context.Context, rawURL string) (Outcome, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "webfetch.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url.full", rawURL))

	out, err := s.fetch(ctx, rawURL)
	span.SetAttributes(attribute.String("webfetch.state", string(out.State)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (s *Service) fetch(ctx context.Context, rawURL string) (Outcome, error) {
	start := time.Now()
	candidates := archive.DeriveCandidates(rawURL)

	s.transition(rawURL, StateInit, StateFetching)
	resp, err := s.fetcher.Fetch(ctx, rawURL)
	if err == nil && !successful(resp.StatusCode) {
		err = &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	if err != nil {
		s.transition(rawURL, StateFetching, StateFallbackLookup)
		return s.fallback(ctx, rawURL, candidates, asFetchError(rawURL, err), start)
	}

	s.transition(rawURL, StateFetching, StateExtracting)
	text, links := extract.Extract(decodeBody(resp.Body, resp.Charset), mediaType(resp), rawURL)
	payload := archive.Payload{URL: rawURL, Text: text, Links: links}

	s.transition(rawURL, StateExtracting, StateCaching)
	out := Outcome{
		Result:     FetchResult{URL: rawURL, Text: text, Links: links, Source: SourceLive},
		State:      StateDoneLive,
		Candidates: candidates,
	}
	if werr := s.archive.Write(ctx, candidates, payload); werr != nil {
		out.ArchiveWriteErr = werr
		metrics.ObserveArchiveWrite(false)
		s.logger.Warn("archive write-through failed", zap.String("url", rawURL), zap.Error(werr))
		logging.Interaction(s.logger, ActionArchiveWriteFail,
			map[string]any{"url": rawURL},
			map[string]any{"error": werr.Error(), "candidates": candidates},
		)
		s.record(ctx, JournalEntry{Action: ActionArchiveWriteFail, URL: rawURL, Source: string(SourceLive), Error: werr.Error()})
	} else {
		metrics.ObserveArchiveWrite(true)
		s.publish(ctx, rawURL, candidates, links)
	}

	s.transition(rawURL, StateCaching, StateDoneLive)
	logging.Interaction(s.logger, ActionFetch, map[string]any{"url": rawURL}, payload)
	s.record(ctx, JournalEntry{Action: ActionFetch, URL: rawURL, Source: string(SourceLive), StatusCode: resp.StatusCode})
	metrics.ObserveFetch(rawURL, string(SourceLive), len(resp.Body), time.Since(start))
	return out, nil
}

func (s *Service) fallback(
	ctx context.Context,
	rawURL string,
	candidates []string,
	fetchErr *FetchError,
	start time.Time,
) (Outcome, error) {
	detail := map[string]any{"error": fetchErr.Error()}
	if fetchErr.StatusCode != 0 {
		detail["status"] = fetchErr.StatusCode
	}

	payload, matched, err := s.archive.Read(ctx, candidates)
	if err != nil {
		s.transition(rawURL, StateFallbackLookup, StateFailed)
		if !errors.Is(err, archive.ErrArchiveMiss) {
			s.logger.Warn("archive lookup failed", zap.String("url", rawURL), zap.Error(err))
		}
		logging.Interaction(s.logger, ActionFetchError, map[string]any{"url": rawURL}, detail)
		s.record(ctx, JournalEntry{
			Action:     ActionFetchError,
			URL:        rawURL,
			StatusCode: fetchErr.StatusCode,
			Error:      fetchErr.Error(),
		})
		metrics.ObserveFetch(rawURL, "failed", 0, time.Since(start))
		return Outcome{State: StateFailed, Candidates: candidates, FetchErr: fetchErr}, fetchErr
	}

	s.transition(rawURL, StateFallbackLookup, StateDoneArchive)
	action := ActionArchiveFallback
	if fetchErr.PermanentRedirect() {
		action = ActionArchiveRedirect
	}
	detail["archive_path"] = matched
	logging.Interaction(s.logger, action, map[string]any{"url": rawURL}, detail)
	s.record(ctx, JournalEntry{
		Action:     action,
		URL:        rawURL,
		Source:     string(SourceArchive),
		ArchiveKey: matched,
		StatusCode: fetchErr.StatusCode,
		Error:      fetchErr.Error(),
	})
	metrics.ObserveFetch(rawURL, string(SourceArchive), 0, time.Since(start))

	links := payload.Links
	if links == nil {
		links = []string{}
	}
	return Outcome{
		Result:           FetchResult{URL: rawURL, Text: payload.Text, Links: links, Source: SourceArchive},
		State:            StateDoneArchive,
		Candidates:       candidates,
		MatchedCandidate: matched,
		FetchErr:         fetchErr,
	}, nil
}

func (s *Service) publish(ctx context.Context, rawURL string, candidates, links []string) {
	if s.cfg.Topic == "" || s.publisher == nil {
		return
	}
	payload := map[string]any{
		"url":        rawURL,
		"candidates": candidates,
		"links":      links,
		"source":     string(SourceLive),
		"timestamp":  s.now().Format(time.RFC3339),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, payload); err != nil {
		s.logger.Warn("archive notification failed", zap.String("url", rawURL), zap.Error(err))
	}
}

// record writes entry to the journal. Journal failures never affect the fetch.
func (s *Service) record(ctx context.Context, entry JournalEntry) {
	if s.journal == nil {
		return
	}
	if s.ids != nil {
		id, err := s.ids.NewID()
		if err != nil {
			s.logger.Warn("journal id generation failed", zap.Error(err))
			return
		}
		entry.ID = id
	}
	entry.RecordedAt = s.now()
	if err := s.journal.Record(ctx, entry); err != nil {
		s.logger.Warn("journal record failed",
			zap.String("url", entry.URL),
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func (s *Service) transition(rawURL string, from, to State) {
	s.logger.Debug("fetch state",
		zap.String("url", rawURL),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

// successful treats an unreported status (zero) as success.
func successful(code int) bool {
	return code == 0 || (code >= http.StatusOK && code < http.StatusMultipleChoices)
}

// mediaType treats a response without a declared type as plain text.
func mediaType(resp Response) string {
	if strings.TrimSpace(resp.ContentType) == "" {
		return "text/plain"
	}
	return resp.ContentType
}

func asFetchError(rawURL string, err error) *FetchError {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr
	}
	return &FetchError{URL: rawURL, Err: err}
}
