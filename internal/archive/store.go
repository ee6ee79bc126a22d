package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/webfetch-archive/internal/storage"
)

// ErrArchiveMiss is returned by Read when no candidate location holds a payload.
var ErrArchiveMiss = errors.New("archive miss")

const payloadContentType = "application/json; charset=utf-8"

// Store reads and writes archived payloads through a BlobStore. There is no
// locking: concurrent writers to the same location race and the last write
// wins per location.
type Store struct {
	blobs  storage.BlobStore
	logger *zap.Logger

	initOnce sync.Once
	initErr  error
}

// NewStore wraps blobs. Call Init before the first Read or Write.
func NewStore(blobs storage.BlobStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{blobs: blobs, logger: logger}
}

// Init prepares the backing store. Only the first call does any work; later
// calls return the first result.
func (s *Store) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		if err := s.blobs.Init(ctx); err != nil {
			s.initErr = fmt.Errorf("init archive storage: %w", err)
		}
	})
	return s.initErr
}

// Read returns the payload at the first candidate that exists, along with
// that candidate. Unreadable candidates are logged and skipped.
func (s *Store) Read(ctx context.Context, candidates []string) (Payload, string, error) {
	for _, candidate := range candidates {
		raw, err := s.blobs.GetObject(ctx, candidate)
		if err != nil {
			if !errors.Is(err, storage.ErrObjectNotFound) {
				s.logger.Warn("archive candidate unreadable",
					zap.String("candidate", candidate),
					zap.Error(err),
				)
			}
			continue
		}
		payload, envelope := Decode(raw)
		if !envelope {
			s.logger.Debug("legacy archive entry", zap.String("candidate", candidate))
		}
		return payload, candidate, nil
	}
	return Payload{}, "", ErrArchiveMiss
}

// Write stores the payload at every candidate. All candidates are attempted;
// the returned error joins every individual failure.
func (s *Store) Write(ctx context.Context, candidates []string, payload Payload) error {
	data, err := Encode(payload)
	if err != nil {
		return err
	}
	var errs []error
	for _, candidate := range candidates {
		if _, err := s.blobs.PutObject(ctx, candidate, payloadContentType, data); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", candidate, err))
		}
	}
	return errors.Join(errs...)
}
