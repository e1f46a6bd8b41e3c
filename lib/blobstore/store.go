// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// ledgerName is the identifier ledger file inside the store directory.
// The leading dot keeps it out of the way when browsing blobs.
const ledgerName = ".ids"

// Outcome reports what Store did with an attachment.
type Outcome int

const (
	// OutcomeStored means the bytes were downloaded and written as a
	// new blob.
	OutcomeStored Outcome = iota
	// OutcomeDedupedByID means the attachment id was already in the
	// ledger; nothing was downloaded.
	OutcomeDedupedByID
	// OutcomeDedupedByHash means the bytes were downloaded but a blob
	// with the same content hash already exists; nothing was written.
	OutcomeDedupedByHash
)

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeDedupedByID:
		return "deduped-by-id"
	case OutcomeDedupedByHash:
		return "deduped-by-hash"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Fetcher downloads attachment bytes. The resilient REST client
// satisfies this; tests supply an in-memory implementation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Store is one account's attachment store. All operations serialize
// under the store mutex.
type Store struct {
	mu      sync.Mutex
	dir     string
	ledger  string
	fetcher Fetcher
	logger  *slog.Logger

	// ids mirrors the ledger file. Loaded once at open; every append
	// updates both.
	ids map[string]bool
}

// Open creates or reopens the attachment store rooted at dir, loading
// the existing identifier ledger.
func Open(dir string, fetcher Fetcher, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("blobstore: creating %s: %w", dir, err)
	}

	store := &Store{
		dir:     dir,
		ledger:  filepath.Join(dir, ledgerName),
		fetcher: fetcher,
		logger:  logger,
		ids:     make(map[string]bool),
	}

	data, err := os.ReadFile(store.ledger)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("blobstore: reading ledger: %w", err)
		}
	} else {
		for _, id := range strings.Split(string(data), "\n") {
			if id != "" {
				store.ids[id] = true
			}
		}
	}

	return store, nil
}

// Store downloads and persists one attachment, deduplicating first by
// id, then by content hash.
//
// The id is appended to the ledger before the download: a later retry
// of a failed download is deliberately not attempted, matching the
// append-only ledger semantics.
func (s *Store) Store(ctx context.Context, id, url, filename string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[id] {
		s.logger.Debug("attachment found by id", "attachment", id)
		return OutcomeDedupedByID, nil
	}

	if err := s.appendLedger(id); err != nil {
		return 0, err
	}

	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("blobstore: downloading attachment %s: %w", id, err)
	}

	digest := contentHash(data)

	existing, err := s.findByHash(digest)
	if err != nil {
		return 0, err
	}
	if existing != "" {
		s.logger.Debug("attachment found by digest", "attachment", id, "digest", digest)
		return OutcomeDedupedByHash, nil
	}

	path := filepath.Join(s.dir, digest+extension(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("blobstore: writing blob for attachment %s: %w", id, err)
	}

	s.logger.Info("saved attachment", "attachment", id, "digest", digest, "bytes", len(data))
	return OutcomeStored, nil
}

// Seen reports whether an attachment id is already in the ledger.
func (s *Store) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id]
}

// appendLedger records an id in memory and on disk. Must be called
// with s.mu held.
func (s *Store) appendLedger(id string) error {
	file, err := os.OpenFile(s.ledger, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("blobstore: opening ledger: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("blobstore: appending to ledger: %w", err)
	}
	s.ids[id] = true
	return nil
}

// findByHash scans the store directory for a blob whose name begins
// with the digest. Returns the file name, or empty when absent.
func (s *Store) findByHash(digest string) (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("blobstore: scanning store directory: %w", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), digest) {
			return entry.Name(), nil
		}
	}
	return "", nil
}

// contentHash returns the hex-encoded BLAKE3 digest of the blob.
func contentHash(data []byte) string {
	hasher := blake3.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// extension extracts the original file extension, dot included, or
// returns an empty string when the filename has none. Stored blob
// names are <digest><ext> so browsers and viewers can identify the
// content without a database.
func extension(filename string) string {
	return filepath.Ext(filename)
}
