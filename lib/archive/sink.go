// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chatvault/chatvault/lib/channels"
	"github.com/chatvault/chatvault/lib/clock"
)

const (
	eventLogName  = "events.log"
	presenceDir   = "presences"
	attachmentDir = "attachments"
	exportDir     = "exports"
)

// Sink files events under one account's archive root.
type Sink struct {
	root   string
	clock  clock.Clock
	logger *slog.Logger
}

// NewSink creates a sink rooted at dir. The directory is created on
// first write, not here.
func NewSink(dir string, clk clock.Clock, logger *slog.Logger) *Sink {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{root: dir, clock: clk, logger: logger}
}

// Root returns the account's archive root directory.
func (s *Sink) Root() string { return s.root }

// ChannelDir returns the archive directory for a channel, classified
// by its cached metadata.
func (s *Sink) ChannelDir(entry channels.Entry, channelID string) string {
	switch {
	case entry.Kind == channels.KindDirect:
		return filepath.Join(s.root, "dms", channelID)
	case entry.Kind == channels.KindGroup:
		return filepath.Join(s.root, "groups", channelID)
	default:
		return filepath.Join(s.root, "guilds", entry.GuildID, entry.Kind.PathSegment(), channelID)
	}
}

// AttachmentDir returns the account's attachment store directory. The
// store is account-wide: one ledger and one blob per content hash no
// matter how many channels reference an attachment.
func (s *Sink) AttachmentDir() string {
	return filepath.Join(s.root, attachmentDir)
}

// record is the on-disk shape of one archived event line.
type record struct {
	At   time.Time       `json:"at"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AppendEvent appends one event record to the channel's events.log.
// data must be valid JSON.
func (s *Sink) AppendEvent(entry channels.Entry, channelID, eventType string, data []byte) error {
	dir := s.ChannelDir(entry, channelID)
	if err := s.appendRecord(filepath.Join(dir, eventLogName), eventType, data); err != nil {
		return fmt.Errorf("archive: filing %s for channel %s: %w", eventType, channelID, err)
	}
	return nil
}

// AppendPresence appends one presence record to the user's log under
// presences/.
func (s *Sink) AppendPresence(userID string, data []byte) error {
	path := filepath.Join(s.root, presenceDir, userID+".log")
	if err := s.appendRecord(path, "PRESENCE_UPDATE", data); err != nil {
		return fmt.Errorf("archive: filing presence for user %s: %w", userID, err)
	}
	return nil
}

func (s *Sink) appendRecord(path, eventType string, data []byte) error {
	line, err := json.Marshal(record{
		At:   s.clock.Now().UTC(),
		Type: eventType,
		Data: data,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Export is an in-progress full-history dump of one channel.
type Export struct {
	file *os.File
	path string
}

// CreateExport opens a timestamped export file under the channel's
// exports/ directory.
func (s *Sink) CreateExport(entry channels.Entry, channelID string) (*Export, error) {
	dir := filepath.Join(s.ChannelDir(entry, channelID), exportDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: creating export directory: %w", err)
	}

	path := filepath.Join(dir, strconv.FormatInt(s.clock.Now().UnixMilli(), 10)+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("archive: creating export file: %w", err)
	}
	return &Export{file: file, path: path}, nil
}

// Path returns the export file's location.
func (e *Export) Path() string { return e.path }

// WriteRecord appends one JSON message record as a line.
func (e *Export) WriteRecord(data []byte) error {
	if _, err := e.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("archive: writing export record: %w", err)
	}
	return nil
}

// Close flushes and closes the export file.
func (e *Export) Close() error {
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("archive: closing export: %w", err)
	}
	return nil
}
