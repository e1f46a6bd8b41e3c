// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chatvault/chatvault/lib/archive"
	"github.com/chatvault/chatvault/lib/blobstore"
	"github.com/chatvault/chatvault/lib/channels"
	"github.com/chatvault/chatvault/lib/config"
	"github.com/chatvault/chatvault/lib/wire"
)

// API is the slice of the REST surface commands need. The restapi
// client satisfies this.
type API interface {
	Messages(ctx context.Context, channelID string, limit int) ([]json.RawMessage, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendMessage(ctx context.Context, channelID, content string) error
}

// Config holds configuration for creating a Runner.
type Config struct {
	// Prefix is the command trigger prefix, e.g. "~".
	Prefix string
	// API performs the REST calls.
	API API
	// Channels classifies channels for export filing.
	Channels *channels.Cache
	// Sink receives export files.
	Sink *archive.Sink
	// Store is the account's attachment store, shared with the
	// dispatcher.
	Store *blobstore.Store
	// Attachments gates export attachment storage per channel kind,
	// same flags the dispatcher applies to live events.
	Attachments config.AttachmentFlags
	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Runner parses and executes one account's commands.
type Runner struct {
	prefix      string
	api         API
	channels    *channels.Cache
	sink        *archive.Sink
	store       *blobstore.Store
	attachments config.AttachmentFlags
	logger      *slog.Logger
}

// NewRunner creates a command runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("command: Prefix is required")
	}
	if cfg.API == nil {
		return nil, fmt.Errorf("command: API is required")
	}
	if cfg.Channels == nil {
		return nil, fmt.Errorf("command: Channels is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("command: Sink is required")
	}
	if cfg.Attachments.Any() && cfg.Store == nil {
		return nil, fmt.Errorf("command: Store is required when attachment flags are set")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		prefix:      cfg.Prefix,
		api:         cfg.API,
		channels:    cfg.Channels,
		sink:        cfg.Sink,
		store:       cfg.Store,
		attachments: cfg.Attachments,
		logger:      logger,
	}, nil
}

// Handle runs the command carried by a self-authored message. Messages
// without the prefix are ignored; the dispatcher already filtered on
// author.
func (r *Runner) Handle(ctx context.Context, self wire.User, message wire.Message) {
	if !strings.HasPrefix(message.Content, r.prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(message.Content, r.prefix))
	if len(fields) == 0 {
		return
	}

	// The trigger disappears from the channel before the command acts.
	if err := r.api.DeleteMessage(ctx, message.ChannelID, message.ID); err != nil {
		r.logger.Warn("deleting trigger message failed", "message", message.ID, "error", err)
	}

	switch fields[0] {
	case "p", "ping":
		if err := r.api.SendMessage(ctx, message.ChannelID, "pong"); err != nil {
			r.logger.Warn("ping reply failed", "channel", message.ChannelID, "error", err)
		}

	case "d", "delete":
		if len(fields) < 2 {
			return
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return
		}
		r.purge(ctx, self, message.ChannelID, n)

	case "c", "clear":
		r.purge(ctx, self, message.ChannelID, -1)

	case "e", "export":
		r.export(ctx, message.ChannelID)

	default:
		r.logger.Debug("unknown command", "command", fields[0])
	}
}

// purge fetches the channel's last limit messages (-1 for the whole
// history) and deletes the account's own plain messages among them.
// The limit bounds the window inspected, not the number deleted: own
// messages deeper in the history than the window stay.
func (r *Runner) purge(ctx context.Context, self wire.User, channelID string, limit int) {
	history, err := r.api.Messages(ctx, channelID, limit)
	if err != nil {
		// A partial listing still lets us purge what we saw.
		r.logger.Warn("listing messages for purge failed", "channel", channelID, "error", err)
	}

	deleted := 0
	for _, raw := range history {
		var message wire.Message
		if err := json.Unmarshal(raw, &message); err != nil {
			continue
		}
		if message.Author.ID != self.ID || message.Type != wire.MessageTypeDefault {
			continue
		}
		if err := r.api.DeleteMessage(ctx, channelID, message.ID); err != nil {
			r.logger.Warn("purging message failed", "message", message.ID, "error", err)
			continue
		}
		deleted++
	}
	r.logger.Info("purge finished", "channel", channelID, "deleted", deleted)
}

// export writes the channel's full history to a timestamped export
// file. Referenced attachments go to the account store when the
// channel's kind is flagged for attachment storage.
func (r *Runner) export(ctx context.Context, channelID string) {
	entry, ok := r.channels.Lookup(channelID)
	if !ok {
		r.logger.Warn("export of unknown channel skipped", "channel", channelID)
		return
	}

	history, err := r.api.Messages(ctx, channelID, -1)
	if err != nil {
		r.logger.Warn("listing messages for export failed", "channel", channelID, "error", err)
		if len(history) == 0 {
			return
		}
	}

	export, err := r.sink.CreateExport(entry, channelID)
	if err != nil {
		r.logger.Error("creating export failed", "channel", channelID, "error", err)
		return
	}

	saveAttachments := r.store != nil && r.attachments.Wanted(entry.Kind)

	for _, raw := range history {
		if err := export.WriteRecord(raw); err != nil {
			r.logger.Error("writing export record failed", "channel", channelID, "error", err)
			break
		}
		if !saveAttachments {
			continue
		}
		var message wire.Message
		if err := json.Unmarshal(raw, &message); err != nil {
			continue
		}
		for _, attachment := range message.Attachments {
			if _, err := r.store.Store(ctx, attachment.ID, attachment.URL, attachment.Filename); err != nil {
				r.logger.Warn("storing export attachment failed", "attachment", attachment.ID, "error", err)
			}
		}
	}

	if err := export.Close(); err != nil {
		r.logger.Error("closing export failed", "channel", channelID, "error", err)
		return
	}
	r.logger.Info("export finished", "channel", channelID, "messages", len(history), "file", export.Path())
}
