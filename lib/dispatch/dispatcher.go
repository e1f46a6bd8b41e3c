// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chatvault/chatvault/lib/archive"
	"github.com/chatvault/chatvault/lib/blobstore"
	"github.com/chatvault/chatvault/lib/channels"
	"github.com/chatvault/chatvault/lib/codec"
	"github.com/chatvault/chatvault/lib/config"
	"github.com/chatvault/chatvault/lib/wire"
)

// CommandRunner executes the self-message command layer. The command
// package provides the real implementation.
type CommandRunner interface {
	Handle(ctx context.Context, self wire.User, message wire.Message)
}

// Config holds configuration for creating a Dispatcher.
type Config struct {
	// Logging selects which event categories are archived.
	Logging config.Logging
	// Channels is the session's channel metadata cache.
	Channels *channels.Cache
	// Sink is the account's archive.
	Sink *archive.Sink
	// Store is the account's attachment store. Required when any
	// attachment flag is set.
	Store *blobstore.Store
	// Commands runs prefix commands on self-authored messages. Nil
	// disables the command layer.
	Commands CommandRunner
	// CommandPrefix is the trigger prefix for Commands.
	CommandPrefix string
	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Dispatcher implements gateway.EventHandler for one account.
// HandleReady and HandleEvent are called from the connection's run
// loop; slow work (downloads, command REST calls) moves to its own
// goroutine so heartbeats never wait on it.
type Dispatcher struct {
	logging  config.Logging
	channels *channels.Cache
	sink     *archive.Sink
	store    *blobstore.Store
	commands CommandRunner
	prefix   string
	logger   *slog.Logger

	// self is written by HandleReady and read by HandleEvent, both on
	// the connection goroutine.
	self wire.User

	background sync.WaitGroup
}

// New creates a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Channels == nil {
		return nil, fmt.Errorf("dispatch: Channels is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("dispatch: Sink is required")
	}
	if cfg.Logging.Attachments.Any() && cfg.Store == nil {
		return nil, fmt.Errorf("dispatch: Store is required when attachment flags are set")
	}
	if cfg.Commands != nil && cfg.CommandPrefix == "" {
		return nil, fmt.Errorf("dispatch: CommandPrefix is required when Commands is set")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		logging:  cfg.Logging,
		channels: cfg.Channels,
		sink:     cfg.Sink,
		store:    cfg.Store,
		commands: cfg.Commands,
		prefix:   cfg.CommandPrefix,
		logger:   logger,
	}, nil
}

// HandleReady records the confirmed account identity.
func (d *Dispatcher) HandleReady(user wire.User) {
	d.self = user
}

// HandleEvent routes one dispatch event.
func (d *Dispatcher) HandleEvent(ctx context.Context, eventType string, data codec.RawMessage) {
	switch eventType {
	case wire.EventPresenceUpdate:
		if d.logging.Presences {
			d.filePresence(eventType, data)
		}

	case wire.EventMessageCreate:
		if d.logging.Messages {
			d.fileChannelEvent(eventType, data)
		}
		d.maybeRunCommand(ctx, data)

	case wire.EventMessageUpdate, wire.EventMessageDelete, wire.EventMessageAck:
		if d.logging.Messages {
			d.fileChannelEvent(eventType, data)
		}

	case wire.EventTypingStart:
		if d.logging.Typing {
			d.fileChannelEvent(eventType, data)
		}

	case wire.EventVoiceStateUpdate:
		if d.logging.Voice {
			d.fileChannelEvent(eventType, data)
		}

	default:
		d.logger.Debug("ignoring event", "type", eventType)
	}

	// Any event can carry attachments, not just message creation — an
	// edit that adds an upload arrives as MESSAGE_UPDATE.
	d.handleAttachments(ctx, data)
}

// Wait blocks until all background work (downloads, commands) has
// finished. Called during shutdown and by tests.
func (d *Dispatcher) Wait() { d.background.Wait() }

func (d *Dispatcher) filePresence(eventType string, data codec.RawMessage) {
	var presence wire.PresenceUpdate
	if err := codec.Unmarshal(data, &presence); err != nil {
		d.logger.Error("undecodable presence event", "error", err)
		return
	}
	if presence.User.ID == "" {
		return
	}

	record, err := codec.ToJSON(data)
	if err != nil {
		d.logger.Error("presence event not convertible to JSON", "error", err)
		return
	}
	if err := d.sink.AppendPresence(presence.User.ID, record); err != nil {
		d.logger.Error("archiving presence failed", "user", presence.User.ID, "error", err)
	}
}

// fileChannelEvent appends a channel-scoped event to its channel's
// event log. Events without a channel id, or for channels the cache
// has not seen, are skipped.
func (d *Dispatcher) fileChannelEvent(eventType string, data codec.RawMessage) {
	var scope wire.EventScope
	if err := codec.Unmarshal(data, &scope); err != nil {
		d.logger.Error("undecodable channel event", "type", eventType, "error", err)
		return
	}
	if scope.ChannelID == "" {
		return
	}
	entry, ok := d.channels.Lookup(scope.ChannelID)
	if !ok {
		d.logger.Debug("event for unknown channel", "type", eventType, "channel", scope.ChannelID)
		return
	}

	record, err := codec.ToJSON(data)
	if err != nil {
		d.logger.Error("event not convertible to JSON", "type", eventType, "error", err)
		return
	}
	if err := d.sink.AppendEvent(entry, scope.ChannelID, eventType, record); err != nil {
		d.logger.Error("archiving event failed", "type", eventType, "channel", scope.ChannelID, "error", err)
	}
}

// handleAttachments stores the attachments of any event that carries
// some, if the channel's kind is flagged for attachment storage.
func (d *Dispatcher) handleAttachments(ctx context.Context, data codec.RawMessage) {
	if d.store == nil {
		return
	}
	var message wire.Message
	if err := codec.Unmarshal(data, &message); err != nil {
		return
	}
	if message.ChannelID == "" || len(message.Attachments) == 0 {
		return
	}
	entry, ok := d.channels.Lookup(message.ChannelID)
	if !ok || !d.logging.Attachments.Wanted(entry.Kind) {
		return
	}

	d.background.Add(1)
	go func() {
		defer d.background.Done()
		for _, attachment := range message.Attachments {
			outcome, err := d.store.Store(ctx, attachment.ID, attachment.URL, attachment.Filename)
			if err != nil {
				d.logger.Error("storing attachment failed",
					"attachment", attachment.ID,
					"channel", message.ChannelID,
					"error", err,
				)
				continue
			}
			d.logger.Debug("attachment handled", "attachment", attachment.ID, "outcome", outcome)
		}
	}()
}

// maybeRunCommand hands a self-authored prefixed message to the
// command layer.
func (d *Dispatcher) maybeRunCommand(ctx context.Context, data codec.RawMessage) {
	if d.commands == nil {
		return
	}
	var message wire.Message
	if err := codec.Unmarshal(data, &message); err != nil {
		d.logger.Error("undecodable message event", "error", err)
		return
	}
	if message.Author.ID != d.self.ID || d.self.ID == "" ||
		!strings.HasPrefix(message.Content, d.prefix) {
		return
	}

	self := d.self
	d.background.Add(1)
	go func() {
		defer d.background.Done()
		d.commands.Handle(ctx, self, message)
	}()
}
