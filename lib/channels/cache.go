// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package channels

import (
	"fmt"
	"sync"

	"github.com/chatvault/chatvault/lib/wire"
)

// Kind classifies a channel. The values are wire constants from the
// channel `type` field.
type Kind int

const (
	// KindGuildText is a text channel inside a guild.
	KindGuildText Kind = 0
	// KindDirect is a one-to-one direct channel.
	KindDirect Kind = 1
	// KindGuildVoice is a voice channel inside a guild.
	KindGuildVoice Kind = 2
	// KindGroup is a multi-party direct channel.
	KindGroup Kind = 3
	// KindGuildCategory is a grouping container for guild channels.
	KindGuildCategory Kind = 4
	// KindGuildNews is an announcement channel inside a guild.
	KindGuildNews Kind = 5
	// KindGuildStore is a storefront channel inside a guild.
	KindGuildStore Kind = 6
)

// String returns the kind's name for logs.
func (k Kind) String() string {
	switch k {
	case KindGuildText:
		return "guild-text"
	case KindDirect:
		return "direct"
	case KindGuildVoice:
		return "guild-voice"
	case KindGroup:
		return "group"
	case KindGuildCategory:
		return "guild-category"
	case KindGuildNews:
		return "guild-news"
	case KindGuildStore:
		return "guild-store"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// InGuild reports whether the kind lives inside a guild.
func (k Kind) InGuild() bool {
	switch k {
	case KindGuildText, KindGuildVoice, KindGuildCategory, KindGuildNews, KindGuildStore:
		return true
	default:
		return false
	}
}

// PathSegment returns the archive directory segment for a guild
// channel kind ("text", "voice", …). Only meaningful when InGuild()
// is true; other kinds have dedicated top-level directories chosen by
// the archive.
func (k Kind) PathSegment() string {
	switch k {
	case KindGuildText:
		return "text"
	case KindGuildVoice:
		return "voice"
	case KindGuildCategory:
		return "category"
	case KindGuildNews:
		return "news"
	case KindGuildStore:
		return "store"
	default:
		return "other"
	}
}

// Entry is the cached metadata for one channel.
type Entry struct {
	Kind Kind
	// GuildID is the owning guild, empty for direct and group
	// channels.
	GuildID string
}

// Cache maps channel id to metadata for one account session. Entries
// are append-only; a second insert for the same id overwrites, which
// is harmless because kind and guild never change for a live channel.
//
// Cache is safe for concurrent use: the connection loop inserts while
// the command layer may look up.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Seed populates the cache from the first-sync payload: all direct and
// group channels plus every guild's channel list, flattened into one
// map. Called exactly once per fresh session.
func (c *Cache) Seed(direct []wire.Channel, guilds []wire.Guild) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, channel := range direct {
		c.insertLocked(channel, "")
	}
	for _, guild := range guilds {
		for _, channel := range guild.Channels {
			c.insertLocked(channel, guild.ID)
		}
	}
}

// Insert records a channel observed after the initial sync (a
// channel-creation event).
func (c *Cache) Insert(channel wire.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(channel, channel.GuildID)
}

// insertLocked stores one entry. A guild id on the channel itself wins
// over the ambient one from the sync payload.
func (c *Cache) insertLocked(channel wire.Channel, guildID string) {
	if channel.GuildID != "" {
		guildID = channel.GuildID
	}
	c.entries[channel.ID] = Entry{
		Kind:    Kind(channel.Type),
		GuildID: guildID,
	}
}

// Lookup returns the metadata for a channel id. A miss means the
// caller raced ahead of the sync; the action in question should be
// silently skipped, not escalated.
func (c *Cache) Lookup(channelID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[channelID]
	return entry, ok
}

// Len returns the number of cached channels.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
