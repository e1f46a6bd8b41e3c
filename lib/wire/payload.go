// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Dispatch event type tags. Any other tag is forwarded to the
// dispatcher untouched and filed only if a logging flag claims it.
const (
	EventReady            = "READY"
	EventResumed          = "RESUMED"
	EventChannelCreate    = "CHANNEL_CREATE"
	EventMessageCreate    = "MESSAGE_CREATE"
	EventMessageUpdate    = "MESSAGE_UPDATE"
	EventMessageDelete    = "MESSAGE_DELETE"
	EventMessageAck       = "MESSAGE_ACK"
	EventTypingStart      = "TYPING_START"
	EventPresenceUpdate   = "PRESENCE_UPDATE"
	EventVoiceStateUpdate = "VOICE_STATE_UPDATE"
)

// DefaultIntents is the event-subscription bitmask sent with Identify:
// every intent bit the protocol version defines.
const DefaultIntents = 32767

// HelloData is the payload of an OpHello frame.
type HelloData struct {
	// HeartbeatInterval is the heartbeat period in milliseconds.
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// IdentifyData is the payload of an OpIdentify frame.
type IdentifyData struct {
	Token      string         `json:"token"`
	Intents    int            `json:"intents"`
	Properties map[string]any `json:"properties"`
}

// ResumeData is the payload of an OpResume frame.
type ResumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// User identifies an account on the remote service.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

// Channel is the slice of channel metadata the archiver cares about:
// identity, kind, and owning guild.
type Channel struct {
	ID      string `json:"id"`
	Type    int    `json:"type"`
	GuildID string `json:"guild_id,omitempty"`
}

// Guild carries the per-guild channel list from the initial sync.
type Guild struct {
	ID       string    `json:"id"`
	Channels []Channel `json:"channels"`
}

// ReadyData is the payload of the READY dispatch event (first sync).
type ReadyData struct {
	User            User      `json:"user"`
	SessionID       string    `json:"session_id"`
	PrivateChannels []Channel `json:"private_channels"`
	Guilds          []Guild   `json:"guilds"`
}

// Attachment is a binary upload referenced by a message.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Message is the subset of a message payload the dispatcher and the
// command layer read. The full payload is archived verbatim; this type
// only drives routing decisions.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	GuildID     string       `json:"guild_id,omitempty"`
	Author      User         `json:"author"`
	Content     string       `json:"content"`
	Type        int          `json:"type"`
	Attachments []Attachment `json:"attachments"`
}

// MessageTypeDefault is the plain user message type. Purge only ever
// deletes messages of this type.
const MessageTypeDefault = 0

// EventScope is the minimal decode of any channel-scoped event: just
// enough to file it under the right directory.
type EventScope struct {
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
}

// PresenceUpdate is the minimal decode of a PRESENCE_UPDATE event.
type PresenceUpdate struct {
	User User `json:"user"`
}
