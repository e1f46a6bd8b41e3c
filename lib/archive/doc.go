// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive writes observed events to a human-browsable
// per-account directory tree.
//
// Direct channels file under dms/<channel>, multi-party direct
// channels under groups/<channel>, and guild channels under
// guilds/<guild>/<kind>/<channel>. Each channel directory holds an
// append-only events.log with one JSON record per line, an
// attachments/ blob directory, and exports/ for full-history dumps.
// Presence updates file per user under presences/.
package archive
