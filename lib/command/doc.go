// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package command implements the self-message command layer: short
// prefixed commands the account's owner types into any channel, acted
// on through the REST surface.
//
// The trigger message is deleted before the command runs, so commands
// never linger in the channel. Argument failures are silently ignored
// rather than reported — there is nobody to report them to but the
// channel itself.
package command
