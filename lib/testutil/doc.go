// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small helpers shared by tests: channel
// receive/send assertions with timeout safety valves, so individual
// tests never hang forever on a channel that a bug left unserviced.
package testutil
