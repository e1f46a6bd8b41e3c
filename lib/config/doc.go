// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the chatvault
// daemon.
//
// Configuration is loaded from a single YAML file specified by:
//   - CHATVAULT_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides:
// every account the daemon connects, and every logging decision it
// makes, traces back to one file.
package config
