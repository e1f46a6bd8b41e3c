// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chatvault/chatvault/lib/channels"
)

// Config is the master configuration for the chatvault daemon.
type Config struct {
	// DataDir is the root directory for all archived output. Each
	// account writes under DataDir/<account id>/.
	DataDir string `yaml:"data_dir"`

	// GatewayURL is the websocket endpoint, already parameterized with
	// protocol version, term encoding, and streaming compression.
	GatewayURL string `yaml:"gateway_url"`

	// APIURL is the base URL for REST calls (message listing, deletion,
	// posting).
	APIURL string `yaml:"api_url"`

	// Debug enables debug-level logging (per-frame rx/tx lines).
	Debug bool `yaml:"debug"`

	// Accounts lists the accounts to connect. Each runs in its own
	// isolated processing unit.
	Accounts []Account `yaml:"accounts"`
}

// Account configures one gateway session.
type Account struct {
	// ID names the account's directory under the data root. It is an
	// operator-chosen label, not a protocol identity.
	ID string `yaml:"id"`

	// Token is the account credential, sent with Identify/Resume and
	// attached to every REST call.
	Token string `yaml:"token"`

	// Logging selects which observed events are archived.
	Logging Logging `yaml:"logging"`

	// Commands configures the self-message command layer.
	Commands Commands `yaml:"commands"`
}

// Logging selects event categories to archive for one account.
type Logging struct {
	Presences   bool            `yaml:"presences"`
	Messages    bool            `yaml:"messages"`
	Typing      bool            `yaml:"typing"`
	Voice       bool            `yaml:"voice"`
	Attachments AttachmentFlags `yaml:"attachments"`
}

// AttachmentFlags enables attachment storage per channel kind.
type AttachmentFlags struct {
	DM    bool `yaml:"dm"`
	Group bool `yaml:"group"`
	Guild bool `yaml:"guild"`
}

// Any reports whether any attachment category is enabled.
func (f AttachmentFlags) Any() bool {
	return f.DM || f.Group || f.Guild
}

// Wanted maps a channel kind to its attachment flag. Kinds without a
// flag (voice, category, news, store) never store attachments.
func (f AttachmentFlags) Wanted(kind channels.Kind) bool {
	switch kind {
	case channels.KindDirect:
		return f.DM
	case channels.KindGroup:
		return f.Group
	case channels.KindGuildText:
		return f.Guild
	default:
		return false
	}
}

// Commands configures the prefix command layer for one account.
type Commands struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// Default returns the default configuration. These defaults are a base
// before loading the config file, not a substitute for it — accounts
// can only come from the file.
func Default() *Config {
	return &Config{
		DataDir:    "data",
		GatewayURL: "wss://gateway.example.net/?v=8&encoding=cbor&compress=zlib-stream",
		APIURL:     "https://api.example.net/v8",
	}
}

// Load loads configuration from the CHATVAULT_CONFIG environment
// variable. There are no fallbacks: if the variable is not set, this
// fails.
func Load() (*Config, error) {
	path := os.Getenv("CHATVAULT_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("CHATVAULT_CONFIG environment variable not set; " +
			"set it to the path of your chatvault.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth — environment variables do not
// override values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir is required"))
	}
	if c.GatewayURL == "" {
		errs = append(errs, fmt.Errorf("gateway_url is required"))
	}
	if c.APIURL == "" {
		errs = append(errs, fmt.Errorf("api_url is required"))
	}
	if len(c.Accounts) == 0 {
		errs = append(errs, fmt.Errorf("at least one account is required"))
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, account := range c.Accounts {
		if account.ID == "" {
			errs = append(errs, fmt.Errorf("accounts[%d]: id is required", i))
		} else if seen[account.ID] {
			errs = append(errs, fmt.Errorf("accounts[%d]: duplicate id %q", i, account.ID))
		}
		seen[account.ID] = true

		if account.Token == "" {
			errs = append(errs, fmt.Errorf("accounts[%d]: token is required", i))
		}
		if account.Commands.Enabled && account.Commands.Prefix == "" {
			errs = append(errs, fmt.Errorf("accounts[%d]: commands.prefix is required when commands are enabled", i))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
