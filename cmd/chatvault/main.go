// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

// Chatvault is a multi-account gateway event archiver. For each
// configured account it maintains one authenticated realtime gateway
// session, archives the selected event categories as JSON records
// under a per-channel directory tree, stores message attachments
// content-addressed, and runs the self-message command layer.
//
// Accounts are fully isolated: each runs on its own goroutine with its
// own session, REST client, archive root, and logger. A failing
// account is abandoned after five consecutive connection failures
// without affecting the others; the process exits only on SIGINT or
// SIGTERM.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/chatvault/chatvault/lib/archive"
	"github.com/chatvault/chatvault/lib/blobstore"
	"github.com/chatvault/chatvault/lib/clock"
	"github.com/chatvault/chatvault/lib/command"
	"github.com/chatvault/chatvault/lib/config"
	"github.com/chatvault/chatvault/lib/dispatch"
	"github.com/chatvault/chatvault/lib/gateway"
	"github.com/chatvault/chatvault/lib/restapi"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		debug       bool
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the chatvault.yaml config file (default: $CHATVAULT_CONFIG)")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging (per-frame rx/tx lines)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("chatvault %s\n", version)
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := slog.LevelInfo
	if debug || cfg.Debug {
		level = slog.LevelDebug
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var accounts sync.WaitGroup
	for _, account := range cfg.Accounts {
		runner, err := buildAccount(cfg, account, level)
		if err != nil {
			return fmt.Errorf("account %s: %w", account.ID, err)
		}
		accounts.Add(1)
		go func() {
			defer accounts.Done()
			runner(ctx)
		}()
	}

	accounts.Wait()
	return nil
}

// buildAccount wires one account's processing stack and returns the
// function that runs it.
func buildAccount(cfg *config.Config, account config.Account, level slog.Level) (func(context.Context), error) {
	accountDir := filepath.Join(cfg.DataDir, account.ID)
	if err := os.MkdirAll(accountDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating account directory: %w", err)
	}

	// Console plus a per-account latest.log, fresh each run.
	logFile, err := os.OpenFile(filepath.Join(accountDir, "latest.log"),
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening latest.log: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, logFile), &slog.HandlerOptions{
		Level: level,
	})).With("account", account.ID)

	rest, err := restapi.NewClient(restapi.ClientConfig{
		BaseURL: cfg.APIURL,
		Token:   account.Token,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	sink := archive.NewSink(accountDir, clock.Real(), logger)
	store, err := blobstore.Open(sink.AttachmentDir(), rest, logger)
	if err != nil {
		return nil, err
	}
	session := gateway.NewSession(account.Token)

	var commands dispatch.CommandRunner
	if account.Commands.Enabled {
		runner, err := command.NewRunner(command.Config{
			Prefix:      account.Commands.Prefix,
			API:         rest,
			Channels:    session.Channels(),
			Sink:        sink,
			Store:       store,
			Attachments: account.Logging.Attachments,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		commands = runner
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Logging:       account.Logging,
		Channels:      session.Channels(),
		Sink:          sink,
		Store:         store,
		Commands:      commands,
		CommandPrefix: account.Commands.Prefix,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	supervisor, err := gateway.NewSupervisor(gateway.SupervisorConfig{
		URL:     cfg.GatewayURL,
		Dialer:  gateway.NewWebsocketDialer(),
		Session: session,
		Handler: dispatcher,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) {
		defer logFile.Close()
		err := supervisor.Run(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("account abandoned", "error", err)
		}
		dispatcher.Wait()
	}, nil
}
