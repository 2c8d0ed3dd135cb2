// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/logging"
	"github.com/bureau-foundation/consult/lib/process"
	"github.com/bureau-foundation/consult/lib/protocol"
	"github.com/bureau-foundation/consult/lib/version"
	"github.com/bureau-foundation/consult/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	server   string
	userID   string
	role     protocol.Role
	reason   string
	icePath  string
	logFile  string
	logLevel string
}

func parseOptions(args []string) (*options, bool, error) {
	var (
		opts        options
		role        string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("consult-client", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", "ws://localhost:8080/ws", "switchboard WebSocket URL")
	flagSet.StringVar(&opts.userID, "user", "", "participant id (required)")
	flagSet.StringVar(&role, "role", string(protocol.RoleRequester), "requester or responder")
	flagSet.StringVar(&opts.reason, "reason", "", "reason for the visit, shown to responders (requesters only)")
	flagSet.StringVar(&opts.icePath, "ice", "", "JSONC file listing STUN/TURN servers")
	flagSet.StringVar(&opts.logFile, "log-file", "", "append JSON logs to this file")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, process.ExitError(2, err)
	}
	if showVersion {
		version.Print("consult-client")
		return nil, true, nil
	}
	if flagSet.NArg() > 0 {
		return nil, false, process.ExitError(2, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0)))
	}
	if opts.userID == "" {
		return nil, false, process.ExitError(2, errors.New("--user is required"))
	}
	opts.role = protocol.Role(role)
	if !opts.role.Valid() {
		return nil, false, process.ExitError(2, fmt.Errorf("--role must be %s or %s, got %q",
			protocol.RoleRequester, protocol.RoleResponder, role))
	}
	if opts.reason != "" && opts.role != protocol.RoleRequester {
		return nil, false, process.ExitError(2, errors.New("--reason applies to requesters only"))
	}
	return &opts, false, nil
}

// waitingContext is the requester's opaque waiting-room payload.
func (opts *options) waitingContext() json.RawMessage {
	if opts.reason == "" {
		return nil
	}
	data, _ := json.Marshal(struct {
		Reason string `json:"reason"`
	}{opts.reason})
	return data
}

func run(args []string) error {
	opts, done, err := parseOptions(args)
	if err != nil || done {
		return err
	}

	logger, closeLog, err := openLog(opts.logFile, opts.logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	ice, err := transport.LoadICEConfig(opts.icePath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	signaler, err := transport.DialSignaler(ctx, transport.SignalerConfig{
		URL:    opts.server,
		Logger: logger.With("component", "signaler"),
	})
	if err != nil {
		return err
	}

	var program *tea.Program
	consultClient := newClient(signaler, clientConfig{
		UserID:  opts.userID,
		Role:    opts.role,
		Context: opts.waitingContext(),
		ICE:     ice,
		Clock:   clock.Real(),
		Logger:  logger,
		Deliver: func(message tea.Msg) { program.Send(message) },
	})
	program = tea.NewProgram(NewModel(consultClient, opts.userID, opts.role), tea.WithAltScreen())

	if err := consultClient.Start(); err != nil {
		consultClient.Close()
		return err
	}
	_, runErr := program.Run()
	closeErr := consultClient.Close()
	return errors.Join(runErr, closeErr)
}

// openLog returns a JSON logger appending to path, or a discarding
// logger when path is empty.
func openLog(path, levelName string) (*slog.Logger, func(), error) {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, nil, process.ExitError(2, err)
	}
	if path == "" {
		return logging.Discard(), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return logging.NewWriter(file, level, false), func() { file.Close() }, nil
}
