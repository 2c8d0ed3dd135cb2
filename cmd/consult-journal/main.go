// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/consult/journal"
	"github.com/bureau-foundation/consult/lib/codec"
	"github.com/bureau-foundation/consult/lib/process"
	"github.com/bureau-foundation/consult/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

const (
	formatTable = "table"
	formatJSON  = "json"
	formatDiag  = "diag"
)

func run(args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("consult-journal", pflag.ContinueOnError)
	identityPaths := flagSet.StringArray("identity", nil, "age identity file for encrypted journals (repeatable)")
	format := flagSet.String("format", formatTable, "output format: table, json or diag")
	showVersion := flagSet.Bool("version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.ExitError(2, err)
	}
	if *showVersion {
		fmt.Fprintf(stdout, "consult-journal %s\n", version.Full())
		return nil
	}
	switch *format {
	case formatTable, formatJSON, formatDiag:
	default:
		return process.ExitError(2, fmt.Errorf("unknown format %q (want table, json or diag)", *format))
	}
	if flagSet.NArg() == 0 {
		return process.ExitError(2, errors.New("no journal files given"))
	}

	identities, err := loadIdentities(*identityPaths)
	if err != nil {
		return err
	}

	var failures []error
	for _, path := range flagSet.Args() {
		if err := dumpFile(stdout, path, *format, identities); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(failures...)
}

func loadIdentities(paths []string) ([]age.Identity, error) {
	var identities []age.Identity
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening identity file: %w", err)
		}
		parsed, err := age.ParseIdentities(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
		}
		identities = append(identities, parsed...)
	}
	return identities, nil
}

// dumpFile prints every readable record of one journal. Records before
// a damaged or truncated frame are still printed.
func dumpFile(stdout io.Writer, path, format string, identities []age.Identity) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, err := journal.NewReader(file, identities...)
	if errors.Is(err, journal.ErrNoIdentity) {
		return fmt.Errorf("%w (pass --identity)", err)
	}
	if err != nil {
		return err
	}

	var printer recordPrinter
	switch format {
	case formatJSON:
		printer = &jsonPrinter{encoder: json.NewEncoder(stdout)}
	case formatDiag:
		printer = &diagPrinter{out: stdout}
	default:
		printer = newTablePrinter(stdout, path)
	}

	var readErr error
	for {
		raw, err := reader.NextRaw()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		if err := printer.print(raw); err != nil {
			readErr = err
			break
		}
	}
	return errors.Join(readErr, printer.flush())
}

type recordPrinter interface {
	print(raw []byte) error
	flush() error
}

type diagPrinter struct {
	out io.Writer
}

func (p *diagPrinter) print(raw []byte) error {
	diagnostic, err := codec.Diagnose(raw)
	if err != nil {
		return fmt.Errorf("diagnosing record: %w", err)
	}
	_, err = fmt.Fprintln(p.out, diagnostic)
	return err
}

func (p *diagPrinter) flush() error { return nil }

// jsonPrinter decodes generically so fields a newer server adds still
// show up.
type jsonPrinter struct {
	encoder *json.Encoder
}

func (p *jsonPrinter) print(raw []byte) error {
	var fields map[string]any
	if err := codec.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	return p.encoder.Encode(fields)
}

func (p *jsonPrinter) flush() error { return nil }

type tablePrinter struct {
	out    io.Writer
	path   string
	writer *tabwriter.Writer

	records int
	ended   int
	billed  time.Duration
}

func newTablePrinter(out io.Writer, path string) *tablePrinter {
	writer := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "KIND\tSESSION\tREQUESTER\tRESPONDER\tSTARTED\tDURATION\tREASON\n")
	return &tablePrinter{out: out, path: path, writer: writer}
}

func (p *tablePrinter) print(raw []byte) error {
	var record journal.Record
	if err := codec.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	p.records++

	duration := "-"
	if record.Kind == journal.KindEnded {
		p.ended++
		p.billed += record.Duration
		duration = record.Duration.Round(time.Second).String()
	}
	reason := record.Reason
	if reason == "" {
		reason = "-"
	}
	fmt.Fprintf(p.writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		record.Kind,
		record.SessionID,
		record.RequesterID,
		record.ResponderID,
		record.StartedAt.UTC().Format(time.RFC3339),
		duration,
		reason,
	)
	return nil
}

func (p *tablePrinter) flush() error {
	if err := p.writer.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.out, "%s: %d records, %d sessions ended, %s billed\n",
		p.path, p.records, p.ended, p.billed.Round(time.Second))
	return err
}
