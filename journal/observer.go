// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/consult/switchboard"
)

const defaultObserverBuffer = 1024

var _ switchboard.SessionObserver = (*Observer)(nil)

// Appender is where an Observer writes records. *Writer implements it.
type Appender interface {
	Append(record Record) error
}

// ObserverConfig holds the parameters for NewObserver.
type ObserverConfig struct {
	Journal Appender
	Logger  *slog.Logger

	// Buffer is how many records may wait for the writer. When it is
	// full new records are dropped and logged rather than stalling the
	// switchboard loop. Default 1024.
	Buffer int

	// OnDrop, if set, is called for each dropped record.
	OnDrop func(record Record)
}

// Observer journals session starts and ends. The switchboard loop
// calls it; records are handed to a writer goroutine started by Run so
// disk I/O never runs on the loop.
type Observer struct {
	config  ObserverConfig
	logger  *slog.Logger
	records chan Record

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewObserver returns an Observer writing to config.Journal.
func NewObserver(config ObserverConfig) *Observer {
	if config.Journal == nil {
		panic("journal.Observer: Journal is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Buffer <= 0 {
		config.Buffer = defaultObserverBuffer
	}
	return &Observer{
		config:  config,
		logger:  config.Logger,
		records: make(chan Record, config.Buffer),
	}
}

// SessionStarted implements switchboard.SessionObserver.
func (o *Observer) SessionStarted(event switchboard.SessionEvent) {
	o.enqueue(startedRecord(event))
}

// SessionEnded implements switchboard.SessionObserver.
func (o *Observer) SessionEnded(event switchboard.SessionEvent) {
	o.enqueue(endedRecord(event))
}

func (o *Observer) enqueue(record Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.drop(record, "observer closed")
		return
	}
	select {
	case o.records <- record:
	default:
		o.drop(record, "journal backlog full")
	}
}

// drop must be called with o.mu held.
func (o *Observer) drop(record Record, why string) {
	o.dropped++
	o.logger.Error("dropping journal record",
		"reason", why,
		"kind", record.Kind,
		"session_id", record.SessionID,
	)
	if o.config.OnDrop != nil {
		o.config.OnDrop(record)
	}
}

// Dropped returns how many records were never written.
func (o *Observer) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Run writes queued records until Close is called and the queue is
// drained, or ctx is cancelled. Append errors are logged; the record
// is lost but later records are still attempted.
func (o *Observer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-o.records:
			if !ok {
				return nil
			}
			if err := o.config.Journal.Append(record); err != nil {
				o.logger.Error("writing journal record failed",
					"kind", record.Kind,
					"session_id", record.SessionID,
					"error", err,
				)
				continue
			}
			o.logger.Debug("journaled session record",
				"kind", record.Kind,
				"session_id", record.SessionID,
			)
		}
	}
}

// Close stops accepting records. Run returns once it has written the
// ones already queued. Safe to call more than once.
func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.records)
	}
}
