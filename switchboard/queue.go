// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/protocol"
)

// WaitingEntry is a queued requester.
type WaitingEntry struct {
	Participant *Participant
	JoinedAt    time.Time
	Context     json.RawMessage

	// seq is the registration order; it breaks JoinedAt ties.
	seq uint64
}

// observerKind tags the two kinds of subscriber the queue notifies.
type observerKind int

const (
	// requesterObserver receives its own position.
	requesterObserver observerKind = iota
	// responderObserver receives the full snapshot.
	responderObserver
)

// observer is one subscriber of the waiting room.
type observer struct {
	kind        observerKind
	participant *Participant
}

// WaitingQueue is the waiting room: requesters ordered by join time and
// the responders watching them. It is the only component that mutates
// either list. Owned by the server loop; not safe for concurrent use.
//
// Entries are only ever appended or removed, never moved, so the slice
// order is join order and removal cannot reorder survivors.
type WaitingQueue struct {
	entries    []*WaitingEntry
	responders []*Participant
	nextSeq    uint64

	clock          clock.Clock
	consultMinutes int
	logger         *slog.Logger
}

// NewWaitingQueue returns an empty queue. consultMinutes is the
// expected length of one consultation, used for wait estimates.
func NewWaitingQueue(clk clock.Clock, consultMinutes int, logger *slog.Logger) *WaitingQueue {
	if consultMinutes <= 0 {
		consultMinutes = 15
	}
	return &WaitingQueue{
		clock:          clk,
		consultMinutes: consultMinutes,
		logger:         logger,
	}
}

// AddRequester queues requester, tells it its position and estimated
// wait, and pushes the new snapshot to every responder.
//
// A requester id that is already queued is replaced in place: it keeps
// its original join time and position, and takes the new participant
// (connection) and context. The returned bool reports whether that
// happened.
func (q *WaitingQueue) AddRequester(requester *Participant, context json.RawMessage) bool {
	if index := q.indexOf(requester.ID); index >= 0 {
		entry := q.entries[index]
		entry.Participant = requester
		entry.Context = context
		q.logger.Info("requester re-registered, keeping queue position",
			"requester", requester.ID,
			"position", index+1,
		)
		q.notify(observer{kind: requesterObserver, participant: requester}, index+1)
		q.publishSnapshot()
		return true
	}

	q.nextSeq++
	q.entries = append(q.entries, &WaitingEntry{
		Participant: requester,
		JoinedAt:    q.clock.Now(),
		Context:     context,
		seq:         q.nextSeq,
	})
	position := len(q.entries)
	q.logger.Info("requester joined waiting room",
		"requester", requester.ID,
		"position", position,
	)
	q.notify(observer{kind: requesterObserver, participant: requester}, position)
	q.publishSnapshot()
	return false
}

// RemoveRequester dequeues id. Every remaining requester receives its
// recomputed position and responders receive the new snapshot. Returns
// false if id was not queued.
func (q *WaitingQueue) RemoveRequester(id string) bool {
	index := q.indexOf(id)
	if index < 0 {
		return false
	}

	q.entries = append(q.entries[:index], q.entries[index+1:]...)
	q.logger.Info("requester left waiting room", "requester", id, "remaining", len(q.entries))

	q.refreshPositions()
	q.publishSnapshot()
	return true
}

// removePair takes a matched requester and responder out of the
// waiting room together. Both the order and the estimates change, so
// every remaining requester hears its position exactly once.
func (q *WaitingQueue) removePair(requesterID, responderID string) {
	index := q.indexOf(requesterID)
	if index >= 0 {
		q.entries = append(q.entries[:index], q.entries[index+1:]...)
	}
	responderIndex := slices.IndexFunc(q.responders, func(p *Participant) bool { return p.ID == responderID })
	if responderIndex >= 0 {
		q.responders = slices.Delete(q.responders, responderIndex, responderIndex+1)
	}
	q.logger.Info("matched pair left waiting room",
		"requester", requesterID,
		"responder", responderID,
		"remaining", len(q.entries),
		"responders", len(q.responders),
	)

	if index >= 0 || responderIndex >= 0 {
		q.refreshPositions()
	}
	if index >= 0 {
		q.publishSnapshot()
	}
}

// AddResponder subscribes responder to waiting-room snapshots and sends
// it the current one. A responder id already subscribed is replaced in
// place.
func (q *WaitingQueue) AddResponder(responder *Participant) {
	replaced := false
	for index, existing := range q.responders {
		if existing.ID == responder.ID {
			q.responders[index] = responder
			replaced = true
			break
		}
	}
	if !replaced {
		q.responders = append(q.responders, responder)
	}
	q.logger.Info("responder subscribed", "responder", responder.ID, "responders", len(q.responders))

	q.notify(observer{kind: responderObserver, participant: responder}, 0)
	// Estimates depend on the responder count.
	q.refreshPositions()
}

// RemoveResponder unsubscribes id. Returns false if it was not
// subscribed.
func (q *WaitingQueue) RemoveResponder(id string) bool {
	for index, existing := range q.responders {
		if existing.ID == id {
			q.responders = append(q.responders[:index], q.responders[index+1:]...)
			q.logger.Info("responder unsubscribed", "responder", id, "responders", len(q.responders))
			q.refreshPositions()
			return true
		}
	}
	return false
}

// Get returns the entry for a queued requester.
func (q *WaitingQueue) Get(id string) (*WaitingEntry, bool) {
	if index := q.indexOf(id); index >= 0 {
		return q.entries[index], true
	}
	return nil, false
}

// Responder returns the subscribed responder with id.
func (q *WaitingQueue) Responder(id string) (*Participant, bool) {
	for _, responder := range q.responders {
		if responder.ID == id {
			return responder, true
		}
	}
	return nil, false
}

// Len returns the number of waiting requesters.
func (q *WaitingQueue) Len() int {
	return len(q.entries)
}

// ResponderCount returns the number of subscribed responders.
func (q *WaitingQueue) ResponderCount() int {
	return len(q.responders)
}

// Snapshot returns the waiting list in join order.
func (q *WaitingQueue) Snapshot() []protocol.WaitingEntry {
	snapshot := make([]protocol.WaitingEntry, len(q.entries))
	for index, entry := range q.entries {
		snapshot[index] = protocol.WaitingEntry{
			UserID:   entry.Participant.ID,
			Position: index + 1,
			JoinedAt: entry.JoinedAt,
			Context:  entry.Context,
		}
	}
	return snapshot
}

// EstimatedWait returns the wait estimate in minutes for a position:
// the consultations ahead of it, shared across subscribed responders,
// rounded up.
func (q *WaitingQueue) EstimatedWait(position int) int {
	responders := max(len(q.responders), 1)
	return (position*q.consultMinutes + responders - 1) / responders
}

// notify delivers the observer's view of the queue.
func (q *WaitingQueue) notify(target observer, position int) {
	switch target.kind {
	case requesterObserver:
		target.participant.send(q.logger, protocol.TypeWaitingRoomJoined, protocol.WaitingRoomJoined{
			Position:             position,
			EstimatedWaitMinutes: q.EstimatedWait(position),
		})
	case responderObserver:
		frame := q.snapshotFrame()
		if frame != nil {
			target.participant.Conn.Notify(frame)
		}
	}
}

// publishSnapshot pushes the snapshot to every responder. The frame is
// encoded once and shared.
func (q *WaitingQueue) publishSnapshot() {
	if len(q.responders) == 0 {
		return
	}
	frame := q.snapshotFrame()
	if frame == nil {
		return
	}
	for _, responder := range q.responders {
		responder.Conn.Notify(frame)
	}
}

// refreshPositions sends every queued requester its current position
// and estimate.
func (q *WaitingQueue) refreshPositions() {
	for index, entry := range q.entries {
		q.notify(observer{kind: requesterObserver, participant: entry.Participant}, index+1)
	}
}

func (q *WaitingQueue) snapshotFrame() []byte {
	frame, err := protocol.Encode(protocol.TypeWaitingListUpdate, protocol.WaitingListUpdate{
		WaitingEntries: q.Snapshot(),
	})
	if err != nil {
		q.logger.Error("encoding waiting list snapshot failed", "error", err)
		return nil
	}
	return frame
}

func (q *WaitingQueue) indexOf(id string) int {
	for index, entry := range q.entries {
		if entry.Participant.ID == id {
			return index
		}
	}
	return -1
}
