// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/protocol"
)

// State is the engine's negotiation state.
type State int

const (
	StateNew State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	// StateStable: an offer/answer exchange completed but the link has
	// not reported connectivity yet.
	StateStable
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	// DefaultRecoveryDelay is how long a dropped link may stay down
	// before the engine acts.
	DefaultRecoveryDelay = 5 * time.Second

	// DefaultMaxRestarts bounds consecutive ICE restarts by the
	// initiator before it prompts as well.
	DefaultMaxRestarts = 3

	// DefaultSeenCapacity is how many inbound message ids are
	// remembered for duplicate suppression.
	DefaultSeenCapacity = 256

	// maxPendingCandidates bounds remote candidates held while no
	// remote description is applied.
	maxPendingCandidates = 128
)

// Config holds the parameters for NewEngine.
type Config struct {
	SessionID string
	LocalID   string
	RemoteID  string

	// Initiator is the statically assigned offerer: it sends the first
	// offer and the ICE restarts. Collisions are settled by id order,
	// not by this flag.
	Initiator bool

	Links    LinkFactory
	Signaler Signaler
	Prompter Prompter

	// Clock drives the recovery timer. Production callers pass
	// clock.Real(); tests pass clock.Fake().
	Clock  clock.Clock
	Logger *slog.Logger

	// RecoveryDelay, MaxRestarts and SeenCapacity default to the
	// package constants when zero.
	RecoveryDelay time.Duration
	MaxRestarts   int
	SeenCapacity  int

	// OnStateChange, if set, is called with the lock held after every
	// transition. It must not block or call back into the engine.
	OnStateChange func(State)

	// NewID generates outbound message ids. Defaults to uuid.NewString.
	NewID func() string
}

// Engine negotiates one session's peer link. All methods are safe for
// concurrent use.
type Engine struct {
	mu     sync.Mutex
	config Config
	logger *slog.Logger
	polite bool

	// ctx is the lifetime context from Start, used for sends that are
	// triggered by link events and timers rather than a caller.
	ctx context.Context

	state     State
	linkState LinkState
	closed    bool

	link PeerLink
	// generation increments with every link; events from older links
	// are ignored.
	generation uint64
	// epoch is this side's link epoch, sent on offers and answers.
	epoch uint64
	// remoteEpoch is the partner's epoch the current link is paired
	// with, 0 until a remote description is applied.
	remoteEpoch uint64

	pendingOfferID       string
	remoteDescriptionSet bool
	pendingCandidates    []protocol.ICECandidate
	// ignoringOffer is set while an impolite side ignores a colliding
	// offer; candidate failures are expected then.
	ignoringOffer bool

	// negotiated is set once an exchange on the current link completes.
	negotiated bool

	seen *seenSet

	recoveryTimer *clock.Timer
	// timerGeneration invalidates callbacks of stopped timers that had
	// already started running.
	timerGeneration uint64
	restarts        int
	restartSeen     bool
	prompting       bool
}

// NewEngine validates config and returns an engine in StateNew. Call
// Start before anything else.
func NewEngine(config Config) (*Engine, error) {
	if config.SessionID == "" || config.LocalID == "" || config.RemoteID == "" {
		return nil, errors.New("negotiation: SessionID, LocalID and RemoteID are required")
	}
	if config.LocalID == config.RemoteID {
		return nil, fmt.Errorf("negotiation: local and remote id are both %q", config.LocalID)
	}
	if config.Links == nil || config.Signaler == nil || config.Prompter == nil {
		return nil, errors.New("negotiation: Links, Signaler and Prompter are required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.RecoveryDelay <= 0 {
		config.RecoveryDelay = DefaultRecoveryDelay
	}
	if config.MaxRestarts <= 0 {
		config.MaxRestarts = DefaultMaxRestarts
	}
	if config.SeenCapacity <= 0 {
		config.SeenCapacity = DefaultSeenCapacity
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}

	polite := config.LocalID > config.RemoteID
	return &Engine{
		config: config,
		logger: config.Logger.With(
			"session_id", config.SessionID,
			"local", config.LocalID,
			"remote", config.RemoteID,
			"polite", polite,
		),
		polite: polite,
		ctx:    context.Background(),
		seen:   newSeenSet(config.SeenCapacity),
	}, nil
}

// Polite reports whether this side yields on collision.
func (e *Engine) Polite() bool { return e.polite }

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start builds the first link. ctx bounds sends caused by link events
// and timers for the engine's lifetime.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.link != nil {
		return fmt.Errorf("%w: already started", ErrStateViolation)
	}
	e.ctx = ctx
	return e.buildLink()
}

// Offer starts an offer/answer exchange from this side: the first
// offer after the partner joins, or a renegotiation. It is a no-op
// while an own offer is outstanding.
func (e *Engine) Offer(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	switch e.state {
	case StateHaveLocalOffer:
		return nil
	case StateHaveRemoteOffer:
		return fmt.Errorf("%w: cannot offer while answering", ErrStateViolation)
	}
	return e.sendOffer(ctx, false)
}

// HandleOffer applies a relayed offer and answers it, subject to the
// collision rules.
func (e *Engine) HandleOffer(ctx context.Context, offer protocol.Offer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.admit(offer.SessionID, offer.ID, protocol.TypeSendOffer); err != nil {
		return err
	}

	rebuilt := false
	if e.remoteEpoch != 0 && offer.Epoch > e.remoteEpoch {
		e.logger.Info("partner rebuilt its link, rebuilding ours",
			"remote_epoch", offer.Epoch,
			"paired_epoch", e.remoteEpoch,
		)
		if err := e.rebuildLink(); err != nil {
			return err
		}
		rebuilt = true
	}

	switch {
	case e.state == StateHaveLocalOffer:
		if !e.polite {
			e.ignoringOffer = true
			e.logger.Info("offer collision, keeping own offer", "ignored_offer", offer.ID)
			return nil
		}
		e.logger.Info("offer collision, rolling back own offer", "own_offer", e.pendingOfferID)
		if err := e.link.Rollback(ctx); err != nil {
			return fmt.Errorf("rolling back local offer: %w", err)
		}
		e.pendingOfferID = ""
		e.unwind()
	case e.state == StateNew && e.config.Initiator && !e.polite && !rebuilt:
		// Both sides want to start; the canonical offerer holds and
		// makes its own offer, which the partner will yield to.
		e.ignoringOffer = true
		e.logger.Info("initiator holding against partner offer", "ignored_offer", offer.ID)
		return e.sendOffer(ctx, false)
	}
	e.ignoringOffer = false

	if offer.Restart && e.linkState.unhealthy() {
		e.restartSeen = true
	}

	if err := e.link.SetRemoteDescription(ctx, offer.Offer); err != nil {
		return fmt.Errorf("applying remote offer %s: %w", offer.ID, err)
	}
	e.remoteDescriptionSet = true
	if offer.Epoch != 0 {
		e.remoteEpoch = offer.Epoch
	}
	e.transition(StateHaveRemoteOffer)
	e.flushCandidates(ctx)

	answer, err := e.link.CreateAnswer(ctx)
	if err != nil {
		return e.abandonRemoteOffer(ctx, fmt.Errorf("creating answer to %s: %w", offer.ID, err))
	}
	if err := e.link.SetLocalDescription(ctx, answer); err != nil {
		return e.abandonRemoteOffer(ctx, fmt.Errorf("applying local answer: %w", err))
	}
	e.settle()

	if err := e.config.Signaler.SendAnswer(ctx, protocol.Answer{
		SessionID: e.config.SessionID,
		Answer:    answer,
		ID:        e.config.NewID(),
		OfferID:   offer.ID,
		Epoch:     e.epoch,
	}); err != nil {
		return fmt.Errorf("sending answer: %w", err)
	}
	e.logger.Info("answered offer", "offer", offer.ID, "restart", offer.Restart)
	return nil
}

// HandleAnswer applies a relayed answer to the outstanding offer.
// Answers to any other offer are dropped with ErrStateViolation.
func (e *Engine) HandleAnswer(ctx context.Context, answer protocol.Answer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.admit(answer.SessionID, answer.ID, protocol.TypeSendAnswer); err != nil {
		return err
	}
	if e.state != StateHaveLocalOffer {
		return fmt.Errorf("%w: answer %s in state %s", ErrStateViolation, answer.ID, e.state)
	}
	if answer.OfferID != "" && answer.OfferID != e.pendingOfferID {
		return fmt.Errorf("%w: stale answer for offer %s, outstanding %s",
			ErrStateViolation, answer.OfferID, e.pendingOfferID)
	}

	if err := e.link.SetRemoteDescription(ctx, answer.Answer); err != nil {
		return fmt.Errorf("applying remote answer %s: %w", answer.ID, err)
	}
	e.pendingOfferID = ""
	e.remoteDescriptionSet = true
	if answer.Epoch != 0 {
		e.remoteEpoch = answer.Epoch
	}
	e.settle()
	// Held candidates may belong to an offer that was ignored.
	e.flushCandidates(ctx)
	e.ignoringOffer = false
	e.logger.Info("offer answered", "answer", answer.ID)
	return nil
}

// HandleCandidate adds a relayed remote candidate, holding it until a
// remote description is applied.
func (e *Engine) HandleCandidate(ctx context.Context, candidate protocol.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if candidate.SessionID != e.config.SessionID {
		return fmt.Errorf("%w: candidate for session %s", ErrStateViolation, candidate.SessionID)
	}
	if candidate.ID != "" && !e.seen.Add(candidate.ID) {
		return fmt.Errorf("%w: candidate %s", ErrDuplicate, candidate.ID)
	}
	if candidate.Epoch != 0 && e.remoteEpoch != 0 && candidate.Epoch < e.remoteEpoch {
		e.logger.Debug("dropping candidate from a replaced link", "epoch", candidate.Epoch)
		return nil
	}

	if !e.remoteDescriptionSet {
		if len(e.pendingCandidates) >= maxPendingCandidates {
			return fmt.Errorf("%w: %d candidates already waiting for a remote description",
				ErrStateViolation, len(e.pendingCandidates))
		}
		e.pendingCandidates = append(e.pendingCandidates, candidate.Candidate)
		return nil
	}
	return e.addCandidate(ctx, candidate.Candidate)
}

// Retry is the prompt's "retry": tear the link down, build a fresh one
// under a new epoch and offer again.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.logger.Info("retrying with a fresh link")
	e.cancelRecovery()
	e.dismissPrompt()
	e.restarts = 0
	if err := e.rebuildLink(); err != nil {
		return err
	}
	// The partner's pairing is unknown until it answers.
	e.remoteEpoch = 0
	return e.sendOffer(ctx, false)
}

// End is the prompt's "end": tell the switchboard the consultation is
// over and close the engine.
func (e *Engine) End(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	err := e.config.Signaler.SendEnd(ctx, protocol.EndConsultation{SessionID: e.config.SessionID})
	e.shutdown()
	if err != nil {
		return fmt.Errorf("sending end_consultation: %w", err)
	}
	return nil
}

// Close stops the recovery timer, closes the link and moves to
// StateClosed. No timer callback acts after Close returns. Safe to call
// more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.shutdown()
	return nil
}

// admit runs the checks shared by offers and answers.
func (e *Engine) admit(sessionID, id string, messageType protocol.Type) error {
	if e.closed {
		return ErrClosed
	}
	if e.link == nil {
		return fmt.Errorf("%w: %s before Start", ErrStateViolation, messageType)
	}
	if sessionID != e.config.SessionID {
		return fmt.Errorf("%w: %s for session %s", ErrStateViolation, messageType, sessionID)
	}
	if id == "" {
		return fmt.Errorf("%w: %s without id", ErrStateViolation, messageType)
	}
	if !e.seen.Add(id) {
		return fmt.Errorf("%w: %s %s", ErrDuplicate, messageType, id)
	}
	return nil
}

func (e *Engine) sendOffer(ctx context.Context, restart bool) error {
	if e.link == nil {
		return fmt.Errorf("%w: offer before Start", ErrStateViolation)
	}
	description, err := e.link.CreateOffer(ctx, restart)
	if err != nil {
		return fmt.Errorf("creating offer: %w", err)
	}
	if err := e.link.SetLocalDescription(ctx, description); err != nil {
		return fmt.Errorf("applying local offer: %w", err)
	}
	id := e.config.NewID()
	e.pendingOfferID = id
	e.transition(StateHaveLocalOffer)

	if err := e.config.Signaler.SendOffer(ctx, protocol.Offer{
		SessionID: e.config.SessionID,
		Offer:     description,
		ID:        id,
		Epoch:     e.epoch,
		Restart:   restart,
	}); err != nil {
		return fmt.Errorf("sending offer: %w", err)
	}
	e.logger.Info("sent offer", "offer", id, "epoch", e.epoch, "restart", restart)
	return nil
}

// settle moves out of an offer/answer state once the exchange is done.
func (e *Engine) settle() {
	e.negotiated = true
	switch {
	case e.linkState == LinkConnected:
		e.transition(StateConnected)
	case e.linkState.unhealthy():
		e.transition(StateFailed)
	default:
		e.transition(StateStable)
	}
}

// unwind leaves an offer/answer state whose exchange was abandoned,
// back to where the link was before it started.
func (e *Engine) unwind() {
	if e.negotiated {
		e.settle()
		return
	}
	e.transition(StateNew)
}

// abandonRemoteOffer rolls back a remote offer that could not be
// answered so the next offer from either side starts clean.
func (e *Engine) abandonRemoteOffer(ctx context.Context, cause error) error {
	if err := e.link.Rollback(ctx); err != nil {
		e.logger.Warn("rolling back unanswered remote offer failed", "error", err)
	}
	e.remoteDescriptionSet = false
	e.unwind()
	return cause
}

func (e *Engine) flushCandidates(ctx context.Context) {
	pending := e.pendingCandidates
	e.pendingCandidates = nil
	for _, candidate := range pending {
		if err := e.addCandidate(ctx, candidate); err != nil {
			e.logger.Warn("adding held candidate failed", "error", err)
		}
	}
}

func (e *Engine) addCandidate(ctx context.Context, candidate protocol.ICECandidate) error {
	if err := e.link.AddICECandidate(ctx, candidate); err != nil {
		if e.ignoringOffer {
			return nil
		}
		return fmt.Errorf("adding remote candidate: %w", err)
	}
	return nil
}

// buildLink creates a link for the next generation.
func (e *Engine) buildLink() error {
	e.generation++
	e.epoch++
	link, err := e.config.Links.NewLink(&linkEvents{engine: e, generation: e.generation})
	if err != nil {
		return fmt.Errorf("creating peer link: %w", err)
	}
	e.link = link
	e.linkState = LinkNew
	e.pendingOfferID = ""
	e.remoteDescriptionSet = false
	e.negotiated = false
	e.pendingCandidates = nil
	e.ignoringOffer = false
	e.restartSeen = false
	e.transition(StateNew)
	return nil
}

func (e *Engine) rebuildLink() error {
	if e.link != nil {
		if err := e.link.Close(); err != nil {
			e.logger.Debug("closing replaced link", "error", err)
		}
	}
	e.cancelRecovery()
	e.dismissPrompt()
	return e.buildLink()
}

func (e *Engine) transition(next State) {
	if e.state == next {
		return
	}
	e.logger.Debug("negotiation state", "from", e.state, "to", next)
	e.state = next
	if e.config.OnStateChange != nil {
		e.config.OnStateChange(next)
	}
}

func (e *Engine) shutdown() {
	e.closed = true
	e.cancelRecovery()
	e.dismissPrompt()
	if e.link != nil {
		if err := e.link.Close(); err != nil {
			e.logger.Debug("closing link", "error", err)
		}
	}
	e.transition(StateClosed)
}

// linkEvents tags a link's callbacks with its generation.
type linkEvents struct {
	engine     *Engine
	generation uint64
}

func (l *linkEvents) LocalCandidate(candidate protocol.ICECandidate) {
	l.engine.localCandidate(l.generation, candidate)
}

func (l *linkEvents) StateChanged(state LinkState) {
	l.engine.linkStateChanged(l.generation, state)
}

func (e *Engine) localCandidate(generation uint64, candidate protocol.ICECandidate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || generation != e.generation {
		return
	}
	if err := e.config.Signaler.SendCandidate(e.ctx, protocol.Candidate{
		SessionID: e.config.SessionID,
		Candidate: candidate,
		ID:        e.config.NewID(),
		Epoch:     e.epoch,
	}); err != nil {
		e.logger.Warn("sending local candidate failed", "error", err)
	}
}

func (e *Engine) linkStateChanged(generation uint64, state LinkState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || generation != e.generation {
		return
	}
	previous := e.linkState
	e.linkState = state
	e.logger.Info("link state", "from", previous, "to", state)

	switch {
	case state == LinkConnected:
		e.cancelRecovery()
		e.dismissPrompt()
		e.restarts = 0
		e.restartSeen = false
		if e.state == StateStable || e.state == StateFailed {
			e.transition(StateConnected)
		}
	case state.unhealthy():
		if e.state == StateConnected || e.state == StateStable {
			e.transition(StateFailed)
		}
		if e.recoveryTimer == nil && !e.prompting {
			e.armRecovery()
		}
	}
}
