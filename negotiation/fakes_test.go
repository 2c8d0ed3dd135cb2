// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/protocol"
)

// fakeLink records the engine's calls and lets tests fire link events.
type fakeLink struct {
	events LinkEvents
	name   string

	mu         sync.Mutex
	calls      []string
	remote     []protocol.SessionDescription
	candidates []protocol.ICECandidate
	offers     int
	closed     bool

	// failCandidates makes AddICECandidate fail.
	failCandidates bool
	// failRemote and failAnswer make SetRemoteDescription and
	// CreateAnswer fail.
	failRemote bool
	failAnswer bool
}

func (l *fakeLink) record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *fakeLink) CreateOffer(_ context.Context, restart bool) (protocol.SessionDescription, error) {
	l.mu.Lock()
	l.offers++
	sdp := fmt.Sprintf("%s-offer-%d", l.name, l.offers)
	l.mu.Unlock()
	if restart {
		l.record("create-offer-restart")
		sdp += "-restart"
	} else {
		l.record("create-offer")
	}
	return protocol.SessionDescription{Type: "offer", SDP: sdp}, nil
}

func (l *fakeLink) CreateAnswer(context.Context) (protocol.SessionDescription, error) {
	l.record("create-answer")
	l.mu.Lock()
	fail := l.failAnswer
	l.mu.Unlock()
	if fail {
		return protocol.SessionDescription{}, fmt.Errorf("%s cannot answer", l.name)
	}
	return protocol.SessionDescription{Type: "answer", SDP: l.name + "-answer"}, nil
}

func (l *fakeLink) SetLocalDescription(_ context.Context, description protocol.SessionDescription) error {
	l.record("set-local-" + description.Type)
	return nil
}

func (l *fakeLink) SetRemoteDescription(_ context.Context, description protocol.SessionDescription) error {
	l.record("set-remote-" + description.Type)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failRemote {
		return fmt.Errorf("malformed remote %s", description.Type)
	}
	l.remote = append(l.remote, description)
	return nil
}

func (l *fakeLink) Rollback(context.Context) error {
	l.record("rollback")
	return nil
}

func (l *fakeLink) AddICECandidate(_ context.Context, candidate protocol.ICECandidate) error {
	l.record("add-candidate")
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCandidates {
		return fmt.Errorf("candidate %q rejected", candidate.Candidate)
	}
	l.candidates = append(l.candidates, candidate)
	return nil
}

func (l *fakeLink) Close() error {
	l.record("close")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) setFailures(remote, answer bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failRemote = remote
	l.failAnswer = answer
}

func (l *fakeLink) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *fakeLink) hasCall(call string) bool {
	for _, recorded := range l.Calls() {
		if recorded == call {
			return true
		}
	}
	return false
}

// fakeLinks is a LinkFactory that keeps every link it built.
type fakeLinks struct {
	name  string
	mu    sync.Mutex
	links []*fakeLink
}

func (f *fakeLinks) NewLink(events LinkEvents) (PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link := &fakeLink{events: events, name: fmt.Sprintf("%s%d", f.name, len(f.links)+1)}
	f.links = append(f.links, link)
	return link, nil
}

func (f *fakeLinks) current() *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[len(f.links)-1]
}

func (f *fakeLinks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

// recordingSignaler keeps every outbound message in order.
type recordingSignaler struct {
	mu         sync.Mutex
	offers     []protocol.Offer
	answers    []protocol.Answer
	candidates []protocol.Candidate
	ends       []protocol.EndConsultation
}

func (s *recordingSignaler) SendOffer(_ context.Context, offer protocol.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, offer)
	return nil
}

func (s *recordingSignaler) SendAnswer(_ context.Context, answer protocol.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answer)
	return nil
}

func (s *recordingSignaler) SendCandidate(_ context.Context, candidate protocol.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, candidate)
	return nil
}

func (s *recordingSignaler) SendEnd(_ context.Context, end protocol.EndConsultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends = append(s.ends, end)
	return nil
}

func (s *recordingSignaler) lastOffer(t *testing.T) protocol.Offer {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.offers) == 0 {
		t.Fatal("no offer sent")
	}
	return s.offers[len(s.offers)-1]
}

func (s *recordingSignaler) lastAnswer(t *testing.T) protocol.Answer {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.answers) == 0 {
		t.Fatal("no answer sent")
	}
	return s.answers[len(s.answers)-1]
}

func (s *recordingSignaler) counts() (offers, answers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offers), len(s.answers)
}

type recordingPrompter struct {
	mu        sync.Mutex
	shown     int
	dismissed int
	visible   bool
}

func (p *recordingPrompter) ShowReconnectPrompt(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown++
	p.visible = true
}

func (p *recordingPrompter) DismissPrompt(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed++
	p.visible = false
}

func (p *recordingPrompter) isVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// side is one participant's engine plus its fakes.
type side struct {
	engine   *Engine
	links    *fakeLinks
	signaler *recordingSignaler
	prompter *recordingPrompter
}

const testSession = "session-1"

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newSide(t *testing.T, fake *clock.FakeClock, local, remote string, initiator bool) *side {
	t.Helper()
	s := &side{
		links:    &fakeLinks{name: local + "-link"},
		signaler: &recordingSignaler{},
		prompter: &recordingPrompter{},
	}
	counter := 0
	engine, err := NewEngine(Config{
		SessionID: testSession,
		LocalID:   local,
		RemoteID:  remote,
		Initiator: initiator,
		Links:     s.links,
		Signaler:  s.signaler,
		Prompter:  s.prompter,
		Clock:     fake,
		Logger:    slog.New(slog.DiscardHandler),
		NewID: func() string {
			counter++
			return fmt.Sprintf("%s-msg-%d", local, counter)
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	s.engine = engine
	return s
}

func requireState(t *testing.T, s *side, want State) {
	t.Helper()
	if got := s.engine.State(); got != want {
		t.Fatalf("%s state = %s, want %s", s.engine.config.LocalID, got, want)
	}
}
