// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeHeader(t *testing.T) {
	envelope, err := Decode([]byte(`{"type":"send_offer","sessionId":"s-1","id":"m-1","offer":{"type":"offer","sdp":"v=0"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if envelope.Type != TypeSendOffer {
		t.Errorf("Type = %q, want send_offer", envelope.Type)
	}
	if envelope.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want s-1", envelope.SessionID)
	}

	var offer Offer
	if err := envelope.Payload(&offer); err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if offer.ID != "m-1" || offer.Offer.SDP != "v=0" {
		t.Errorf("offer = %+v", offer)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, input := range []string{
		`not json`,
		`[]`,
		`{"sessionId":"s-1"}`,
		`{"type":""}`,
		`{"type":42}`,
	} {
		if _, err := Decode([]byte(input)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%s) error = %v, want ErrMalformed", input, err)
		}
	}
}

func TestEncodeAddsType(t *testing.T) {
	frame, err := Encode(TypeConsultationStarting, ConsultationStarting{SessionID: "s-1", PartnerID: "v-1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	envelope, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if envelope.Type != TypeConsultationStarting || envelope.SessionID != "s-1" {
		t.Fatalf("envelope = %+v", envelope)
	}

	if _, err := Encode(TypeRegister, "not an object"); err == nil {
		t.Fatal("Encode of a string payload succeeded, want error")
	}
}

func TestWithSenderPreservesUnknownFields(t *testing.T) {
	original := json.RawMessage(`{"type":"ice_candidate","sessionId":"s-1","candidate":{"candidate":"candidate:1"},"vendorExtension":{"x":1}}`)

	stamped, err := WithSender(original, "r-1")
	if err != nil {
		t.Fatalf("WithSender: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(stamped, &fields); err != nil {
		t.Fatalf("stamped frame is not an object: %v", err)
	}
	if string(fields["senderId"]) != `"r-1"` {
		t.Errorf("senderId = %s, want \"r-1\"", fields["senderId"])
	}
	if string(fields["vendorExtension"]) != `{"x":1}` {
		t.Errorf("vendorExtension = %s, want preserved", fields["vendorExtension"])
	}
	if string(fields["candidate"]) != `{"candidate":"candidate:1"}` {
		t.Errorf("candidate = %s, want preserved", fields["candidate"])
	}
}

func TestSignalingTypes(t *testing.T) {
	for _, signaling := range []Type{TypeSendOffer, TypeSendAnswer, TypeICECandidate} {
		if !signaling.IsSignaling() {
			t.Errorf("%s.IsSignaling() = false", signaling)
		}
	}
	for _, other := range []Type{TypeRegister, TypeJoin, TypePeerJoined} {
		if other.IsSignaling() {
			t.Errorf("%s.IsSignaling() = true", other)
		}
	}
}
