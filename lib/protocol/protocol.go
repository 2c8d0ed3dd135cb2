// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type discriminates a frame.
type Type string

const (
	TypeRegister           Type = "register"
	TypeAcceptConsultation Type = "accept_consultation"
	TypeJoin               Type = "join"
	TypeSendOffer          Type = "send_offer"
	TypeSendAnswer         Type = "send_answer"
	TypeICECandidate       Type = "ice_candidate"
	TypeEndConsultation    Type = "end_consultation"

	TypeWaitingRoomJoined    Type = "waiting_room_joined"
	TypeWaitingListUpdate    Type = "waiting_list_update"
	TypeConsultationStarting Type = "consultation_starting"
	TypePeerDisconnected     Type = "peer_disconnected"
	TypePeerJoined           Type = "peer_joined"
)

// IsSignaling reports whether frames of this type are relayed between
// session partners.
func (t Type) IsSignaling() bool {
	switch t {
	case TypeSendOffer, TypeSendAnswer, TypeICECandidate:
		return true
	}
	return false
}

// ErrMalformed is returned by Decode for frames that are not a JSON
// object with a non-empty string "type".
var ErrMalformed = errors.New("malformed message")

// Envelope is a decoded frame header plus the untouched frame bytes.
type Envelope struct {
	Type      Type
	SessionID string
	Raw       json.RawMessage
}

// Decode parses the frame header. The returned Envelope aliases data.
func Decode(data []byte) (Envelope, error) {
	var header struct {
		Type      *string `json:"type"`
		SessionID *string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if header.Type == nil || *header.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	envelope := Envelope{Type: Type(*header.Type), Raw: data}
	if header.SessionID != nil {
		envelope.SessionID = *header.SessionID
	}
	return envelope, nil
}

// Payload decodes the full frame into v.
func (e Envelope) Payload(v any) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// Encode marshals payload as a JSON object and adds the "type" field.
// payload must marshal to an object.
func Encode(t Type, payload any) ([]byte, error) {
	fields, err := objectFields(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", t, err)
	}
	fields["type"], _ = json.Marshal(t)
	return json.Marshal(fields)
}

// WithSender returns a copy of frame with "senderId" set. Every other
// field, including unknown ones, is preserved.
func WithSender(frame json.RawMessage, senderID string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	fields["senderId"], _ = json.Marshal(senderID)
	return json.Marshal(fields)
}

func objectFields(payload any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("payload %T is not a JSON object", payload)
	}
	return fields, nil
}
