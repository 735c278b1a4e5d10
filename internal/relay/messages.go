package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type messageType string

const (
	messageTypeJoin      messageType = "join"
	messageTypeOffer     messageType = "offer"
	messageTypeAnswer    messageType = "answer"
	messageTypeCandidate messageType = "ice-candidate"
	messageTypeTerminate messageType = "terminate"
)

// signalMessage is the wire format for all relay traffic. SDP and candidate
// payloads stay opaque: the relay forwards them verbatim and leaves
// interpretation to the peers' WebRTC stacks.
type signalMessage struct {
	Type      messageType     `json:"type"`
	SessionID string          `json:"session_id"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func parseSignalMessage(data []byte) (signalMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg signalMessage
	if err := dec.Decode(&msg); err != nil {
		return signalMessage{}, err
	}
	if err := msg.validate(); err != nil {
		return signalMessage{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return signalMessage{}, fmt.Errorf("unexpected trailing data")
	}
	return msg, nil
}

func (m signalMessage) validate() error {
	if m.SessionID == "" {
		return fmt.Errorf("message missing session_id")
	}
	switch m.Type {
	case messageTypeJoin, messageTypeTerminate:
		if m.SDP != nil || m.Candidate != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case messageTypeOffer, messageTypeAnswer:
		if m.SDP == nil {
			return fmt.Errorf("%s message missing sdp", m.Type)
		}
		if m.Candidate != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case messageTypeCandidate:
		if m.Candidate == nil {
			return fmt.Errorf("ice-candidate message missing candidate")
		}
		if m.SDP != nil {
			return fmt.Errorf("ice-candidate message has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}
