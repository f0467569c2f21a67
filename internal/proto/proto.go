// Package proto defines the signaling wire protocol: JSON messages
// exchanged over the transport before a direct peer media path exists.
// Each message carries a "type" discriminator; Decode returns the concrete
// struct so handlers can type-switch exhaustively instead of poking at maps.
package proto

import (
	"encoding/json"
	"fmt"
)

// Type constants for the wire protocol.
const (
	TypeAuth         = "auth"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeCallRejected = "call-rejected"
	TypeCallEnd      = "call-end"
	TypeError        = "error"
)

// Message is implemented by every wire message. The sealed marker keeps the
// set closed so a type switch over messages covers the whole protocol.
type Message interface {
	MsgType() string
	sealed()
}

// Auth announces the local user id. Sent once, immediately after the
// transport opens.
type Auth struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// Offer carries an SDP offer for a new call.
type Offer struct {
	Type         string `json:"type"`
	CallID       string `json:"callId"`
	TargetUserID string `json:"targetUserId"`
	FromUserID   string `json:"fromUserId"`
	SDP          string `json:"sdp"`
}

// Answer carries the SDP answer completing an offer/answer handshake.
type Answer struct {
	Type         string `json:"type"`
	CallID       string `json:"callId"`
	TargetUserID string `json:"targetUserId"`
	FromUserID   string `json:"fromUserId"`
	SDP          string `json:"sdp"`
}

// ICECandidate carries one gathered ICE candidate for a call.
type ICECandidate struct {
	Type         string `json:"type"`
	CallID       string `json:"callId"`
	TargetUserID string `json:"targetUserId"`
	FromUserID   string `json:"fromUserId"`
	Candidate    string `json:"candidate"`
}

// CallRejected tells the caller an incoming call was declined.
type CallRejected struct {
	Type         string `json:"type"`
	CallID       string `json:"callId"`
	TargetUserID string `json:"targetUserId"`
	FromUserID   string `json:"fromUserId"`
}

// CallEnd terminates a call from either side.
type CallEnd struct {
	Type         string `json:"type"`
	CallID       string `json:"callId"`
	TargetUserID string `json:"targetUserId"`
	FromUserID   string `json:"fromUserId"`
}

// Error is sent by the signaling server (inbound only).
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func NewAuth(userID string) *Auth { return &Auth{Type: TypeAuth, UserID: userID} }

func NewOffer(callID, target, from, sdp string) *Offer {
	return &Offer{Type: TypeOffer, CallID: callID, TargetUserID: target, FromUserID: from, SDP: sdp}
}

func NewAnswer(callID, target, from, sdp string) *Answer {
	return &Answer{Type: TypeAnswer, CallID: callID, TargetUserID: target, FromUserID: from, SDP: sdp}
}

func NewICECandidate(callID, target, from, candidate string) *ICECandidate {
	return &ICECandidate{Type: TypeICECandidate, CallID: callID, TargetUserID: target, FromUserID: from, Candidate: candidate}
}

func NewCallRejected(callID, target, from string) *CallRejected {
	return &CallRejected{Type: TypeCallRejected, CallID: callID, TargetUserID: target, FromUserID: from}
}

func NewCallEnd(callID, target, from string) *CallEnd {
	return &CallEnd{Type: TypeCallEnd, CallID: callID, TargetUserID: target, FromUserID: from}
}

func NewError(code, message string) *Error {
	return &Error{Type: TypeError, Code: code, Message: message}
}

func (m *Auth) MsgType() string         { return TypeAuth }
func (m *Offer) MsgType() string        { return TypeOffer }
func (m *Answer) MsgType() string       { return TypeAnswer }
func (m *ICECandidate) MsgType() string { return TypeICECandidate }
func (m *CallRejected) MsgType() string { return TypeCallRejected }
func (m *CallEnd) MsgType() string      { return TypeCallEnd }
func (m *Error) MsgType() string        { return TypeError }

func (*Auth) sealed()         {}
func (*Offer) sealed()        {}
func (*Answer) sealed()       {}
func (*ICECandidate) sealed() {}
func (*CallRejected) sealed() {}
func (*CallEnd) sealed()      {}
func (*Error) sealed()        {}

// Target returns the user id a routable message is addressed to, and
// whether the message is routable at all (auth and error are not).
func Target(m Message) (string, bool) {
	switch v := m.(type) {
	case *Offer:
		return v.TargetUserID, true
	case *Answer:
		return v.TargetUserID, true
	case *ICECandidate:
		return v.TargetUserID, true
	case *CallRejected:
		return v.TargetUserID, true
	case *CallEnd:
		return v.TargetUserID, true
	default:
		return "", false
	}
}

// Encode marshals a message for the wire.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses raw JSON into the concrete message type for its "type" field.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("proto: bad frame: %w", err)
	}

	var m Message
	switch head.Type {
	case TypeAuth:
		m = &Auth{}
	case TypeOffer:
		m = &Offer{}
	case TypeAnswer:
		m = &Answer{}
	case TypeICECandidate:
		m = &ICECandidate{}
	case TypeCallRejected:
		m = &CallRejected{}
	case TypeCallEnd:
		m = &CallEnd{}
	case TypeError:
		m = &Error{}
	default:
		return nil, fmt.Errorf("proto: unknown message type %q", head.Type)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("proto: decode %s: %w", head.Type, err)
	}
	return m, nil
}
