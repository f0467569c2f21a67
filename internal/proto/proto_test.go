package proto

import (
	"encoding/json"
	"testing"
)

func TestDecodeDispatch(t *testing.T) {
	offer, err := Decode([]byte(`{"type":"offer","callId":"c1","targetUserId":"bob","fromUserId":"alice","sdp":"v=0"}`))
	if err != nil {
		t.Fatal(err)
	}
	o, ok := offer.(*Offer)
	if !ok {
		t.Fatalf("expected *Offer, got %T", offer)
	}
	if o.CallID != "c1" || o.TargetUserID != "bob" || o.FromUserID != "alice" || o.SDP != "v=0" {
		t.Fatalf("bad offer fields: %+v", o)
	}

	errMsg, err := Decode([]byte(`{"type":"error","message":"peer offline","code":"peer-offline"}`))
	if err != nil {
		t.Fatal(err)
	}
	if e := errMsg.(*Error); e.Code != "peer-offline" {
		t.Fatalf("bad error code: %+v", e)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"ping"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for bad frame")
	}
}

func TestEncodeCarriesDiscriminator(t *testing.T) {
	b, err := Encode(NewCallEnd("c1", "bob", "alice"))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != TypeCallEnd {
		t.Fatalf("expected type=%q, got %v", TypeCallEnd, m["type"])
	}

	back, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if ce := back.(*CallEnd); ce.CallID != "c1" || ce.FromUserID != "alice" {
		t.Fatalf("roundtrip mismatch: %+v", ce)
	}
}

func TestTarget(t *testing.T) {
	if tgt, ok := Target(NewICECandidate("c1", "bob", "alice", "cand")); !ok || tgt != "bob" {
		t.Fatalf("expected bob, got %q ok=%v", tgt, ok)
	}
	if _, ok := Target(NewAuth("alice")); ok {
		t.Fatal("auth must not be routable")
	}
}
