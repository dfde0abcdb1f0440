// Package envelope defines the timestamped, source-tagged message the broker
// and service bus carry between nodes. Payloads are opaque JSON (spec §3,
// §9 "Message dynamism") so that external plugins can route their own types
// without recompiling the kernel; they are represented as *structpb.Struct,
// the published (non-generated) protobuf well-known type for arbitrary JSON
// objects, so the same value can cross the script-adapter boundary and be
// persisted to the record log without a bespoke encoding.
package envelope

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"simkernel/internal/simerr"
)

// Flag is a message flag. The only flag spec §3 requires is Kill.
type Flag string

// FlagKill marks an envelope that should terminate the receiving node.
const FlagKill Flag = "kill"

// Envelope is `{from, payload, timestamp, flags}` per the data model.
type Envelope struct {
	From      string
	Payload   *structpb.Struct
	Timestamp float32
	Flags     map[Flag]struct{}
}

// New builds an envelope from a plain Go map payload.
func New(from string, payload map[string]any, timestamp float32, flags ...Flag) (*Envelope, error) {
	var structPayload *structpb.Struct
	if payload != nil {
		built, err := structpb.NewStruct(payload)
		if err != nil {
			return nil, simerr.Message("build envelope payload: %v", err)
		}
		structPayload = built
	}
	env := &Envelope{From: from, Payload: structPayload, Timestamp: timestamp}
	for _, f := range flags {
		env.SetFlag(f)
	}
	return env, nil
}

// SetFlag marks the envelope with the given flag.
func (e *Envelope) SetFlag(f Flag) {
	if e == nil {
		return
	}
	if e.Flags == nil {
		e.Flags = make(map[Flag]struct{}, 1)
	}
	e.Flags[f] = struct{}{}
}

// HasFlag reports whether the envelope carries the given flag.
func (e *Envelope) HasFlag(f Flag) bool {
	if e == nil || e.Flags == nil {
		return false
	}
	_, ok := e.Flags[f]
	return ok
}

// PayloadMap decodes the payload back into a plain Go map.
func (e *Envelope) PayloadMap() map[string]any {
	if e == nil || e.Payload == nil {
		return nil
	}
	return e.Payload.AsMap()
}

// Clone deep-copies the envelope so a delivered copy can be mutated by its
// receiver without affecting the publisher's retained copy or other
// subscribers' queues.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	clone := &Envelope{From: e.From, Timestamp: e.Timestamp}
	if e.Payload != nil {
		if msg, ok := proto.Clone(e.Payload).(*structpb.Struct); ok {
			clone.Payload = msg
		}
	}
	if len(e.Flags) > 0 {
		clone.Flags = make(map[Flag]struct{}, len(e.Flags))
		for f := range e.Flags {
			clone.Flags[f] = struct{}{}
		}
	}
	return clone
}

// wireEnvelope is the JSON-on-the-wire / on-disk shape for an Envelope.
type wireEnvelope struct {
	From      string          `json:"from"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp float32         `json:"timestamp"`
	Flags     map[string]bool `json:"flags,omitempty"`
}

// MarshalJSON renders the envelope using protojson for the payload so opaque
// fields round-trip exactly as published, matching the record stream's
// "stable JSON-compatible schema" requirement (spec §6).
func (e *Envelope) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	wire := wireEnvelope{From: e.From, Timestamp: e.Timestamp}
	if e.Payload != nil {
		raw, err := protojson.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		wire.Payload = raw
	}
	if len(e.Flags) > 0 {
		wire.Flags = make(map[string]bool, len(e.Flags))
		for f := range e.Flags {
			wire.Flags[string(f)] = true
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.From = wire.From
	e.Timestamp = wire.Timestamp
	if len(wire.Payload) > 0 {
		payload := &structpb.Struct{}
		if err := protojson.Unmarshal(wire.Payload, payload); err != nil {
			return err
		}
		e.Payload = payload
	}
	if len(wire.Flags) > 0 {
		e.Flags = make(map[Flag]struct{}, len(wire.Flags))
		for f := range wire.Flags {
			e.Flags[Flag(f)] = struct{}{}
		}
	}
	return nil
}
