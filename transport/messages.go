package transport

import (
	"encoding/json"
	"time"
)

// Wire protocol: outbound audio travels as raw binary frames, one
// complete container per frame, no envelope. Inbound control messages
// are JSON envelopes discriminated by a "type" field. Unrecognized
// types decode to Unknown and are deliberately inert so new server
// message kinds never break older clients.

const (
	TypeConnected  = "connected"
	TypeAck        = "ack"
	TypeTranscript = "transcript"
	TypeError      = "error"
)

// Connected is the first envelope after the socket opens; it carries
// the server-assigned session identifier. Informational only; sending
// never waits for it.
type Connected struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Ack confirms receipt of one chunk. Diagnostics only; never drives
// retry or backoff.
type Ack struct {
	Type        string `json:"type"`
	ChunkNumber uint64 `json:"chunk_number"`
	Size        int    `json:"size"`
}

// Transcript carries one piece of recognized text. Transcripts have no
// ordering relationship to segment boundaries; the backend may take
// longer than a chunk interval per segment.
type Transcript struct {
	Type       string    `json:"type"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float32   `json:"confidence,omitempty"`
	Speaker    string    `json:"speaker,omitempty"`
}

// ServerError is a server-reported fault. The connection stays open
// unless the server also closes it.
type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Unknown is the inert default case for unrecognized discriminants.
type Unknown struct {
	Type string
}

type inbound interface{ inboundMessage() }

func (Connected) inboundMessage()   {}
func (Ack) inboundMessage()         {}
func (Transcript) inboundMessage()  {}
func (ServerError) inboundMessage() {}
func (Unknown) inboundMessage()     {}

func decodeInbound(data []byte) (inbound, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case TypeConnected:
		var m Connected
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeAck:
		var m Ack
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeTranscript:
		var m Transcript
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeError:
		var m ServerError
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return Unknown{Type: probe.Type}, nil
	}
}
