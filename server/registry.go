package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quillaudio/quill/scribe"
	"github.com/quillaudio/quill/transport"
)

// Session is one connected streaming client. The identifier is minted
// on connect and dies with the connection; reconnecting clients get a
// new one.
type Session struct {
	ID         uuid.UUID
	RemoteAddr string
	StartedAt  time.Time
	SpoolDir   string

	conn    *websocket.Conn
	writeMu sync.Mutex
	chunks  uint64
}

// nextChunk returns the next 1-based chunk number for this session.
func (s *Session) nextChunk() uint64 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.chunks++
	return s.chunks
}

// send serializes one control envelope onto the session's connection.
func (s *Session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Registry tracks live sessions and routes transcripts back to them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// PublishTranscript implements scribe.Publisher: a completed
// transcription goes back over the originating session's own
// connection. Sessions that disconnected before their transcription
// finished are dropped quietly.
func (r *Registry) PublishTranscript(sessionID string, entry scribe.TranscriptEntry) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		slog.Warn("Transcript for unparseable session ID", "sessionID", sessionID)
		return
	}

	sess, ok := r.Get(id)
	if !ok {
		slog.Debug("Transcript for departed session", "sessionID", sessionID)
		return
	}

	msg := transport.Transcript{
		Type:       transport.TypeTranscript,
		Text:       entry.Text,
		Timestamp:  entry.Timestamp,
		Confidence: entry.Confidence,
	}
	if err := sess.send(msg); err != nil {
		slog.Error("Failed to push transcript to session",
			"error", err,
			"sessionID", sessionID)
	}
}
