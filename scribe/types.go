package scribe

import (
	"sync"
	"time"
)

// TranscriptEntry is one transcribed segment, kept in per-session
// history and handed to the publisher.
type TranscriptEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
	AudioFile  string    `json:"audioFile"`
	Confidence float32   `json:"confidence"`
}

// sessionHistory holds all entries for one session.
type sessionHistory struct {
	mu      sync.Mutex
	Entries []TranscriptEntry
}

func (h *sessionHistory) add(entry TranscriptEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Entries = append(h.Entries, entry)
}

func (h *sessionHistory) snapshot() []TranscriptEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TranscriptEntry, len(h.Entries))
	copy(out, h.Entries)
	return out
}

// transcriptionJob is one spooled segment awaiting the worker pool.
type transcriptionJob struct {
	FilePath  string
	SessionID string
	Timestamp time.Time
}

// Publisher receives completed transcriptions for delivery back to the
// originating session.
type Publisher interface {
	PublishTranscript(sessionID string, entry TranscriptEntry)
}
