// Package scribe turns spooled audio segments into transcripts. A
// filesystem watcher feeds newly spooled segments to a whisper worker
// pool; results are stored per session and pushed to a publisher.
package scribe

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Config for the transcription service.
type Config struct {
	// SpoolDir is the directory the ingest server writes segments to.
	SpoolDir string

	// WhisperPath is the whisper executable.
	WhisperPath string

	// WhisperModel is the model file passed to whisper.
	WhisperModel string

	// Workers is the number of concurrent transcription workers.
	Workers int
}

// Scribe manages the transcription pipeline.
type Scribe struct {
	config    Config
	publisher Publisher

	watcher *fsnotify.Watcher

	// per-session transcript history
	sessions sync.Map // map[string]*sessionHistory

	queue   chan transcriptionJob
	workers sync.WaitGroup
}

// New creates a Scribe. The publisher may be nil, in which case
// transcripts are only kept in history.
func New(cfg Config, pub Publisher) (*Scribe, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Scribe{
		config:    cfg,
		publisher: pub,
		watcher:   watcher,
		queue:     make(chan transcriptionJob, 100),
	}, nil
}

// Start launches the worker pool and the spool watcher.
func (s *Scribe) Start(ctx context.Context) error {
	for i := 0; i < s.config.Workers; i++ {
		s.workers.Add(1)
		go s.worker(ctx)
	}

	go s.watchSpool(ctx)
	return nil
}

// Stop drains the worker pool and closes the watcher.
func (s *Scribe) Stop(ctx context.Context) error {
	close(s.queue)

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out")
	}

	if err := s.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close spool watcher: %w", err)
	}
	return nil
}

// History returns a copy of the transcript history for one session.
func (s *Scribe) History(sessionID string) ([]TranscriptEntry, bool) {
	value, ok := s.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return value.(*sessionHistory).snapshot(), true
}
