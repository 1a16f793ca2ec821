package scribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

func currentDateDir() string {
	return time.Now().Format("20060102")
}

// watchSpool follows the spool layout the ingest server writes:
// <spool>/<YYYYMMDD>/<sessionID>/seg_NNNNNN.wav. Day and session
// directories are picked up as they appear.
func (s *Scribe) watchSpool(ctx context.Context) {
	if err := os.MkdirAll(s.config.SpoolDir, 0755); err != nil {
		slog.Error("Failed to create spool directory",
			"error", err,
			"path", s.config.SpoolDir)
		return
	}
	if err := s.watcher.Add(s.config.SpoolDir); err != nil {
		slog.Error("Failed to watch spool directory",
			"error", err,
			"path", s.config.SpoolDir)
		return
	}
	slog.Info("Watching spool directory", "path", s.config.SpoolDir)

	// Today's directory may already exist from an earlier run.
	dayPath := filepath.Join(s.config.SpoolDir, currentDateDir())
	if err := os.MkdirAll(dayPath, 0755); err != nil {
		slog.Error("Failed to create day directory", "error", err, "path", dayPath)
		return
	}
	if err := s.watcher.Add(dayPath); err != nil {
		slog.Error("Failed to watch day directory", "error", err, "path", dayPath)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if err := s.handleFSEvent(event); err != nil {
				slog.Error("Failed to handle spool event",
					"error", err,
					"event", event)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Spool watcher error", "error", err)
		}
	}
}

func (s *Scribe) handleFSEvent(event fsnotify.Event) error {
	if strings.HasSuffix(event.Name, ".tmp") || event.Op != fsnotify.Create {
		return nil
	}

	relPath, err := filepath.Rel(s.config.SpoolDir, event.Name)
	if err != nil {
		return fmt.Errorf("failed to get relative path: %w", err)
	}

	parts := strings.Split(relPath, string(filepath.Separator))

	// New day directory.
	if len(parts) == 1 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.watcher.Add(event.Name); err != nil {
				return fmt.Errorf("failed to watch day directory: %w", err)
			}
			slog.Info("Watching new day directory", "path", event.Name)
		}
		return nil
	}

	// Only today's tree matters.
	if parts[0] != currentDateDir() {
		return nil
	}

	// New session directory.
	if len(parts) == 2 {
		if _, err := uuid.Parse(parts[1]); err != nil {
			return nil
		}
		return s.handleNewSession(parts[1], event.Name)
	}

	// New segment file.
	if len(parts) == 3 {
		sessionID := parts[1]
		if _, err := uuid.Parse(sessionID); err != nil {
			return nil
		}
		if !strings.HasSuffix(parts[2], ".wav") {
			return nil
		}
		return s.handleNewSegment(sessionID, event.Name)
	}

	return nil
}

func (s *Scribe) handleNewSession(sessionID, fullPath string) error {
	if err := s.watcher.Add(fullPath); err != nil {
		return fmt.Errorf("failed to watch session directory: %w", err)
	}

	s.sessions.LoadOrStore(sessionID, &sessionHistory{})

	slog.Info("New session spool detected",
		"sessionID", sessionID,
		"path", fullPath)
	return nil
}

func (s *Scribe) handleNewSegment(sessionID, filePath string) error {
	job := transcriptionJob{
		FilePath:  filePath,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}

	select {
	case s.queue <- job:
		slog.Debug("Queued segment for transcription",
			"sessionID", sessionID,
			"file", filepath.Base(filePath))
	default:
		return fmt.Errorf("transcription queue is full")
	}
	return nil
}
