package scribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/quillaudio/quill/audio"
)

func (s *Scribe) worker(ctx context.Context) {
	slog.Debug("Transcription worker starting")
	defer func() {
		slog.Debug("Transcription worker shutting down")
		s.workers.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case job, ok := <-s.queue:
			if !ok {
				return
			}
			if err := s.processJob(ctx, job); err != nil {
				slog.Error("Failed to process transcription job",
					"error", err,
					"file", job.FilePath,
					"sessionID", job.SessionID)
			}
		}
	}
}

func (s *Scribe) processJob(ctx context.Context, job transcriptionJob) error {
	slog.Info("Transcribing segment",
		"file", filepath.Base(job.FilePath),
		"sessionID", job.SessionID)

	// Whisper wants 16 kHz mono; the spool keeps whatever the client
	// captured. Resample to a scratch file and clean it up after.
	whisperInput, err := audio.ResampleForWhisper(job.FilePath)
	if err != nil {
		return err
	}
	defer os.Remove(whisperInput)

	cmd := exec.CommandContext(ctx, s.config.WhisperPath,
		"--model", s.config.WhisperModel,
		whisperInput)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			slog.Debug("Whisper command failed",
				"stderr", string(exitErr.Stderr),
				"exitCode", exitErr.ExitCode())
		}
		return fmt.Errorf("whisper execution failed: %w", err)
	}

	text := extractText(string(output))
	if text == "" {
		slog.Info("No transcribable content in segment",
			"file", filepath.Base(job.FilePath),
			"sessionID", job.SessionID)
		return nil
	}

	entry := TranscriptEntry{
		Timestamp:  job.Timestamp,
		Text:       text,
		AudioFile:  filepath.Base(job.FilePath),
		Confidence: 1.0,
	}

	value, _ := s.sessions.LoadOrStore(job.SessionID, &sessionHistory{})
	value.(*sessionHistory).add(entry)

	if s.publisher != nil {
		s.publisher.PublishTranscript(job.SessionID, entry)
	}

	slog.Info("Segment transcribed",
		"sessionID", job.SessionID,
		"file", filepath.Base(job.FilePath),
		"text", text)
	return nil
}

// extractText flattens whisper's subtitle-style output into one line,
// dropping blank-audio markers.
func extractText(output string) string {
	var builder strings.Builder

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "[BLANK_AUDIO]") {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(line)
	}

	return strings.TrimSpace(builder.String())
}
