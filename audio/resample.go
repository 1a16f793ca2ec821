package audio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Sample rate the transcription engine requires.
const whisperSampleRate = 16000

// ResampleForWhisper converts a spooled segment to 16 kHz mono and
// writes it to a temporary file the caller must remove. The spool copy
// is left untouched.
func ResampleForWhisper(inputPath string) (string, error) {
	tmp, err := os.CreateTemp("", "quill_whisper_*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp.Close()

	cmd := exec.Command("ffmpeg",
		"-i", inputPath,
		"-ar", fmt.Sprintf("%d", whisperSampleRate),
		"-ac", "1",
		"-y",
		tmp.Name())

	if err := cmd.Run(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to resample %s: %w", filepath.Base(inputPath), err)
	}
	return tmp.Name(), nil
}
