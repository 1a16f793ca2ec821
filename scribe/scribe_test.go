package scribe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	cases := map[string]struct {
		input string
		want  string
	}{
		"empty":            {"", ""},
		"single line":      {"hello world\n", "hello world"},
		"multiple lines":   {"first part\nsecond part\n", "first part second part"},
		"blank audio only": {"[BLANK_AUDIO]\n", ""},
		"mixed": {
			"  hello there  \n\n[BLANK_AUDIO]\ngeneral meeting\n",
			"hello there general meeting",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractText(tc.input))
		})
	}
}

func newTestScribe(t *testing.T) (*Scribe, string) {
	t.Helper()
	spool := t.TempDir()
	s, err := New(Config{SpoolDir: spool, WhisperPath: "whisper", WhisperModel: "model.bin"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.watcher.Close() })
	return s, spool
}

func TestSpoolEventQueuesSegment(t *testing.T) {
	s, spool := newTestScribe(t)

	day := time.Now().Format("20060102")
	sessionID := uuid.NewString()
	sessionDir := filepath.Join(spool, day, sessionID)
	require.NoError(t, os.MkdirAll(sessionDir, 0755))

	require.NoError(t, s.handleFSEvent(fsnotify.Event{
		Name: sessionDir,
		Op:   fsnotify.Create,
	}))
	_, ok := s.sessions.Load(sessionID)
	assert.True(t, ok, "session history initialized on directory create")

	segPath := filepath.Join(sessionDir, "seg_000001.wav")
	require.NoError(t, os.WriteFile(segPath, []byte("x"), 0644))
	require.NoError(t, s.handleFSEvent(fsnotify.Event{
		Name: segPath,
		Op:   fsnotify.Create,
	}))

	select {
	case job := <-s.queue:
		assert.Equal(t, segPath, job.FilePath)
		assert.Equal(t, sessionID, job.SessionID)
	default:
		t.Fatal("expected a queued transcription job")
	}
}

func TestSpoolEventIgnoresForeignFiles(t *testing.T) {
	s, spool := newTestScribe(t)
	day := time.Now().Format("20060102")

	cases := []string{
		filepath.Join(spool, day, "not-a-uuid", "seg_000001.wav"),
		filepath.Join(spool, day, uuid.NewString(), "notes.txt"),
		filepath.Join(spool, day, uuid.NewString(), "seg_000001.wav.tmp"),
		filepath.Join(spool, "19990101", uuid.NewString(), "seg_000001.wav"),
	}
	for _, path := range cases {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		require.NoError(t, s.handleFSEvent(fsnotify.Event{Name: path, Op: fsnotify.Create}))
	}

	select {
	case job := <-s.queue:
		t.Fatalf("unexpected job queued: %+v", job)
	default:
	}
}

func TestHistorySnapshots(t *testing.T) {
	s, _ := newTestScribe(t)

	_, ok := s.History("missing")
	assert.False(t, ok)

	sessionID := uuid.NewString()
	value, _ := s.sessions.LoadOrStore(sessionID, &sessionHistory{})
	history := value.(*sessionHistory)
	history.add(TranscriptEntry{Text: "first"})
	history.add(TranscriptEntry{Text: "second"})

	entries, ok := s.History(sessionID)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Text)

	// The snapshot is detached from later writes.
	history.add(TranscriptEntry{Text: "third"})
	assert.Len(t, entries, 2)
}
