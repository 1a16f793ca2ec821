package capture

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wav "github.com/youpy/go-wav"

	"github.com/quillaudio/quill/audio"
)

// fakeSource lets tests push frames by hand.
type fakeSource struct {
	mu      sync.Mutex
	onFrame func([]int16)
	opened  bool
	closes  int
	openErr error
}

func (f *fakeSource) Open(cfg Config, onFrame func([]int16)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.onFrame = onFrame
	f.opened = true
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.opened = false
	return nil
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) push(frame []int16) {
	f.mu.Lock()
	cb := f.onFrame
	f.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
}

// pump pushes a constant frame every period until the returned stop
// function is called.
func (f *fakeSource) pump(period time.Duration) (stop func()) {
	frame := make([]int16, 128)
	for i := range frame {
		frame[i] = 1000
	}
	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				f.push(frame)
			}
		}
	}()
	return func() {
		close(stopCh)
		<-done
	}
}

type segmentRecorder struct {
	mu       sync.Mutex
	segments []Segment
	times    []time.Time
}

func (r *segmentRecorder) record(seg Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = append(r.segments, seg)
	r.times = append(r.times, time.Now())
}

func (r *segmentRecorder) snapshot() []Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Segment, len(r.segments))
	copy(out, r.segments)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeSource, *segmentRecorder) {
	t.Helper()
	src := &fakeSource{}
	rec := &segmentRecorder{}
	engine := NewEngine(src, Callbacks{OnSegment: rec.record})
	return engine, src, rec
}

func TestChunkCycleSequenceNumbers(t *testing.T) {
	engine, src, rec := newTestEngine(t)

	require.NoError(t, engine.Initialize(Config{}))
	require.NoError(t, engine.StartRecording(MinChunkInterval, 0))

	stopPump := src.pump(5 * time.Millisecond)

	// Two full cycles plus a partial tail, 250ms interval.
	time.Sleep(2*MinChunkInterval + 120*time.Millisecond)
	stopPump()
	engine.Stop()

	segments := rec.snapshot()
	require.Len(t, segments, 3, "two full segments plus one partial on stop")
	for i, seg := range segments {
		assert.Equal(t, uint64(i+1), seg.Seq, "sequence numbers are 1..N with no gaps")
		assert.NotEmpty(t, seg.Data)
	}
}

func TestEverySegmentIndependentlyDecodable(t *testing.T) {
	engine, src, rec := newTestEngine(t)

	require.NoError(t, engine.Initialize(Config{}))
	require.NoError(t, engine.StartRecording(MinChunkInterval, 0))

	stopPump := src.pump(5 * time.Millisecond)
	time.Sleep(MinChunkInterval + 120*time.Millisecond)
	stopPump()
	engine.Stop()

	segments := rec.snapshot()
	require.NotEmpty(t, segments)

	for _, seg := range segments {
		// Each segment must decode with no bytes from any other.
		reader := wav.NewReader(bytes.NewReader(seg.Data))
		format, err := reader.Format()
		require.NoError(t, err, "segment %d has no standalone header", seg.Seq)
		assert.Equal(t, uint32(DefaultSampleRate), format.SampleRate)

		n := 0
		for {
			samples, err := reader.ReadSamples(1024)
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			n += len(samples)
		}
		assert.Greater(t, n, 0, "segment %d decodes to zero samples", seg.Seq)
	}
}

func TestPauseResumeKeepsCyclePhase(t *testing.T) {
	engine, src, rec := newTestEngine(t)

	require.NoError(t, engine.Initialize(Config{}))
	start := time.Now()
	require.NoError(t, engine.StartRecording(MinChunkInterval, 0))

	stopPump := src.pump(5 * time.Millisecond)
	defer stopPump()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, engine.PauseRecording())
	assert.Empty(t, rec.snapshot(), "pause itself must not emit a segment")

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, engine.ResumeRecording())
	assert.Empty(t, rec.snapshot(), "resume itself must not emit a segment")

	// The first boundary still fires at the original phase (~250ms
	// after start), not 250ms after the resume instant.
	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 1
	}, MinChunkInterval+150*time.Millisecond, 5*time.Millisecond)

	rec.mu.Lock()
	firstAt := rec.times[0]
	rec.mu.Unlock()
	elapsed := firstAt.Sub(start)
	assert.Less(t, elapsed, MinChunkInterval+80*time.Millisecond,
		"boundary fired as if rescheduled from the resume instant (at %v)", elapsed)

	engine.Stop()
}

func TestFullyPausedIntervalEmitsNothing(t *testing.T) {
	engine, src, rec := newTestEngine(t)

	require.NoError(t, engine.Initialize(Config{}))
	require.NoError(t, engine.StartRecording(MinChunkInterval, 0))
	require.NoError(t, engine.PauseRecording())

	stopPump := src.pump(5 * time.Millisecond)
	time.Sleep(MinChunkInterval + 100*time.Millisecond)
	stopPump()

	assert.Empty(t, rec.snapshot(), "an interval spent entirely paused has nothing to flush")
	engine.Stop()
	assert.Empty(t, rec.snapshot())
}

func TestStopIsIdempotent(t *testing.T) {
	engine, src, rec := newTestEngine(t)

	require.NoError(t, engine.Initialize(Config{}))
	require.NoError(t, engine.StartRecording(MinChunkInterval, 0))

	src.push(make([]int16, 256))
	engine.Stop()
	countAfterFirst := len(rec.snapshot())

	assert.NotPanics(t, func() { engine.Stop() })
	assert.NotPanics(t, func() { engine.Stop() })

	assert.Equal(t, countAfterFirst, len(rec.snapshot()),
		"repeat stops must not invoke callbacks")
	src.mu.Lock()
	assert.Equal(t, 1, src.closes, "source released exactly once")
	src.mu.Unlock()
}

func TestDoubleInitializeRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	require.NoError(t, engine.Initialize(Config{}))
	assert.ErrorIs(t, engine.Initialize(Config{}), ErrAlreadyInitialized)
	engine.Stop()

	// After a full stop the engine is back to pre-initialize state.
	assert.NoError(t, engine.Initialize(Config{}))
	engine.Stop()
}

func TestLifecycleErrors(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	assert.ErrorIs(t, engine.StartRecording(MinChunkInterval, 0), ErrNotInitialized)
	assert.ErrorIs(t, engine.PauseRecording(), ErrNotRecording)
	assert.ErrorIs(t, engine.ResumeRecording(), ErrNotRecording)

	require.NoError(t, engine.Initialize(Config{}))
	require.NoError(t, engine.StartRecording(MinChunkInterval, 0))
	assert.ErrorIs(t, engine.StartRecording(MinChunkInterval, 0), ErrAlreadyRecording)
	engine.Stop()
}

func TestInitializeOpenFailure(t *testing.T) {
	src := &fakeSource{openErr: ErrDeviceNotFound}
	engine := NewEngine(src, Callbacks{})

	err := engine.Initialize(Config{Device: "gone"})
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	// The failure left nothing initialized.
	assert.ErrorIs(t, engine.StartRecording(MinChunkInterval, 0), ErrNotInitialized)
}

func TestNilSourceUnsupported(t *testing.T) {
	engine := NewEngine(nil, Callbacks{})
	assert.ErrorIs(t, engine.Initialize(Config{}), ErrUnsupportedEnvironment)
}

func TestNarrowbandSegmentsAreULaw(t *testing.T) {
	src := &fakeSource{}
	rec := &segmentRecorder{}
	engine := NewEngine(src, Callbacks{OnSegment: rec.record})

	require.NoError(t, engine.Initialize(Config{
		SampleRate: 8000,
		Channels:   1,
		Narrowband: true,
	}))
	require.NoError(t, engine.StartRecording(MinChunkInterval, 0))

	src.push(make([]int16, 800))
	engine.Stop()

	segments := rec.snapshot()
	require.Len(t, segments, 1)
	info, err := audio.Inspect(segments[0].Data)
	require.NoError(t, err)
	assert.Equal(t, uint16(audio.FormatULaw), info.AudioFormat)
	assert.Equal(t, 8000, info.SampleRate)
}

func TestLastSegmentRetainedForOverlapHook(t *testing.T) {
	engine, src, rec := newTestEngine(t)

	require.NoError(t, engine.Initialize(Config{}))
	require.NoError(t, engine.StartRecording(MinChunkInterval, 50*time.Millisecond))

	stopPump := src.pump(5 * time.Millisecond)
	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 1
	}, 2*MinChunkInterval, 5*time.Millisecond)
	stopPump()

	last := engine.LastSegment()
	require.NotNil(t, last)
	segs := rec.snapshot()
	assert.Equal(t, segs[len(segs)-1].Seq, last.Seq)

	engine.Stop()
	assert.Nil(t, engine.LastSegment(), "stop resets to pre-initialize state")
}
