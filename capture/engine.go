package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Segment is one independently decodable unit of recorded audio. The
// bytes alone are a complete container; no segment depends on headers
// flushed in an earlier one.
type Segment struct {
	// Seq starts at 1 and increases by one per emitted segment for
	// the lifetime of a recording. Never reused, never skipped.
	Seq        uint64
	Data       []byte
	CapturedAt time.Time
}

// Callbacks deliver engine output. They are invoked from engine-owned
// goroutines; segment callbacks arrive in sequence order.
type Callbacks struct {
	OnSegment func(Segment)
	OnLevel   func(Level)
	OnError   func(error)
}

// Engine owns one capture source, one segment encoder, and a level
// meter. Chunk boundaries are produced by cycling the encoder: each
// interval the active accumulation is stopped, flushed as a complete
// container, and after a short settle delay a fresh one begins on the
// same stream. Only a full stop guarantees self-contained output, so
// framing comes from encoder lifecycle transitions rather than any
// mid-stream flush.
type Engine struct {
	src   Source
	cbs   Callbacks
	meter *meter

	mu          sync.Mutex
	cfg         Config
	enc         Encoder
	initialized bool
	recording   bool
	paused      bool
	cycling     bool
	seq         uint64
	buf         []int16
	last        *Segment
	overlap     time.Duration

	stopCycle chan struct{}
	cycleDone chan struct{}
}

// NewEngine binds an engine to a capture source. The source strategy
// is fixed per session; swapping inputs means a new engine.
func NewEngine(src Source, cbs Callbacks) *Engine {
	return &Engine{src: src, cbs: cbs, meter: newMeter()}
}

// Initialize acquires the capture source and prepares the encoder and
// level meter. The engine owns the source exclusively until Stop. A
// second Initialize while active is rejected.
func (e *Engine) Initialize(cfg Config) error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return ErrAlreadyInitialized
	}
	if e.src == nil {
		e.mu.Unlock()
		return ErrUnsupportedEnvironment
	}

	cfg = cfg.withDefaults()
	enc, err := selectEncoder(cfg)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.cfg = cfg
	e.enc = enc
	e.initialized = true
	e.mu.Unlock()

	if err := e.src.Open(cfg, e.onFrame); err != nil {
		e.mu.Lock()
		e.initialized = false
		e.mu.Unlock()
		return err
	}

	e.meter.start(levelInterval, e.cbs.OnLevel)

	slog.Debug("Capture engine initialized",
		"source", e.src.Name(),
		"encoder", enc.Name(),
		"sampleRate", cfg.SampleRate,
		"channels", cfg.Channels)
	return nil
}

func (e *Engine) onFrame(frame []int16) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return
	}
	e.meter.feed(frame)
	if e.recording && !e.paused && !e.cycling {
		e.buf = append(e.buf, frame...)
	}
	e.mu.Unlock()
}

// StartRecording begins accumulating audio and cycling the encoder
// every chunkInterval. overlap is accepted for future boundary-word
// protection but performs no splicing; naive concatenation of two
// containers is not valid overlapping audio.
func (e *Engine) StartRecording(chunkInterval, overlap time.Duration) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if e.recording {
		e.mu.Unlock()
		return ErrAlreadyRecording
	}
	if chunkInterval < MinChunkInterval {
		slog.Warn("Chunk interval below minimum, clamping",
			"requested", chunkInterval,
			"minimum", MinChunkInterval)
		chunkInterval = MinChunkInterval
	}

	e.recording = true
	e.paused = false
	e.seq = 0
	e.buf = nil
	e.last = nil
	e.overlap = overlap
	e.stopCycle = make(chan struct{})
	e.cycleDone = make(chan struct{})
	stop, done := e.stopCycle, e.cycleDone
	e.mu.Unlock()

	go e.runCycles(chunkInterval, stop, done)

	slog.Info("Recording started",
		"chunkInterval", chunkInterval,
		"overlap", overlap)
	return nil
}

func (e *Engine) runCycles(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.cycle()
		}
	}
}

// cycle stops the active accumulation, flushes it as one complete
// container, and restarts after the settle delay. Frames arriving
// inside the settle window are dropped, same as they would be between
// a recorder's stop event and the next start.
func (e *Engine) cycle() {
	e.mu.Lock()
	if !e.recording {
		e.mu.Unlock()
		return
	}
	samples := e.buf
	e.buf = nil
	e.cycling = true
	e.mu.Unlock()

	e.emit(samples)

	time.Sleep(settleDelay)

	e.mu.Lock()
	e.cycling = false
	e.mu.Unlock()
}

func (e *Engine) emit(samples []int16) {
	if len(samples) == 0 {
		return
	}

	e.mu.Lock()
	enc, cfg := e.enc, e.cfg
	e.seq++
	seg := Segment{
		Seq:        e.seq,
		Data:       enc.Encode(samples, cfg),
		CapturedAt: time.Now(),
	}
	e.last = &seg
	e.mu.Unlock()

	slog.Debug("Segment emitted",
		"seq", seg.Seq,
		"bytes", len(seg.Data),
		"samples", len(samples))

	if e.cbs.OnSegment != nil {
		e.cbs.OnSegment(seg)
	}
}

// PauseRecording suspends accumulation without tearing down the stream
// or resetting the cycle timer's phase. No segment is emitted for the
// transition itself.
func (e *Engine) PauseRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recording {
		return ErrNotRecording
	}
	e.paused = true
	return nil
}

// ResumeRecording continues a paused recording. The next chunk
// boundary fires at its originally scheduled phase.
func (e *Engine) ResumeRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recording {
		return ErrNotRecording
	}
	e.paused = false
	return nil
}

// Stop terminates the cycle timer, flushes any partial final segment,
// tears down the level meter, and releases the source. Safe to call
// multiple times and from any state; repeat calls invoke no callbacks.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return
	}
	wasRecording := e.recording
	e.recording = false
	stop, done := e.stopCycle, e.cycleDone
	e.stopCycle, e.cycleDone = nil, nil
	e.mu.Unlock()

	if wasRecording && stop != nil {
		close(stop)
		<-done
	}

	e.mu.Lock()
	samples := e.buf
	e.buf = nil
	// keep recording=false but allow the final flush to number itself
	e.mu.Unlock()
	e.emit(samples)

	e.meter.shutdown()

	if err := e.src.Close(); err != nil {
		slog.Error("Failed to release capture source", "error", err)
		if e.cbs.OnError != nil {
			e.cbs.OnError(fmt.Errorf("capture: source release failed: %w", err))
		}
	}

	e.mu.Lock()
	e.initialized = false
	e.paused = false
	e.seq = 0
	e.last = nil
	e.mu.Unlock()

	slog.Info("Capture engine stopped", "finalFlush", len(samples) > 0)
}

// LastSegment returns the most recently emitted segment, retained
// solely as the hook for a future overlap feature, or nil.
func (e *Engine) LastSegment() *Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Recording reports whether a recording is active (paused counts).
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}
