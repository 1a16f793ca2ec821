// Package session glues the capture engine and the transport client
// behind a small recording lifecycle state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quillaudio/quill/capture"
	"github.com/quillaudio/quill/transport"
)

// State is the recording lifecycle value exposed to the application.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopping  State = "stopping"
	StateError     State = "error"
)

// Capturer is the capture engine surface the coordinator drives.
type Capturer interface {
	Initialize() error
	StartRecording(chunkInterval, overlap time.Duration) error
	PauseRecording() error
	ResumeRecording() error
	Stop()
}

// Transport is the connection surface the coordinator drives.
type Transport interface {
	Connect(ctx context.Context) error
	SendAudio(data []byte)
	Disconnect()
}

// Config holds per-session tunables.
type Config struct {
	ChunkInterval time.Duration
	Overlap       time.Duration
}

// Callbacks deliver coordinator events. OnTranscript receives inbound
// transcripts in arrival order with no reordering or buffering.
type Callbacks struct {
	OnState      func(State)
	OnTranscript func(transport.Transcript)
}

// Coordinator composes one capturer and one transport into a single
// recording session. Both collaborators are chosen once, at
// construction; there is no runtime switching between capture
// backends.
type Coordinator struct {
	cfg Config
	cap Capturer
	tr  Transport
	cbs Callbacks

	mu    sync.Mutex
	state State
}

func New(cap Capturer, tr Transport, cfg Config, cbs Callbacks) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		cap:   cap,
		tr:    tr,
		cbs:   cbs,
		state: StateIdle,
	}
}

// Start connects the transport and brings up the capture engine. The
// two run as separate fallible steps; if either fails, the other is
// torn down so a failed start never leaves a half-open session. Start
// is also the only way out of the error state.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateError {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: cannot start from %s state", state)
	}
	c.mu.Unlock()
	c.setState(StateStarting)

	var wg sync.WaitGroup
	var connErr, capErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		connErr = c.tr.Connect(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := c.cap.Initialize(); err != nil {
			capErr = err
			return
		}
		capErr = c.cap.StartRecording(c.cfg.ChunkInterval, c.cfg.Overlap)
	}()
	wg.Wait()

	if connErr != nil || capErr != nil {
		c.cap.Stop()
		c.tr.Disconnect()
		c.setState(StateError)
		err := errors.Join(connErr, capErr)
		slog.Error("Session start failed", "error", err)
		return err
	}

	c.setState(StateRecording)
	slog.Info("Session recording", "chunkInterval", c.cfg.ChunkInterval)
	return nil
}

// Pause suspends capture without touching the transport.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	if c.state != StateRecording {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: cannot pause from %s state", state)
	}
	c.mu.Unlock()

	if err := c.cap.PauseRecording(); err != nil {
		return err
	}
	c.setState(StatePaused)
	return nil
}

// Resume continues a paused recording.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: cannot resume from %s state", state)
	}
	c.mu.Unlock()

	if err := c.cap.ResumeRecording(); err != nil {
		return err
	}
	c.setState(StateRecording)
	return nil
}

// Stop tears the session down: capture first, so the final partial
// segment flushes while the transport can still carry it, then the
// transport. Either side failing never blocks the other. No-op when
// already idle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateStopping {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.setState(StateStopping)
	c.cap.Stop()
	c.tr.Disconnect()
	c.setState(StateIdle)
	slog.Info("Session stopped")
}

// HandleSegment is the capture engine's segment callback. Segments are
// relayed in arrival order; the transport applies its own soft-drop
// policy when the connection is not ready.
func (c *Coordinator) HandleSegment(seg capture.Segment) {
	c.mu.Lock()
	active := c.state == StateRecording || c.state == StatePaused || c.state == StateStopping
	c.mu.Unlock()
	if !active {
		return
	}
	c.tr.SendAudio(seg.Data)
}

// HandleTranscript forwards one inbound transcript to the registered
// sink in arrival order.
func (c *Coordinator) HandleTranscript(t transport.Transcript) {
	if c.cbs.OnTranscript != nil {
		c.cbs.OnTranscript(t)
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.cbs.OnState != nil {
		c.cbs.OnState(s)
	}
}
