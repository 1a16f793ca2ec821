package capture

import (
	"math"
	"sync"
	"time"
)

// Source supplies raw PCM frames from some input. Exactly one engine
// owns a source at a time; Open acquires the input and Close releases
// it. The frame slice passed to onFrame is only valid for the duration
// of the call.
type Source interface {
	Open(cfg Config, onFrame func(frame []int16)) error
	Close() error
	Name() string
}

// SyntheticSource generates a sine tone in real time. It stands in for
// a microphone in tests and in -synthetic mode.
type SyntheticSource struct {
	// Freq is the tone frequency in Hz. Zero produces silence.
	Freq float64

	// Amplitude in [0,1] of full scale. Defaults to 0.5 when Freq is set.
	Amplitude float64

	// Interval between frame deliveries. Defaults to 10ms.
	Interval time.Duration

	mu     sync.Mutex
	opened bool
	stop   chan struct{}
	done   chan struct{}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

func (s *SyntheticSource) Open(cfg Config, onFrame func([]int16)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return ErrAlreadyInitialized
	}

	interval := s.Interval
	if interval == 0 {
		interval = 10 * time.Millisecond
	}
	amp := s.Amplitude
	if amp == 0 && s.Freq > 0 {
		amp = 0.5
	}

	frameLen := int(float64(cfg.SampleRate) * interval.Seconds())
	if frameLen < 1 {
		frameLen = 1
	}

	s.opened = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var phase float64
		step := 2 * math.Pi * s.Freq / float64(cfg.SampleRate)
		frame := make([]int16, frameLen*cfg.Channels)

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for i := 0; i < frameLen; i++ {
					v := int16(amp * 32767 * math.Sin(phase))
					phase += step
					for ch := 0; ch < cfg.Channels; ch++ {
						frame[i*cfg.Channels+ch] = v
					}
				}
				onFrame(frame)
			}
		}
	}(s.stop, s.done)

	return nil
}

func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	close(s.stop)
	<-s.done
	s.opened = false
	return nil
}
