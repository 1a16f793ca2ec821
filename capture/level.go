package capture

import (
	"math"
	"sync"
	"time"
)

const (
	// Ratio of current amplitude to the rolling background level
	// above which a sample counts as speech.
	vadThreshold = 2.22

	// Number of recent amplitude samples kept for the background
	// noise estimate.
	backgroundBufferSize = 50
)

// Level is one loudness sample delivered to the level callback.
type Level struct {
	// Value is normalized loudness in [0,100].
	Value int

	// Speaking reports whether the current amplitude stands out
	// against the rolling background noise estimate. Diagnostic
	// only; it never gates segment emission.
	Speaking bool

	At time.Time
}

// meter samples frame amplitude on its own timer, decoupled from chunk
// framing. It shares no state with the encoder lifecycle.
type meter struct {
	mu               sync.Mutex
	amplitude        float64
	backgroundBuffer []float64
	backgroundNoise  float64

	stop chan struct{}
	done chan struct{}
}

func newMeter() *meter {
	return &meter{
		backgroundBuffer: make([]float64, 0, backgroundBufferSize),
	}
}

// feed records the amplitude of one frame. Called from the source's
// delivery path.
func (m *meter) feed(frame []int16) {
	if len(frame) == 0 {
		return
	}
	var total float64
	for _, sample := range frame {
		total += math.Abs(float64(sample))
	}
	amplitude := total / float64(len(frame))

	m.mu.Lock()
	m.amplitude = amplitude
	if len(m.backgroundBuffer) >= backgroundBufferSize {
		m.backgroundBuffer = m.backgroundBuffer[1:]
	}
	m.backgroundBuffer = append(m.backgroundBuffer, amplitude)
	var sum float64
	for _, a := range m.backgroundBuffer {
		sum += a
	}
	m.backgroundNoise = sum / float64(len(m.backgroundBuffer))
	m.mu.Unlock()
}

func (m *meter) sample() Level {
	m.mu.Lock()
	amplitude := m.amplitude
	noise := m.backgroundNoise
	m.mu.Unlock()

	value := int(math.Round(amplitude * 100 / 32767))
	if value > 100 {
		value = 100
	}
	speaking := noise > 0 && amplitude/noise > vadThreshold
	return Level{Value: value, Speaking: speaking, At: time.Now()}
}

func (m *meter) start(interval time.Duration, onLevel func(Level)) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if onLevel != nil {
					onLevel(m.sample())
				}
			}
		}
	}(m.stop, m.done)
}

func (m *meter) shutdown() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
}
