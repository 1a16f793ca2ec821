package capture

import "time"

const (
	DefaultSampleRate      = 44100
	DefaultChannels        = 1
	DefaultFramesPerBuffer = 1024

	// Minimum spacing between chunk boundaries. Cycling the encoder
	// faster than this spends more time settling than recording.
	MinChunkInterval = 250 * time.Millisecond

	// Delay between stopping one recording cycle and starting the
	// next. A restart issued on the heels of a stop can race it and
	// leave the encoder mid-flush.
	settleDelay = 25 * time.Millisecond

	// Cadence of level-meter samples, independent of chunk framing.
	levelInterval = 100 * time.Millisecond
)

// Config is resolved once at Initialize and fixed for the lifetime of
// the capture session. Switching devices requires a fresh session.
type Config struct {
	SampleRate int
	Channels   int

	// Device selects an input by name; empty means the system default.
	Device string

	// Constraint hints forwarded to the source. Whether they take
	// effect depends on what the platform negotiates.
	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool

	// Narrowband requests the telephony profile (8 kHz mono G.711)
	// when the encoder preference list can satisfy it.
	Narrowband bool

	FramesPerBuffer int
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = DefaultFramesPerBuffer
	}
	return c
}
