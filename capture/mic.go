package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// MicSource captures from a hardware input device through PortAudio.
type MicSource struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	opened bool
}

func NewMicSource() *MicSource { return &MicSource{} }

func (m *MicSource) Name() string { return "portaudio" }

func (m *MicSource) Open(cfg Config, onFrame func([]int16)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened {
		return ErrAlreadyInitialized
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	}

	device, err := findInputDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return err
	}

	slog.Info("Using audio input device",
		"deviceName", device.Name,
		"sampleRate", cfg.SampleRate,
		"channels", cfg.Channels)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		onFrame(in)
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	m.stream = stream
	m.opened = true
	return nil
}

func (m *MicSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return nil
	}
	m.opened = false

	if err := m.stream.Stop(); err != nil {
		slog.Error("Failed to stop audio stream", "error", err)
	}
	err := m.stream.Close()
	m.stream = nil
	portaudio.Terminate()
	return err
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	for _, device := range devices {
		if device.Name == name && device.MaxInputChannels > 0 {
			return device, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// DeviceInfo describes one available input device.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

// ListDevices enumerates input-capable audio devices. Enumeration
// failures never abort an in-progress recording; this opens its own
// short-lived PortAudio handle.
func ListDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	inputs := make([]DeviceInfo, 0, len(devices))
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputs = append(inputs, DeviceInfo{
				Name:              device.Name,
				MaxInputChannels:  device.MaxInputChannels,
				DefaultSampleRate: device.DefaultSampleRate,
			})
		}
	}
	return inputs, nil
}
