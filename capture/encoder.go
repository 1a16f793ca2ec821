package capture

import "github.com/quillaudio/quill/audio"

// Encoder turns the PCM accumulated during one recording cycle into a
// single self-contained container. Nothing an encoder emits may depend
// on bytes from an earlier cycle.
type Encoder interface {
	Name() string
	Supports(cfg Config) bool
	Encode(samples []int16, cfg Config) []byte
}

type ulawEncoder struct{}

func (ulawEncoder) Name() string { return "wav/g711u" }

func (ulawEncoder) Supports(cfg Config) bool {
	return cfg.Narrowband && cfg.SampleRate == 8000 && cfg.Channels == 1
}

func (ulawEncoder) Encode(samples []int16, cfg Config) []byte {
	return audio.EncodeULaw(samples, cfg.SampleRate, cfg.Channels)
}

type pcmEncoder struct{}

func (pcmEncoder) Name() string { return "wav/pcm16" }

func (pcmEncoder) Supports(Config) bool { return true }

func (pcmEncoder) Encode(samples []int16, cfg Config) []byte {
	return audio.EncodePCM16(samples, cfg.SampleRate, cfg.Channels)
}

// encoderPreferences is ordered most specific first; PCM is the
// always-available fallback.
func encoderPreferences() []Encoder {
	return []Encoder{ulawEncoder{}, pcmEncoder{}}
}

func selectEncoder(cfg Config) (Encoder, error) {
	for _, enc := range encoderPreferences() {
		if enc.Supports(cfg) {
			return enc, nil
		}
	}
	return nil, ErrNoEncoder
}
