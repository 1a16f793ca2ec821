package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillaudio/quill/audio"
)

func TestSelectEncoderDefaultsToPCM(t *testing.T) {
	enc, err := selectEncoder(Config{}.withDefaults())
	require.NoError(t, err)
	assert.Equal(t, "wav/pcm16", enc.Name())
}

func TestSelectEncoderPrefersULawForNarrowband(t *testing.T) {
	cfg := Config{SampleRate: 8000, Channels: 1, Narrowband: true}.withDefaults()
	enc, err := selectEncoder(cfg)
	require.NoError(t, err)
	assert.Equal(t, "wav/g711u", enc.Name())
}

func TestNarrowbandFallsBackOutsideTelephonyProfile(t *testing.T) {
	// Narrowband requested but the rate cannot carry G.711: the
	// preference list falls through to the always-supported default.
	cfg := Config{SampleRate: 44100, Channels: 1, Narrowband: true}.withDefaults()
	enc, err := selectEncoder(cfg)
	require.NoError(t, err)
	assert.Equal(t, "wav/pcm16", enc.Name())
}

func TestEncodersProduceStandaloneContainers(t *testing.T) {
	samples := make([]int16, 800)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	pcm := pcmEncoder{}.Encode(samples, Config{SampleRate: 44100, Channels: 1})
	info, err := audio.Inspect(pcm)
	require.NoError(t, err)
	assert.Equal(t, uint16(audio.FormatPCM), info.AudioFormat)

	ulaw := ulawEncoder{}.Encode(samples, Config{SampleRate: 8000, Channels: 1})
	info, err = audio.Inspect(ulaw)
	require.NoError(t, err)
	assert.Equal(t, uint16(audio.FormatULaw), info.AudioFormat)
	assert.Less(t, len(ulaw), len(pcm), "mu-law halves the payload")
}
