package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/zaf/g711"
)

// WAV audio format codes used in the fmt chunk.
const (
	FormatPCM  = 1
	FormatULaw = 7
)

const headerSize = 44

// WavHeader is a canonical 44-byte RIFF/WAVE header with a single
// fmt and data chunk. Every segment this package produces carries a
// complete header so each segment decodes on its own.
type WavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

func newHeader(format uint16, sampleRate, channels, bitsPerSample int, dataSize uint32) WavHeader {
	blockAlign := uint16(channels * bitsPerSample / 8)
	return WavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + 36,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   format,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: uint16(bitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

func (h WavHeader) append(dst []byte) []byte {
	dst = append(dst, h.ChunkID[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, h.ChunkSize)
	dst = append(dst, h.Format[:]...)
	dst = append(dst, h.Subchunk1ID[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, h.Subchunk1Size)
	dst = binary.LittleEndian.AppendUint16(dst, h.AudioFormat)
	dst = binary.LittleEndian.AppendUint16(dst, h.NumChannels)
	dst = binary.LittleEndian.AppendUint32(dst, h.SampleRate)
	dst = binary.LittleEndian.AppendUint32(dst, h.ByteRate)
	dst = binary.LittleEndian.AppendUint16(dst, h.BlockAlign)
	dst = binary.LittleEndian.AppendUint16(dst, h.BitsPerSample)
	dst = append(dst, h.Subchunk2ID[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, h.Subchunk2Size)
	return dst
}

// EncodePCM16 builds a complete WAV container from 16-bit PCM samples.
func EncodePCM16(samples []int16, sampleRate, channels int) []byte {
	dataSize := uint32(len(samples) * 2)
	out := make([]byte, 0, headerSize+int(dataSize))
	out = newHeader(FormatPCM, sampleRate, channels, 16, dataSize).append(out)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

// EncodeULaw builds a complete WAV container holding G.711 mu-law
// data compressed from 16-bit PCM samples.
func EncodeULaw(samples []int16, sampleRate, channels int) []byte {
	lpcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(lpcm[i*2:], uint16(s))
	}
	data := g711.EncodeUlaw(lpcm)

	out := make([]byte, 0, headerSize+len(data))
	out = newHeader(FormatULaw, sampleRate, channels, 8, uint32(len(data))).append(out)
	return append(out, data...)
}

// Info summarizes a parsed container header.
type Info struct {
	AudioFormat   uint16
	NumChannels   int
	SampleRate    int
	BitsPerSample int
	DataSize      int
	Duration      float64 // seconds
}

// Inspect validates that data begins with a well-formed WAV header and
// returns its parameters. The ingest side uses it to reject frames that
// are not standalone containers before they reach the spool.
func Inspect(data []byte) (Info, error) {
	if len(data) < headerSize {
		return Info{}, fmt.Errorf("container too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("not a RIFF/WAVE container")
	}
	if string(data[12:16]) != "fmt " {
		return Info{}, fmt.Errorf("missing fmt chunk")
	}

	info := Info{
		AudioFormat:   binary.LittleEndian.Uint16(data[20:22]),
		NumChannels:   int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
	}
	if info.NumChannels == 0 || info.SampleRate == 0 || info.BitsPerSample == 0 {
		return Info{}, fmt.Errorf("degenerate fmt chunk")
	}
	if string(data[36:40]) != "data" {
		return Info{}, fmt.Errorf("missing data chunk")
	}

	declared := int(binary.LittleEndian.Uint32(data[40:44]))
	actual := len(data) - headerSize
	if declared > actual {
		return Info{}, fmt.Errorf("truncated data chunk: header declares %d bytes, %d present", declared, actual)
	}
	info.DataSize = declared

	bytesPerSec := info.SampleRate * info.NumChannels * info.BitsPerSample / 8
	if bytesPerSec > 0 {
		info.Duration = float64(info.DataSize) / float64(bytesPerSec)
	}
	return info, nil
}
