// Package audio handles the raw speech payloads returned by the backend: 24 kHz mono
// signed 16-bit little-endian PCM.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	SampleRate    = 24000
	Channels      = 1
	BitsPerSample = 16

	bytesPerFrame = Channels * BitsPerSample / 8
	byteRate      = SampleRate * bytesPerFrame
)

// Duration is the playback length of pcm. A trailing partial frame is ignored.
func Duration(pcm []byte) time.Duration {
	frames := len(pcm) / bytesPerFrame
	return time.Duration(frames) * time.Second / SampleRate
}

// Samples decodes pcm into signed samples.
func Samples(pcm []byte) ([]int16, error) {
	if len(pcm)%bytesPerFrame != 0 {
		return nil, fmt.Errorf("pcm length %d is not a multiple of %d", len(pcm), bytesPerFrame)
	}
	out := make([]int16, len(pcm)/2)
	if err := binary.Read(bytes.NewReader(pcm), binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

type wavHeader struct {
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

const wavHeaderSize = 44

// WAV wraps pcm in a canonical 44-byte RIFF header so any player can open it.
func WAV(pcm []byte) []byte {
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   Channels,
		SampleRate:    SampleRate,
		ByteRate:      byteRate,
		BlockAlign:    bytesPerFrame,
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	_ = binary.Write(&buf, binary.LittleEndian, h)
	buf.Write(pcm)
	return buf.Bytes()
}

// PCMFromWAV strips the header written by WAV.
func PCMFromWAV(wav []byte) ([]byte, error) {
	if len(wav) < wavHeaderSize {
		return nil, fmt.Errorf("wav too short: %d bytes", len(wav))
	}
	var h wavHeader
	if err := binary.Read(bytes.NewReader(wav[:wavHeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" || string(h.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("not a canonical wav file")
	}
	end := wavHeaderSize + int(h.Subchunk2Size)
	if end > len(wav) {
		end = len(wav)
	}
	return wav[wavHeaderSize:end], nil
}
