package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// pcm16 quantises a sine to 16-bit samples.
func pcm16(freq float64, sampleRate, n int) []int16 {
	out := make([]int16, n)
	for i, v := range sine(freq, sampleRate, n, 0.5) {
		out[i] = int16(math.Round(v * math.MaxInt16))
	}
	return out
}

// extensibleWAV builds a 16-bit WAVE_FORMAT_EXTENSIBLE file with a PCM
// sub-format GUID.
func extensibleWAV(channels [][]int16, sampleRate int) []byte {
	numCh := len(channels)
	frames := len(channels[0])
	blockAlign := numCh * 2
	dataSize := frames * blockAlign

	var b bytes.Buffer
	le := func(v any) { binary.Write(&b, binary.LittleEndian, v) }

	b.WriteString("RIFF")
	le(uint32(4 + (8 + 40) + (8 + dataSize)))
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	le(uint32(40))
	le(uint16(wavFormatExtensible))
	le(uint16(numCh))
	le(uint32(sampleRate))
	le(uint32(sampleRate * blockAlign))
	le(uint16(blockAlign))
	le(uint16(16))
	le(uint16(22))           // cbSize
	le(uint16(16))           // valid bits
	le(uint32(1<<numCh - 1)) // channel mask
	b.Write([]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})

	b.WriteString("data")
	le(uint32(dataSize))
	for i := 0; i < frames; i++ {
		for c := range channels {
			le(channels[c][i])
		}
	}
	return b.Bytes()
}

func TestDecodeExtensibleWAV(t *testing.T) {
	tests := []struct {
		name       string
		channels   int
		sampleRate int
		frames     int
	}{
		{"mono 8k", 1, 8000, 8000},
		{"stereo 44.1k", 2, 44100, 11025},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := make([][]int16, tt.channels)
			for c := range src {
				src[c] = pcm16(330*float64(c+1), tt.sampleRate, tt.frames)
			}
			path := filepath.Join(t.TempDir(), "ext.wav")
			if err := os.WriteFile(path, extensibleWAV(src, tt.sampleRate), 0o644); err != nil {
				t.Fatal(err)
			}

			// No ffmpeg: the file must decode natively.
			got, err := Decode(context.Background(), path, DecodeConfig{FFmpegPath: "/nonexistent/ffmpeg"})
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.SampleRate != tt.sampleRate || got.NumChannels() != tt.channels || got.Frames() != tt.frames {
				t.Fatalf("got %d Hz x %d ch x %d frames, want %d x %d x %d",
					got.SampleRate, got.NumChannels(), got.Frames(), tt.sampleRate, tt.channels, tt.frames)
			}
			for c := range src {
				for _, i := range []int{0, 1, tt.frames / 2, tt.frames - 1} {
					want := float64(src[c][i]) / (1 << 15)
					if math.Abs(got.Channels[c][i]-want) > 1e-9 {
						t.Errorf("channel %d sample %d = %g, want %g", c, i, got.Channels[c][i], want)
					}
				}
			}
			if IsCanonicalWAV(path) {
				t.Error("extensible header should not be stored verbatim")
			}
		})
	}
}

// writeFLAC encodes 16-bit samples as verbatim FLAC frames.
func writeFLAC(t *testing.T, path string, channels [][]int16, sampleRate int) {
	t.Helper()
	const blockSize = 4096
	frames := len(channels[0])

	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     uint8(len(channels)),
		BitsPerSample: 16,
		NSamples:      uint64(frames),
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	assignment := frame.ChannelsMono
	if len(channels) == 2 {
		assignment = frame.ChannelsLR
	}
	for start := 0; start < frames; start += blockSize {
		end := min(start+blockSize, frames)
		f := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(end - start),
				SampleRate:        uint32(sampleRate),
				Channels:          assignment,
				BitsPerSample:     16,
			},
		}
		for c := range channels {
			samples := make([]int32, end-start)
			for i := range samples {
				samples[i] = int32(channels[c][start+i])
			}
			f.Subframes = append(f.Subframes, &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  len(samples),
			})
		}
		if err := enc.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeFLAC(t *testing.T) {
	tests := []struct {
		name       string
		channels   int
		sampleRate int
		frames     int
	}{
		{"mono 8k", 1, 8000, 10000},
		{"stereo 44.1k", 2, 44100, 22050},
		{"stereo 48k", 2, 48000, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := make([][]int16, tt.channels)
			for c := range src {
				src[c] = pcm16(220*float64(c+1), tt.sampleRate, tt.frames)
			}
			path := filepath.Join(t.TempDir(), "tone.flac")
			writeFLAC(t, path, src, tt.sampleRate)

			got, err := Decode(context.Background(), path, DecodeConfig{FFmpegPath: "/nonexistent/ffmpeg"})
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.SampleRate != tt.sampleRate {
				t.Errorf("sample rate = %d, want %d", got.SampleRate, tt.sampleRate)
			}
			if got.NumChannels() != tt.channels {
				t.Errorf("channels = %d, want %d", got.NumChannels(), tt.channels)
			}
			if got.Frames() != tt.frames {
				t.Fatalf("frames = %d, want %d", got.Frames(), tt.frames)
			}
			for c := range src {
				for i := 0; i < tt.frames; i += 997 {
					want := float64(src[c][i]) / (1 << 15)
					if math.Abs(got.Channels[c][i]-want) > 1e-9 {
						t.Fatalf("channel %d sample %d = %g, want %g", c, i, got.Channels[c][i], want)
					}
				}
			}
		})
	}
}
