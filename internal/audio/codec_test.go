package audio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func sine(freq float64, sampleRate, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestWAVRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		channels   int
		sampleRate int
	}{
		{"mono 8k", 1, 8000},
		{"stereo 44.1k", 2, 44100},
		{"stereo 48k", 2, 48000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &Waveform{SampleRate: tt.sampleRate}
			for c := 0; c < tt.channels; c++ {
				wf.Channels = append(wf.Channels, sine(440*float64(c+1), tt.sampleRate, tt.sampleRate/4, 0.5))
			}

			path := filepath.Join(t.TempDir(), "tone.wav")
			if err := SaveWAV(path, wf); err != nil {
				t.Fatalf("SaveWAV failed: %v", err)
			}
			if !IsCanonicalWAV(path) {
				t.Error("saved file should be canonical 16-bit PCM")
			}

			got, err := Decode(context.Background(), path, DecodeConfig{})
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.SampleRate != tt.sampleRate {
				t.Errorf("sample rate = %d, want %d", got.SampleRate, tt.sampleRate)
			}
			if got.NumChannels() != tt.channels {
				t.Errorf("channels = %d, want %d", got.NumChannels(), tt.channels)
			}
			if got.Frames() != wf.Frames() {
				t.Fatalf("frames = %d, want %d", got.Frames(), wf.Frames())
			}

			tol := 1.5 / math.MaxInt16
			for c := range wf.Channels {
				for i := range wf.Channels[c] {
					if d := math.Abs(got.Channels[c][i] - wf.Channels[c][i]); d > tol {
						t.Fatalf("channel %d sample %d off by %g", c, i, d)
					}
				}
			}
		})
	}
}

func TestEncodeWAVClampsAndMatchesFile(t *testing.T) {
	wf := NewMono([]float64{2, -2, 0}, 8000)
	data, err := EncodeWAV(wf)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Fatalf("missing RIFF/WAVE header: % x", data[:12])
	}

	path := filepath.Join(t.TempDir(), "clamp.wav")
	if err := SaveWAV(path, wf); err != nil {
		t.Fatal(err)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, onDisk) {
		t.Error("EncodeWAV and SaveWAV should produce identical bytes")
	}

	got, err := Decode(context.Background(), path, DecodeConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Channels[0][0] <= 0.99 || got.Channels[0][1] >= -0.99 {
		t.Errorf("out-of-range samples should clamp to full scale, got %v", got.Channels[0][:2])
	}
}

func TestDecodeUnsupported(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("INVALID HEADER DATA"), 0o644); err != nil {
		t.Fatal(err)
	}
	fakeMP3 := filepath.Join(dir, "fake.mp3")
	if err := os.WriteFile(fakeMP3, bytes.Repeat([]byte{0}, 512), 0o644); err != nil {
		t.Fatal(err)
	}
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{garbage, fakeMP3, text} {
		_, err := Decode(context.Background(), path, DecodeConfig{})
		var ufe *UnsupportedFormatError
		if !errors.As(err, &ufe) {
			t.Errorf("Decode(%s) error = %v, want *UnsupportedFormatError", filepath.Base(path), err)
		}
	}
}

func TestAllowedExtension(t *testing.T) {
	tests := map[string]bool{
		"a.wav":      true,
		"B.MP3":      true,
		"c.Flac":     true,
		"d.ogg":      true,
		"e.m4a":      true,
		"f.aac":      false,
		"noext":      false,
		"archive.gz": false,
	}
	for name, want := range tests {
		if got := AllowedExtension(name); got != want {
			t.Errorf("AllowedExtension(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestConvertToWAV(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	src := filepath.Join(t.TempDir(), "stereo.wav")
	wf := &Waveform{
		Channels:   [][]float64{sine(440, 44100, 44100, 0.4), sine(880, 44100, 44100, 0.4)},
		SampleRate: 44100,
	}
	if err := SaveWAV(src, wf); err != nil {
		t.Fatal(err)
	}

	out, err := ConvertToWAV(context.Background(), src, t.TempDir(), ConvertWAVConfig{
		SampleRate: 11025,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("ConvertToWAV failed: %v", err)
	}

	got, err := Decode(context.Background(), out, DecodeConfig{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.SampleRate != 11025 || got.NumChannels() != 1 {
		t.Errorf("got %d Hz x %d channels, want 11025 x 1", got.SampleRate, got.NumChannels())
	}
	if math.Abs(got.Seconds()-1.0) > 0.01 {
		t.Errorf("duration = %fs, want ~1s", got.Seconds())
	}
}
