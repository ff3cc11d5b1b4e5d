package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
)

// AllowedExtensions lists the upload formats accepted at intake.
var AllowedExtensions = []string{"wav", "mp3", "ogg", "flac", "m4a"}

// Ext returns the lower-cased extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// AllowedExtension reports whether name carries one of AllowedExtensions.
func AllowedExtension(name string) bool {
	return slices.Contains(AllowedExtensions, Ext(name))
}

// DecodeConfig controls how containers that have no native Go decoder are
// handed to ffmpeg.
type DecodeConfig struct {
	FFmpegPath string
	TempDir    string
	Timeout    time.Duration
}

func (c DecodeConfig) withDefaults() DecodeConfig {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
	return c
}

// Decode reads the file at path into a Waveform, keeping the source sample
// rate and channel layout. The format is chosen from the file extension.
// Anything that cannot be decoded yields an *UnsupportedFormatError.
func Decode(ctx context.Context, path string, cfg DecodeConfig) (*Waveform, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	ext := Ext(path)

	var (
		wf  *Waveform
		err error
	)
	switch ext {
	case "wav":
		wf, err = decodeWAV(path)
		if errors.Is(err, errNeedsTranscode) {
			wf, err = decodeViaFFmpeg(ctx, path, cfg)
		}
	case "mp3":
		wf, err = decodeBeep(path, func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
			return mp3.Decode(f)
		})
	case "ogg":
		wf, err = decodeBeep(path, func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
			return vorbis.Decode(f)
		})
	case "flac":
		wf, err = decodeBeep(path, func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
			return flac.Decode(f)
		})
	case "m4a":
		wf, err = decodeViaFFmpeg(ctx, path, cfg)
	default:
		return nil, unsupported(ext, nil)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ufe *UnsupportedFormatError
		if errors.As(err, &ufe) {
			return nil, err
		}
		return nil, unsupported(ext, err)
	}
	if err := wf.Validate(); err != nil {
		return nil, unsupported(ext, err)
	}
	return wf, nil
}

// errNeedsTranscode marks WAV variants go-audio cannot read directly
// (float, 8-bit, compressed), which are sent through ffmpeg instead.
var errNeedsTranscode = errors.New("wav variant needs transcoding")

func decodeWAV(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readWAV(f)
}

// ReadWAV decodes an integer PCM WAV stream, such as a stored artifact.
func ReadWAV(r io.ReadSeeker) (*Waveform, error) {
	wf, err := readWAV(r)
	if err != nil {
		return nil, unsupported("wav", err)
	}
	if err := wf.Validate(); err != nil {
		return nil, unsupported("wav", err)
	}
	return wf, nil
}

// WAV format tags read natively. Extensible headers carry their sample
// layout in the same fields go-audio already parses.
const (
	wavFormatPCM        = 0x0001
	wavFormatExtensible = 0xFFFE
)

func readWAV(r io.ReadSeeker) (*Waveform, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid RIFF/WAVE file")
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, errNeedsTranscode
	}
	switch dec.BitDepth {
	case 16, 24, 32:
	default:
		return nil, errNeedsTranscode
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM buffer: %w", err)
	}
	return fromIntBuffer(buf, int(dec.BitDepth)), nil
}

// fromIntBuffer scales integer PCM into [-1, 1] floats.
func fromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) *Waveform {
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	data := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		data[i] = float64(v) * scale
	}
	return Deinterleave(data, buf.Format.NumChannels, buf.Format.SampleRate)
}

func decodeBeep(path string, open func(*os.File) (beep.StreamSeekCloser, beep.Format, error)) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stream, format, err := open(f)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	numChannels := format.NumChannels
	if numChannels < 1 {
		numChannels = 1
	}
	if numChannels > 2 {
		numChannels = 2
	}

	wf := &Waveform{
		Channels:   make([][]float64, numChannels),
		SampleRate: int(format.SampleRate),
	}
	if n := stream.Len(); n > 0 {
		for c := range wf.Channels {
			wf.Channels[c] = make([]float64, 0, n)
		}
	}

	block := make([][2]float64, 4096)
	for {
		n, ok := stream.Stream(block)
		for _, frame := range block[:n] {
			for c := range wf.Channels {
				wf.Channels[c] = append(wf.Channels[c], frame[c])
			}
		}
		if !ok {
			break
		}
	}
	// beep's flac decoder surfaces the end of the stream as io.EOF.
	if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return wf, nil
}

func decodeViaFFmpeg(ctx context.Context, path string, cfg DecodeConfig) (*Waveform, error) {
	wavPath, err := ConvertToWAV(ctx, path, cfg.TempDir, ConvertWAVConfig{
		FFmpegPath: cfg.FFmpegPath,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	defer os.Remove(wavPath)

	wf, err := decodeWAV(wavPath)
	if errors.Is(err, errNeedsTranscode) {
		return nil, errors.New("ffmpeg produced a non 16-bit PCM wav")
	}
	return wf, err
}

// IsCanonicalWAV reports whether path is already a 16-bit integer PCM WAV,
// the form every artifact is stored in.
func IsCanonicalWAV(path string) bool {
	if Ext(path) != "wav" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return false
	}
	return dec.WavAudioFormat == wavFormatPCM && dec.BitDepth == 16
}
