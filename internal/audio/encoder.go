package audio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// OutputBitDepth is the PCM depth every artifact is written with.
const OutputBitDepth = 16

// WriteWAV encodes wf as 16-bit PCM WAV. Samples outside [-1, 1] are clamped.
func WriteWAV(w io.WriteSeeker, wf *Waveform) error {
	if err := wf.Validate(); err != nil {
		return fmt.Errorf("encoding wav: %w", err)
	}

	enc := wav.NewEncoder(w, wf.SampleRate, OutputBitDepth, wf.NumChannels(), 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: wf.NumChannels(),
			SampleRate:  wf.SampleRate,
		},
		Data:           toPCM16(wf.Interleave()),
		SourceBitDepth: OutputBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writing pcm data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalising wav header: %w", err)
	}
	return nil
}

// EncodeWAV returns the 16-bit PCM WAV bytes for wf.
func EncodeWAV(wf *Waveform) ([]byte, error) {
	ws := &writeSeeker{}
	if err := WriteWAV(ws, wf); err != nil {
		return nil, err
	}
	return ws.buf.Bytes(), nil
}

// SaveWAV writes wf to a file at path.
func SaveWAV(path string, wf *Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, wf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func toPCM16(samples []float64) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		out[i] = int(math.Round(s * math.MaxInt16))
	}
	return out
}

// writeSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	buf bytes.Buffer
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	need := w.pos + len(p)
	if need > w.buf.Len() {
		w.buf.Grow(need - w.buf.Len())
		w.buf.Write(make([]byte, need-w.buf.Len()))
	}
	copy(w.buf.Bytes()[w.pos:], p)
	w.pos = need
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(w.buf.Len()) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative seek position %d", abs)
	}
	w.pos = int(abs)
	return abs, nil
}
