package audio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Waveform is a decoded PCM signal. Channels holds one slice per channel,
// all of equal length, with samples nominally in [-1, 1].
type Waveform struct {
	Channels   [][]float64
	SampleRate int
}

// NewMono wraps a single channel of samples.
func NewMono(samples []float64, sampleRate int) *Waveform {
	return &Waveform{Channels: [][]float64{samples}, SampleRate: sampleRate}
}

// Validate checks the structural invariants: positive sample rate, at least
// one channel, non-empty and equal-length channels.
func (w *Waveform) Validate() error {
	if w == nil {
		return errors.New("waveform is nil")
	}
	if w.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", w.SampleRate)
	}
	if len(w.Channels) == 0 {
		return errors.New("waveform has no channels")
	}
	n := len(w.Channels[0])
	if n == 0 {
		return errors.New("waveform has no samples")
	}
	for i, ch := range w.Channels[1:] {
		if len(ch) != n {
			return fmt.Errorf("channel %d has %d samples, channel 0 has %d", i+1, len(ch), n)
		}
	}
	return nil
}

// NumChannels returns the channel count.
func (w *Waveform) NumChannels() int {
	return len(w.Channels)
}

// Frames returns the per-channel sample count.
func (w *Waveform) Frames() int {
	if len(w.Channels) == 0 {
		return 0
	}
	return len(w.Channels[0])
}

// Seconds returns the duration in seconds.
func (w *Waveform) Seconds() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(w.Frames()) / float64(w.SampleRate)
}

// Duration returns the duration as a time.Duration.
func (w *Waveform) Duration() time.Duration {
	return time.Duration(math.Round(w.Seconds() * float64(time.Second)))
}

// Mono averages all channels sample-wise into a new slice. A mono waveform
// yields a copy of its only channel.
func (w *Waveform) Mono() []float64 {
	out := make([]float64, w.Frames())
	if len(w.Channels) == 0 {
		return out
	}
	for _, ch := range w.Channels {
		floats.Add(out, ch)
	}
	if len(w.Channels) > 1 {
		floats.Scale(1/float64(len(w.Channels)), out)
	}
	return out
}

// Slice copies frames [start, end) of every channel into a new Waveform.
func (w *Waveform) Slice(start, end int) (*Waveform, error) {
	if start < 0 || end > w.Frames() || start >= end {
		return nil, fmt.Errorf("slice [%d, %d) out of bounds for %d frames", start, end, w.Frames())
	}
	out := &Waveform{
		Channels:   make([][]float64, len(w.Channels)),
		SampleRate: w.SampleRate,
	}
	for i, ch := range w.Channels {
		out.Channels[i] = append([]float64(nil), ch[start:end]...)
	}
	return out, nil
}

// Peak returns the largest absolute sample value across channels.
func (w *Waveform) Peak() float64 {
	var peak float64
	for _, ch := range w.Channels {
		peak = math.Max(peak, PeakAbs(ch))
	}
	return peak
}

// PeakAbs returns max |x| over samples, 0 for an empty slice.
func PeakAbs(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return floats.Norm(samples, math.Inf(1))
}

// Interleave flattens channels frame by frame: L0 R0 L1 R1 ...
func (w *Waveform) Interleave() []float64 {
	nch := len(w.Channels)
	frames := w.Frames()
	out := make([]float64, frames*nch)
	for c, ch := range w.Channels {
		for i, v := range ch {
			out[i*nch+c] = v
		}
	}
	return out
}

// Deinterleave splits an interleaved buffer into a Waveform. Trailing samples
// that do not fill a whole frame are dropped.
func Deinterleave(data []float64, numChannels, sampleRate int) *Waveform {
	if numChannels <= 0 {
		numChannels = 1
	}
	frames := len(data) / numChannels
	w := &Waveform{Channels: make([][]float64, numChannels), SampleRate: sampleRate}
	for c := range w.Channels {
		w.Channels[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			w.Channels[c][i] = data[i*numChannels+c]
		}
	}
	return w
}
