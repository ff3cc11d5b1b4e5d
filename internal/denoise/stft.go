package denoise

import (
	"context"
	"errors"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrogram is a complex short-time spectrum laid out as Bins[frame][bin].
// Frames are centred: frame f is centred on sample f*HopSize of the
// unpadded signal.
type Spectrogram struct {
	Bins       [][]complex128
	WindowSize int
	HopSize    int
	Length     int // unpadded sample count
}

// NumFrames returns the number of analysis frames.
func (s *Spectrogram) NumFrames() int {
	return len(s.Bins)
}

// NumBins returns WindowSize/2 + 1.
func (s *Spectrogram) NumBins() int {
	return s.WindowSize/2 + 1
}

// Hann returns a Hann window of length n.
func Hann(n int) []float64 {
	return window.Hann(n)
}

func frameCount(length, hop int) int {
	return 1 + (length+hop-1)/hop
}

// STFT computes the windowed short-time FFT of samples. The signal is padded
// with windowSize/2 zeros on both sides and with enough zeros at the tail that
// every input sample is covered by at least two frames.
func STFT(ctx context.Context, samples []float64, windowSize, hopSize int, win []float64) (*Spectrogram, error) {
	if windowSize <= 0 || windowSize%2 != 0 {
		return nil, errors.New("window size must be a positive even number")
	}
	if hopSize <= 0 || hopSize > windowSize {
		return nil, errors.New("hop size must be in (0, windowSize]")
	}
	if len(win) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if len(samples) == 0 {
		return nil, errors.New("empty signal")
	}

	half := windowSize / 2
	frames := frameCount(len(samples), hopSize)
	padded := make([]float64, (frames-1)*hopSize+windowSize)
	copy(padded[half:], samples)

	fft := fourier.NewFFT(windowSize)
	frame := make([]float64, windowSize)
	spec := &Spectrogram{
		Bins:       make([][]complex128, frames),
		WindowSize: windowSize,
		HopSize:    hopSize,
		Length:     len(samples),
	}

	for f := 0; f < frames; f++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := f * hopSize
		for i := range frame {
			frame[i] = padded[start+i] * win[i]
		}
		spec.Bins[f] = fft.Coefficients(nil, frame)
	}
	return spec, nil
}

// ISTFT inverts STFT by weighted overlap-add: each inverse frame is windowed
// again, summed, and divided by the summed squared window. The result has
// exactly spec.Length samples.
func ISTFT(ctx context.Context, spec *Spectrogram, win []float64) ([]float64, error) {
	if spec == nil || len(spec.Bins) == 0 {
		return nil, errors.New("empty spectrogram")
	}
	n := spec.WindowSize
	if len(win) != n {
		return nil, errors.New("window length must equal windowSize")
	}

	hop := spec.HopSize
	half := n / 2
	total := (len(spec.Bins)-1)*hop + n
	acc := make([]float64, total)
	norm := make([]float64, total)

	fft := fourier.NewFFT(n)
	frame := make([]float64, n)
	scale := 1 / float64(n)

	for f, bins := range spec.Bins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(bins) != n/2+1 {
			return nil, errors.New("frame has wrong number of bins")
		}
		fft.Sequence(frame, bins)
		start := f * hop
		for i, v := range frame {
			acc[start+i] += v * scale * win[i]
			norm[start+i] += win[i] * win[i]
		}
	}

	out := make([]float64, spec.Length)
	for i := range out {
		j := i + half
		if j >= total {
			break
		}
		if norm[j] > 1e-10 {
			out[i] = acc[j] / norm[j]
		}
	}
	return out, nil
}
