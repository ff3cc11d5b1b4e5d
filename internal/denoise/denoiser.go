package denoise

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/himanishpuri/SpectralSplit/internal/audio"
	"github.com/himanishpuri/SpectralSplit/pkg/logger"
)

// Defaults
const (
	DefaultWindowSize  = 2048
	DefaultHopSize     = 512
	DefaultNoiseWindow = 500 * time.Millisecond
	DefaultAlpha       = 1.5
)

// ErrDegenerateSignal is matched by every *DegenerateSignalError.
var ErrDegenerateSignal = errors.New("degenerate signal")

// DegenerateSignalError is raised when a signal has zero peak and cannot be
// normalised.
type DegenerateSignalError struct {
	Stage string
}

func (e *DegenerateSignalError) Error() string {
	return fmt.Sprintf("degenerate signal at %s: peak amplitude is zero", e.Stage)
}

func (e *DegenerateSignalError) Is(target error) bool {
	return target == ErrDegenerateSignal
}

// Stats describes a single Denoise run.
type Stats struct {
	Frames      int     `json:"frames"`
	NoiseFrames int     `json:"noise_frames"`
	InputPeak   float64 `json:"input_peak"`
	OutputPeak  float64 `json:"output_peak"`
	Degenerate  bool    `json:"degenerate"`
}

// Logger is the subset of pkg/logger used by the Denoiser.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type Denoiser struct {
	windowSize  int
	hopSize     int
	noiseWindow time.Duration
	alpha       float64
	log         Logger
}

type Option func(*Denoiser)

func WithWindowSize(n int) Option {
	return func(d *Denoiser) {
		d.windowSize = n
	}
}

func WithHopSize(n int) Option {
	return func(d *Denoiser) {
		d.hopSize = n
	}
}

func WithNoiseWindow(dur time.Duration) Option {
	return func(d *Denoiser) {
		d.noiseWindow = dur
	}
}

func WithAlpha(alpha float64) Option {
	return func(d *Denoiser) {
		d.alpha = alpha
	}
}

func WithLogger(l Logger) Option {
	return func(d *Denoiser) {
		d.log = l
	}
}

// New builds a Denoiser. Invalid parameters are reported here rather than on
// every call.
func New(opts ...Option) (*Denoiser, error) {
	d := &Denoiser{
		windowSize:  DefaultWindowSize,
		hopSize:     DefaultHopSize,
		noiseWindow: DefaultNoiseWindow,
		alpha:       DefaultAlpha,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Discard()
	}

	if d.windowSize <= 0 || d.windowSize%2 != 0 {
		return nil, fmt.Errorf("window size must be a positive even number, got %d", d.windowSize)
	}
	if d.hopSize <= 0 || d.hopSize > d.windowSize {
		return nil, fmt.Errorf("hop size must be in (0, %d], got %d", d.windowSize, d.hopSize)
	}
	if d.noiseWindow < 0 {
		return nil, fmt.Errorf("noise window must not be negative, got %s", d.noiseWindow)
	}
	if d.alpha < 0 {
		return nil, fmt.Errorf("alpha must not be negative, got %g", d.alpha)
	}
	return d, nil
}

func (d *Denoiser) WindowSize() int { return d.windowSize }
func (d *Denoiser) HopSize() int    { return d.hopSize }
func (d *Denoiser) Alpha() float64  { return d.alpha }

// Denoise collapses wf to mono and applies spectral gating with a noise
// profile taken from the leading noise window. The result is a new mono
// Waveform with the same sample rate and sample count, peak normalised to 1.
// A silent input yields an all-zero waveform and Stats.Degenerate.
func (d *Denoiser) Denoise(ctx context.Context, wf *audio.Waveform) (*audio.Waveform, Stats, error) {
	var stats Stats
	if err := wf.Validate(); err != nil {
		return nil, stats, fmt.Errorf("denoise: %w", err)
	}

	out, err := d.run(ctx, wf, &stats)
	if errors.Is(err, ErrDegenerateSignal) {
		d.log.Warnf("denoise: %v, returning silence", err)
		stats.Degenerate = true
		return audio.NewMono(make([]float64, wf.Frames()), wf.SampleRate), stats, nil
	}
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

func (d *Denoiser) run(ctx context.Context, wf *audio.Waveform, stats *Stats) (*audio.Waveform, error) {
	samples := wf.Mono()

	peak, err := normalize(samples, "input")
	stats.InputPeak = peak
	if err != nil {
		return nil, err
	}

	win := Hann(d.windowSize)
	spec, err := STFT(ctx, samples, d.windowSize, d.hopSize, win)
	if err != nil {
		return nil, fmt.Errorf("stft: %w", err)
	}
	stats.Frames = spec.NumFrames()

	k := NoiseFrameCount(wf.SampleRate, d.noiseWindow.Seconds(), d.windowSize, d.hopSize, spec.NumFrames())
	stats.NoiseFrames = k
	if k == 0 {
		d.log.Debugf("denoise: noise window shorter than one frame at %d Hz, gating disabled", wf.SampleRate)
	}

	profile := EstimateNoiseProfile(spec, k)
	Gate(spec, profile, d.alpha)

	cleaned, err := ISTFT(ctx, spec, win)
	if err != nil {
		return nil, fmt.Errorf("istft: %w", err)
	}

	peak, err = normalize(cleaned, "output")
	stats.OutputPeak = peak
	if err != nil {
		return nil, err
	}

	d.log.Debugf("denoise: %d frames, %d noise frames, alpha=%.2f", stats.Frames, k, d.alpha)
	return audio.NewMono(cleaned, wf.SampleRate), nil
}

// normalize scales samples in place so max |x| == 1 and returns the peak
// before scaling.
func normalize(samples []float64, stage string) (float64, error) {
	peak := audio.PeakAbs(samples)
	if peak == 0 {
		return 0, &DegenerateSignalError{Stage: stage}
	}
	floats.Scale(1/peak, samples)
	return peak, nil
}
