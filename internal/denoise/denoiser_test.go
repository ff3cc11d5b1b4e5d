package denoise

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/himanishpuri/SpectralSplit/internal/audio"
)

func tone(freq float64, sampleRate, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestSTFTRoundTrip(t *testing.T) {
	lengths := []int{1, 511, 2048, 5000, 16000}
	for _, n := range lengths {
		signal := tone(440, 16000, n, 0.8)
		win := Hann(DefaultWindowSize)

		spec, err := STFT(context.Background(), signal, DefaultWindowSize, DefaultHopSize, win)
		if err != nil {
			t.Fatalf("STFT(%d) failed: %v", n, err)
		}
		if spec.NumBins() != DefaultWindowSize/2+1 || len(spec.Bins[0]) != spec.NumBins() {
			t.Fatalf("unexpected bin count %d", len(spec.Bins[0]))
		}

		back, err := ISTFT(context.Background(), spec, win)
		if err != nil {
			t.Fatalf("ISTFT(%d) failed: %v", n, err)
		}
		if len(back) != n {
			t.Fatalf("ISTFT length = %d, want %d", len(back), n)
		}
		for i := range signal {
			if d := math.Abs(back[i] - signal[i]); d > 1e-9 {
				t.Fatalf("n=%d sample %d differs by %g", n, i, d)
			}
		}
	}
}

func TestSTFTRejectsBadParams(t *testing.T) {
	ctx := context.Background()
	signal := make([]float64, 100)
	if _, err := STFT(ctx, signal, 1023, 256, Hann(1023)); err == nil {
		t.Error("odd window size should fail")
	}
	if _, err := STFT(ctx, signal, 1024, 0, Hann(1024)); err == nil {
		t.Error("zero hop should fail")
	}
	if _, err := STFT(ctx, signal, 1024, 256, Hann(512)); err == nil {
		t.Error("window length mismatch should fail")
	}
	if _, err := STFT(ctx, nil, 1024, 256, Hann(1024)); err == nil {
		t.Error("empty signal should fail")
	}
}

func TestNoiseFrameCount(t *testing.T) {
	tests := []struct {
		sampleRate int
		frames     int
		want       int
	}{
		{44100, 1000, 39}, // floor((22050-2048)/512)
		{48000, 1000, 42}, // floor((24000-2048)/512)
		{16000, 1000, 11}, // floor((8000-2048)/512)
		{8000, 1000, 3},   // floor((4000-2048)/512)
		{4000, 1000, 0},   // negative, clamped
		{44100, 10, 10},   // more than available frames
	}
	for _, tt := range tests {
		got := NoiseFrameCount(tt.sampleRate, 0.5, DefaultWindowSize, DefaultHopSize, tt.frames)
		if got != tt.want {
			t.Errorf("NoiseFrameCount(%d, frames=%d) = %d, want %d", tt.sampleRate, tt.frames, got, tt.want)
		}
	}
}

func TestGateKeepsPhaseAndFloorsAtZero(t *testing.T) {
	spec := &Spectrogram{
		Bins:       [][]complex128{{complex(3, 4), complex(0, 1), 0}},
		WindowSize: 4,
		HopSize:    1,
		Length:     1,
	}
	Gate(spec, NoiseProfile{1, 2, 1}, 1.5)

	// |3+4i| = 5, reduced to 3.5 with the same phase
	got := spec.Bins[0][0]
	want := complex(3*0.7, 4*0.7)
	if math.Abs(real(got)-real(want)) > 1e-12 || math.Abs(imag(got)-imag(want)) > 1e-12 {
		t.Errorf("bin 0 = %v, want %v", got, want)
	}
	if spec.Bins[0][1] != 0 {
		t.Errorf("bin below threshold should be zero, got %v", spec.Bins[0][1])
	}
}

func TestEstimateNoiseProfile(t *testing.T) {
	spec := &Spectrogram{
		Bins: [][]complex128{
			{1, complex(0, 2)},
			{3, 0},
			{100, 100},
		},
		WindowSize: 2,
		HopSize:    1,
	}
	p := EstimateNoiseProfile(spec, 2)
	if p[0] != 2 || p[1] != 1 {
		t.Errorf("profile = %v, want [2 1]", p)
	}
	zero := EstimateNoiseProfile(spec, 0)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("k=0 profile should be zero, got %v", zero)
	}
}

func TestDenoiseLengthAndRate(t *testing.T) {
	d, err := New()
	if err != nil {
		t.Fatal(err)
	}

	for _, sr := range []int{8000, 22050, 44100} {
		for _, n := range []int{100, sr / 3, sr + 123} {
			wf := audio.NewMono(tone(300, sr, n, 0.3), sr)
			out, _, err := d.Denoise(context.Background(), wf)
			if err != nil {
				t.Fatalf("sr=%d n=%d: %v", sr, n, err)
			}
			if out.Frames() != n || out.SampleRate != sr || out.NumChannels() != 1 {
				t.Errorf("sr=%d n=%d: got %d frames %d Hz %d ch", sr, n, out.Frames(), out.SampleRate, out.NumChannels())
			}
		}
	}
}

func TestDenoiseSilence(t *testing.T) {
	d, _ := New()
	wf := &audio.Waveform{
		Channels:   [][]float64{make([]float64, 4410), make([]float64, 4410)},
		SampleRate: 44100,
	}
	out, stats, err := d.Denoise(context.Background(), wf)
	if err != nil {
		t.Fatalf("silence should not fail: %v", err)
	}
	if !stats.Degenerate {
		t.Error("expected Degenerate stat")
	}
	if out.Frames() != 4410 || out.NumChannels() != 1 {
		t.Fatalf("got %d frames x %d channels", out.Frames(), out.NumChannels())
	}
	if out.Peak() != 0 {
		t.Errorf("silence output should be all zeros, peak %f", out.Peak())
	}
}

func TestDenoiseCleanSignalUnchanged(t *testing.T) {
	const sr = 16000
	// one second of silence so the profile is zero, then a tone
	samples := make([]float64, sr)
	samples = append(samples, tone(440, sr, sr, 0.5)...)
	wf := audio.NewMono(samples, sr)

	d, _ := New()
	out, stats, err := d.Denoise(context.Background(), wf)
	if err != nil {
		t.Fatal(err)
	}
	if stats.NoiseFrames == 0 {
		t.Fatal("expected a non-empty noise window")
	}

	// input is peak normalised before analysis
	peak := audio.PeakAbs(samples)
	for i, v := range samples {
		want := v / peak
		if d := math.Abs(out.Channels[0][i] - want); d > 1e-6 {
			t.Fatalf("sample %d differs by %g", i, d)
		}
	}
}

func TestDenoiseReducesNoise(t *testing.T) {
	const sr = 16000
	rng := rand.New(rand.NewSource(1))
	n := 3 * sr
	noise := make([]float64, n)
	for i := range noise {
		noise[i] = 0.05 * rng.NormFloat64()
	}
	signal := make([]float64, n)
	copy(signal[sr:], tone(1000, sr, n-sr, 0.5))

	mixed := make([]float64, n)
	for i := range mixed {
		mixed[i] = signal[i] + noise[i]
	}

	d, _ := New()
	out, _, err := d.Denoise(context.Background(), audio.NewMono(mixed, sr))
	if err != nil {
		t.Fatal(err)
	}

	// compare noise-only leading region against the tone region, both peak normalised
	before := rms(mixed[:sr/2]) / rms(mixed[2*sr:])
	after := rms(out.Channels[0][:sr/2]) / rms(out.Channels[0][2*sr:])
	if after >= before/2 {
		t.Errorf("noise-to-signal ratio %.4f -> %.4f, expected at least a 2x reduction", before, after)
	}
}

func TestDenoiseLowSampleRate(t *testing.T) {
	// 0.5 s at 2 kHz is shorter than one window: k clamps to 0
	wf := audio.NewMono(tone(100, 2000, 4000, 0.9), 2000)
	d, _ := New()
	out, stats, err := d.Denoise(context.Background(), wf)
	if err != nil {
		t.Fatal(err)
	}
	if stats.NoiseFrames != 0 {
		t.Errorf("NoiseFrames = %d, want 0", stats.NoiseFrames)
	}
	if out.Frames() != 4000 {
		t.Errorf("frames = %d", out.Frames())
	}
}

func TestDenoiseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, _ := New()
	_, _, err := d.Denoise(ctx, audio.NewMono(tone(440, 8000, 8000, 0.5), 8000))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	bad := []Option{
		WithWindowSize(0),
		WithWindowSize(1001),
		WithHopSize(0),
		WithHopSize(4096),
		WithAlpha(-1),
		WithNoiseWindow(-time.Second),
	}
	for i, opt := range bad {
		if _, err := New(opt); err == nil {
			t.Errorf("option %d should be rejected", i)
		}
	}
}

func TestDegenerateSignalError(t *testing.T) {
	var err error = &DegenerateSignalError{Stage: "input"}
	if !errors.Is(err, ErrDegenerateSignal) {
		t.Error("errors.Is should match ErrDegenerateSignal")
	}
	var dse *DegenerateSignalError
	if !errors.As(err, &dse) || dse.Stage != "input" {
		t.Error("errors.As should recover the stage")
	}
}
