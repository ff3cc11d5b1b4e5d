package segment

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/himanishpuri/SpectralSplit/internal/audio"
)

func ramp(n, sampleRate int) *audio.Waveform {
	s := make([]float64, n)
	for i := range s {
		s[i] = float64(i%1000)/1000 - 0.5
	}
	return audio.NewMono(s, sampleRate)
}

func TestEqualPartsGrid(t *testing.T) {
	for _, frames := range []int{1, 7, 100, 1001, 44100} {
		for _, n := range []int{1, 2, 3, 7, 10, 100} {
			if n > frames {
				continue
			}
			wf := ramp(frames, 8000)
			segs, err := EqualParts(wf, n)
			if err != nil {
				t.Fatalf("frames=%d n=%d: %v", frames, n, err)
			}
			if len(segs) != n {
				t.Fatalf("frames=%d n=%d: got %d segments", frames, n, len(segs))
			}

			partLen := frames / n
			total := 0
			for i, s := range segs {
				if s.Index != i {
					t.Errorf("segment %d has index %d", i, s.Index)
				}
				if i == 0 && s.Start != 0 {
					t.Errorf("first segment starts at %d", s.Start)
				}
				if i > 0 && s.Start != segs[i-1].End {
					t.Errorf("frames=%d n=%d: gap/overlap at segment %d", frames, n, i)
				}
				if i < n-1 && s.End-s.Start != partLen {
					t.Errorf("frames=%d n=%d: segment %d length %d, want %d", frames, n, i, s.End-s.Start, partLen)
				}
				if s.Waveform.Frames() != s.End-s.Start {
					t.Errorf("segment %d waveform has %d frames, bounds say %d", i, s.Waveform.Frames(), s.End-s.Start)
				}
				total += s.Waveform.Frames()
			}
			if total != frames {
				t.Errorf("frames=%d n=%d: segments sum to %d", frames, n, total)
			}
			if last := segs[n-1]; last.End != frames || last.End-last.Start != partLen+frames%n {
				t.Errorf("frames=%d n=%d: last segment [%d, %d) does not absorb remainder", frames, n, last.Start, last.End)
			}
		}
	}
}

func TestEqualPartsInvalid(t *testing.T) {
	wf := ramp(10, 8000)
	for _, n := range []int{0, -3, 11} {
		_, err := EqualParts(wf, n)
		var ipe *InvalidPartCountError
		if !errors.As(err, &ipe) {
			t.Errorf("EqualParts(n=%d) error = %v, want *InvalidPartCountError", n, err)
			continue
		}
		if ipe.Parts != n || ipe.Frames != 10 {
			t.Errorf("error fields = %+v", ipe)
		}
	}
}

func TestEqualPartsCopies(t *testing.T) {
	wf := ramp(10, 8000)
	segs, err := EqualParts(wf, 2)
	if err != nil {
		t.Fatal(err)
	}
	segs[0].Waveform.Channels[0][0] = 42
	if wf.Channels[0][0] == 42 {
		t.Error("segment aliases parent samples")
	}
}

func TestRange(t *testing.T) {
	const sr = 8000
	wf := ramp(10*sr, sr)

	seg, err := Range(wf, 2.0, 5.0)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if seg.Start != 2*sr || seg.End != 5*sr {
		t.Errorf("bounds = [%d, %d), want [%d, %d)", seg.Start, seg.End, 2*sr, 5*sr)
	}
	if got := seg.Waveform.Seconds(); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("duration = %f, want 3.0", got)
	}
	if seg.StartSeconds() != 2.0 || seg.EndSeconds() != 5.0 {
		t.Errorf("seconds = [%f, %f)", seg.StartSeconds(), seg.EndSeconds())
	}
	if seg.Waveform.Channels[0][0] != wf.Channels[0][2*sr] {
		t.Error("segment does not start at the requested offset")
	}

	whole, err := Range(wf, 0, 10)
	if err != nil || whole.Waveform.Frames() != wf.Frames() {
		t.Errorf("full range: %v, %d frames", err, whole.Waveform.Frames())
	}
}

func TestRangeInvalid(t *testing.T) {
	wf := ramp(8000*10, 8000)
	tests := []struct {
		name       string
		start, end float64
	}{
		{"negative start", -1, 3},
		{"end past duration", 2, 10.5},
		{"start equals end", 4, 4},
		{"start after end", 5, 2},
		{"start at duration", 10, 11},
		{"nan", math.NaN(), 3},
		{"inf", 0, math.Inf(1)},
		{"sub-sample width", 1.00001, 1.00002},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Range(wf, tt.start, tt.end)
			var ire *InvalidRangeError
			if !errors.As(err, &ire) {
				t.Fatalf("error = %v, want *InvalidRangeError", err)
			}
			if ire.Duration != 10 {
				t.Errorf("Duration = %f, want 10", ire.Duration)
			}
		})
	}
}

func TestRangeDeterministic(t *testing.T) {
	wf := ramp(8000*10, 8000)

	encode := func() []byte {
		seg, err := Range(wf, 2.5, 7.25)
		if err != nil {
			t.Fatal(err)
		}
		data, err := audio.EncodeWAV(seg.Waveform)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	if !bytes.Equal(encode(), encode()) {
		t.Error("identical range requests produced different bytes")
	}
}
