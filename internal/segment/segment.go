// Package segment cuts waveforms into equal parts or a single time range.
package segment

import (
	"fmt"
	"math"

	"github.com/himanishpuri/SpectralSplit/internal/audio"
)

// Segment is an independent copy of frames [Start, End) of a parent waveform.
type Segment struct {
	Index    int
	Start    int
	End      int
	Waveform *audio.Waveform
}

// StartSeconds returns the segment offset within the parent.
func (s Segment) StartSeconds() float64 {
	return float64(s.Start) / float64(s.Waveform.SampleRate)
}

// EndSeconds returns the segment end within the parent.
func (s Segment) EndSeconds() float64 {
	return float64(s.End) / float64(s.Waveform.SampleRate)
}

// InvalidPartCountError is returned when a part count is not positive or
// exceeds the number of frames.
type InvalidPartCountError struct {
	Parts  int
	Frames int
}

func (e *InvalidPartCountError) Error() string {
	if e.Parts <= 0 {
		return fmt.Sprintf("invalid part count %d: must be positive", e.Parts)
	}
	return fmt.Sprintf("invalid part count %d: only %d samples available", e.Parts, e.Frames)
}

// InvalidRangeError is returned when a time range is not within
// [0, Duration] or is empty.
type InvalidRangeError struct {
	Start    float64
	End      float64
	Duration float64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range [%g, %g): must satisfy 0 <= start < end <= %g", e.Start, e.End, e.Duration)
}

// EqualParts splits wf into n contiguous segments of frames/n samples each;
// the last segment also takes the remainder.
func EqualParts(wf *audio.Waveform, n int) ([]Segment, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	frames := wf.Frames()
	if n <= 0 || n > frames {
		return nil, &InvalidPartCountError{Parts: n, Frames: frames}
	}

	partLen := frames / n
	segments := make([]Segment, 0, n)
	for i := 0; i < n; i++ {
		start := i * partLen
		end := start + partLen
		if i == n-1 {
			end = frames
		}
		part, err := wf.Slice(start, end)
		if err != nil {
			return nil, err
		}
		segments = append(segments, Segment{Index: i, Start: start, End: end, Waveform: part})
	}
	return segments, nil
}

// Range extracts [startSec, endSec) from wf. Bounds are never clamped.
func Range(wf *audio.Waveform, startSec, endSec float64) (Segment, error) {
	if err := wf.Validate(); err != nil {
		return Segment{}, err
	}
	duration := wf.Seconds()
	rangeErr := &InvalidRangeError{Start: startSec, End: endSec, Duration: duration}

	if !finite(startSec) || !finite(endSec) {
		return Segment{}, rangeErr
	}
	if startSec < 0 || startSec >= endSec || endSec > duration {
		return Segment{}, rangeErr
	}

	sr := float64(wf.SampleRate)
	start := int(math.Round(startSec * sr))
	end := min(int(math.Round(endSec*sr)), wf.Frames())
	if start >= end {
		return Segment{}, rangeErr
	}

	part, err := wf.Slice(start, end)
	if err != nil {
		return Segment{}, err
	}
	return Segment{Index: 0, Start: start, End: end, Waveform: part}, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
