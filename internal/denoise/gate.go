package denoise

import (
	"math"
	"math/cmplx"
)

// NoiseProfile holds the mean magnitude per frequency bin of the frames
// assumed to contain only noise.
type NoiseProfile []float64

// NoiseFrameCount returns floor((noiseSeconds*sampleRate - windowSize) / hopSize)
// clamped to [0, frames].
func NoiseFrameCount(sampleRate int, noiseSeconds float64, windowSize, hopSize, frames int) int {
	k := int(math.Floor((noiseSeconds*float64(sampleRate) - float64(windowSize)) / float64(hopSize)))
	if k < 0 {
		return 0
	}
	if k > frames {
		return frames
	}
	return k
}

// EstimateNoiseProfile averages bin magnitudes over the first k frames.
// k == 0 gives an all-zero profile.
func EstimateNoiseProfile(spec *Spectrogram, k int) NoiseProfile {
	profile := make(NoiseProfile, spec.NumBins())
	if k <= 0 {
		return profile
	}
	if k > spec.NumFrames() {
		k = spec.NumFrames()
	}
	for _, bins := range spec.Bins[:k] {
		for b, c := range bins {
			profile[b] += cmplx.Abs(c)
		}
	}
	inv := 1 / float64(k)
	for b := range profile {
		profile[b] *= inv
	}
	return profile
}

// Gate subtracts alpha*profile from every bin magnitude, flooring at zero,
// and keeps the original phase. spec is modified in place.
func Gate(spec *Spectrogram, profile NoiseProfile, alpha float64) {
	for _, bins := range spec.Bins {
		for b, c := range bins {
			threshold := alpha * profile[b]
			if threshold == 0 {
				continue
			}
			mag := cmplx.Abs(c)
			reduced := mag - threshold
			if reduced <= 0 {
				bins[b] = 0
				continue
			}
			bins[b] = cmplx.Rect(reduced, cmplx.Phase(c))
		}
	}
}
