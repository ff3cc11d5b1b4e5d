package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SourceInfo is what ffprobe reports about an input before it is decoded.
type SourceInfo struct {
	Container  string
	Codec      string
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitDepth   int
	Tags       map[string]string
}

// probeReport mirrors the subset of `ffprobe -print_format json` we read.
type probeReport struct {
	Format struct {
		Name     string            `json:"format_name"`
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		Type          string `json:"codec_type"`
		Codec         string `json:"codec_name"`
		SampleRate    string `json:"sample_rate"`
		Channels      int    `json:"channels"`
		BitsPerSample int    `json:"bits_per_sample"`
		Duration      string `json:"duration"`
	} `json:"streams"`
}

// FFprobePath returns the ffprobe binary installed next to ffmpegPath, or
// "ffprobe" to be looked up on PATH.
func FFprobePath(ffmpegPath string) string {
	dir, file := filepath.Split(ffmpegPath)
	if dir == "" || !strings.Contains(file, "ffmpeg") {
		return "ffprobe"
	}
	candidate := filepath.Join(dir, strings.Replace(file, "ffmpeg", "ffprobe", 1))
	if _, err := exec.LookPath(candidate); err != nil {
		return "ffprobe"
	}
	return candidate
}

// ProbeSource runs ffprobe against path. A missing binary surfaces as the
// exec error; callers treat probing as optional.
func ProbeSource(ctx context.Context, ffprobePath, path string) (*SourceInfo, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	return parseSourceInfo(out)
}

func parseSourceInfo(out []byte) (*SourceInfo, error) {
	var rep probeReport
	if err := json.Unmarshal(out, &rep); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	for _, st := range rep.Streams {
		if st.Type != "audio" {
			continue
		}
		info := &SourceInfo{
			Container: rep.Format.Name,
			Codec:     st.Codec,
			Channels:  st.Channels,
			BitDepth:  st.BitsPerSample,
			Tags:      rep.Format.Tags,
		}
		info.SampleRate, _ = strconv.Atoi(st.SampleRate)

		// Stream duration is exact for PCM; the container's is an estimate
		// for some VBR streams, so it is only the fallback.
		secs, err := strconv.ParseFloat(st.Duration, 64)
		if err != nil {
			secs, _ = strconv.ParseFloat(rep.Format.Duration, 64)
		}
		info.Duration = time.Duration(math.Round(secs * float64(time.Second)))
		return info, nil
	}
	return nil, errors.New("no audio stream found")
}

// DurationMismatchError reports a decode whose length disagrees with what
// the container declares, usually a truncated or damaged upload.
type DurationMismatchError struct {
	Probed  time.Duration
	Decoded time.Duration
}

func (e *DurationMismatchError) Error() string {
	return fmt.Sprintf("decoded %s of audio, container declares %s", e.Decoded, e.Probed)
}

// VerifyDecoded compares a decoded waveform against the probed stream. The
// sample rate must match exactly. Durations may differ by codec priming and
// padding, up to 100ms or 1%, whichever is larger.
func (si *SourceInfo) VerifyDecoded(wf *Waveform) error {
	if si.SampleRate > 0 && si.SampleRate != wf.SampleRate {
		return fmt.Errorf("decoded at %d Hz, stream is %d Hz", wf.SampleRate, si.SampleRate)
	}
	if si.Duration <= 0 {
		return nil
	}
	decoded := wf.Duration()
	tol := max(100*time.Millisecond, si.Duration/100)
	if diff := time.Duration(math.Abs(float64(decoded - si.Duration))); diff > tol {
		return &DurationMismatchError{Probed: si.Duration, Decoded: decoded}
	}
	return nil
}
