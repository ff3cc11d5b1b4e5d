package spectralsplit

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/SpectralSplit/internal/denoise"
	"github.com/himanishpuri/SpectralSplit/internal/worker"
)

// Stage names the pipeline step that produced an artifact.
type Stage string

const (
	StageOriginal Stage = "original"
	StageDenoised Stage = "denoised"
	StageSegment  Stage = "segment"
)

// ParseStage accepts "", "original", "denoised" and "segment".
func ParseStage(s string) (Stage, error) {
	switch Stage(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case StageOriginal:
		return StageOriginal, nil
	case StageDenoised:
		return StageDenoised, nil
	case StageSegment:
		return StageSegment, nil
	}
	return "", &InvalidRequestError{Reason: fmt.Sprintf("unknown stage %q", s)}
}

// Artifact is an immutable handle to a stored waveform.
type Artifact struct {
	ID         string `json:"id"`
	Stage      Stage  `json:"stage"`
	ParentID   string `json:"parent_id,omitempty"`
	Index      int    `json:"index"`
	SourceName string `json:"source_name"`
	// SourceCodec and SourceMs are what ffprobe reported for an original
	// upload; empty when ffprobe is unavailable.
	SourceCodec string    `json:"source_codec,omitempty"`
	SourceMs    int64     `json:"source_ms,omitempty"`
	SampleRate  int       `json:"sample_rate"`
	Channels    int       `json:"channels"`
	Frames      int       `json:"frames"`
	DurationMs  int64     `json:"duration_ms"`
	StartMs     int64     `json:"start_ms"`
	EndMs       int64     `json:"end_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filename is the name offered to clients downloading the artifact.
func (a Artifact) Filename() string {
	base := strings.TrimSuffix(a.SourceName, filepath.Ext(a.SourceName))
	if base == "" {
		base = a.ID
	}
	switch a.Stage {
	case StageDenoised:
		return base + "_cleaned.wav"
	case StageSegment:
		return fmt.Sprintf("%s_part%d.wav", base, a.Index+1)
	}
	return base + ".wav"
}

type DenoiseStats = denoise.Stats

// UploadResult is returned by Upload: the normalised original and its
// denoised derivative.
type UploadResult struct {
	Original Artifact     `json:"original"`
	Denoised Artifact     `json:"denoised"`
	Stats    DenoiseStats `json:"stats"`
}

// ProcessRequest selects exactly one split mode: Parts, or Start and End.
type ProcessRequest struct {
	ArtifactID string
	Parts      *int
	Start      *float64
	End        *float64
}

// Stats reports artifact counts, worker pool counters and the settings the
// service is running with.
type Stats struct {
	Artifacts map[Stage]int64 `json:"artifacts"`
	Pool      worker.Stats    `json:"pool"`
	Settings  Settings        `json:"settings"`
}

// Settings are the effective values after defaults were applied.
type Settings struct {
	Index      string        `json:"index"`
	Store      string        `json:"store"`
	WindowSize int           `json:"window_size"`
	HopSize    int           `json:"hop_size"`
	Alpha      float64       `json:"alpha"`
	JobTimeout time.Duration `json:"-"`
	Timeout    string        `json:"job_timeout"`
}
