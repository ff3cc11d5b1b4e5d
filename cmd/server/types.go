package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/himanishpuri/SpectralSplit/pkg/spectralsplit"
)

const (
	// MaxUploadBytes bounds multipart uploads.
	MaxUploadBytes = 100 << 20

	// uploadFormMemory is how much of a multipart body is kept in memory
	// before spilling to disk.
	uploadFormMemory = 32 << 20
)

// ProcessRequestBody is the body of POST /api/process, as JSON or form
// fields of the same names.
type ProcessRequestBody struct {
	ArtifactID string   `json:"artifact_id"`
	Filename   string   `json:"filename,omitempty"` // legacy alias: "<id>.wav"
	NumParts   *int     `json:"num_parts,omitempty"`
	StartTime  *float64 `json:"start_time,omitempty"`
	EndTime    *float64 `json:"end_time,omitempty"`
}

// ToRequest resolves the artifact id and builds a service request.
func (b *ProcessRequestBody) ToRequest() spectralsplit.ProcessRequest {
	id := strings.TrimSpace(b.ArtifactID)
	if id == "" {
		id = strings.TrimSuffix(strings.TrimSpace(b.Filename), ".wav")
	}
	return spectralsplit.ProcessRequest{
		ArtifactID: id,
		Parts:      b.NumParts,
		Start:      b.StartTime,
		End:        b.EndTime,
	}
}

// parseProcessForm reads form fields; empty fields count as absent.
func parseProcessForm(get func(string) string) (*ProcessRequestBody, error) {
	body := &ProcessRequestBody{
		ArtifactID: get("artifact_id"),
		Filename:   get("filename"),
	}
	if v := strings.TrimSpace(get("num_parts")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("num_parts must be an integer, got %q", v)
		}
		body.NumParts = &n
	}
	for _, f := range []struct {
		name string
		dst  **float64
	}{
		{"start_time", &body.StartTime},
		{"end_time", &body.EndTime},
	} {
		if v := strings.TrimSpace(get(f.name)); v != "" {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%s must be a number, got %q", f.name, v)
			}
			*f.dst = &x
		}
	}
	return body, nil
}

// ArtifactDTO is an artifact plus the URLs that serve it.
type ArtifactDTO struct {
	spectralsplit.Artifact
	Filename       string `json:"filename"`
	PlayURL        string `json:"play_url"`
	DownloadURL    string `json:"download_url"`
	SpectrogramURL string `json:"spectrogram_url"`
}

func toDTO(a spectralsplit.Artifact) ArtifactDTO {
	return ArtifactDTO{
		Artifact:       a,
		Filename:       a.Filename(),
		PlayURL:        "/temp/" + a.ID,
		DownloadURL:    "/download/" + a.ID,
		SpectrogramURL: "/api/artifacts/" + a.ID + "/spectrogram",
	}
}

func toDTOs(arts []spectralsplit.Artifact) []ArtifactDTO {
	out := make([]ArtifactDTO, len(arts))
	for i, a := range arts {
		out[i] = toDTO(a)
	}
	return out
}

// UploadResponse is the response for POST /api/upload
type UploadResponse struct {
	Message  string                     `json:"message"`
	Original ArtifactDTO                `json:"original"`
	Denoised ArtifactDTO                `json:"denoised"`
	Stats    spectralsplit.DenoiseStats `json:"stats"`
}

// ProcessResponse is the response for POST /api/process
type ProcessResponse struct {
	Files []ArtifactDTO `json:"files"`
	Count int           `json:"count"`
}

// ListArtifactsResponse is the response for GET /api/artifacts
type ListArtifactsResponse struct {
	Artifacts []ArtifactDTO `json:"artifacts"`
	Count     int           `json:"count"`
}

// DeleteArtifactResponse is the response for DELETE /api/artifacts/{id}
type DeleteArtifactResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MetricsResponse wraps the service stats, which carry the effective settings
type MetricsResponse struct {
	Status string              `json:"status"`
	Stats  spectralsplit.Stats `json:"stats"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
