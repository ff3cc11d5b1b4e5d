package spectralsplit

import (
	"context"
	"io"
)

type Service interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error)
	SplitEqual(ctx context.Context, artifactID string, parts int) ([]Artifact, error)
	SplitRange(ctx context.Context, artifactID string, start, end float64) (*Artifact, error)
	Process(ctx context.Context, req ProcessRequest) ([]Artifact, error)
	Open(ctx context.Context, artifactID string) (io.ReadCloser, *Artifact, error)
	GetArtifact(artifactID string) (*Artifact, error)
	ListArtifacts(stage Stage) ([]Artifact, error)
	DeleteArtifact(ctx context.Context, artifactID string) error
	Spectrogram(ctx context.Context, artifactID string, w io.Writer) error
	Stats() (*Stats, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
