package spectralsplit

import (
	"errors"

	"github.com/himanishpuri/SpectralSplit/internal/audio"
	"github.com/himanishpuri/SpectralSplit/internal/segment"
	"github.com/himanishpuri/SpectralSplit/internal/worker"
)

type (
	UnsupportedFormatError = audio.UnsupportedFormatError
	InvalidPartCountError  = segment.InvalidPartCountError
	InvalidRangeError      = segment.InvalidRangeError
)

var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrUploadTooLarge   = errors.New("upload exceeds size limit")
	ErrBusy             = worker.ErrBusy
	ErrTimeout          = worker.ErrTimeout
)

// InvalidRequestError reports a malformed processing request, such as
// selecting both or neither split modes.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}
