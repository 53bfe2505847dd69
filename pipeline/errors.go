package pipeline

import (
	"errors"
	"fmt"
)

// Failure kinds, matchable with errors.Is through the stage tag.
var (
	ErrSourceFetchFailed   = errors.New("source fetch failed")
	ErrSynthesisFailed     = errors.New("synthesis failed")
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrNoDuration          = errors.New("no duration reported")
	ErrProbeFailed         = errors.New("probe failed")
	ErrUnknownDuration     = errors.New("unknown video duration")
	ErrAssemblyFailed      = errors.New("assembly failed")
	ErrMergeFailed         = errors.New("merge failed")
	ErrPublishFailed       = errors.New("publish failed")
)

// StageError tags a failure with the stage it occurred in, giving
// every pipeline failure the same {stage, message} shape.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
