package conversion

import (
	"errors"
	"fmt"
)

var (
	// ErrProfileNotFound means the requested profile name is not in the
	// catalog. Caller error, never retried.
	ErrProfileNotFound = errors.New("conversion profile not found")
	// ErrTrackNotFound means the target track does not exist.
	ErrTrackNotFound = errors.New("track not found")
	// ErrProcessLaunch means the transcoder process could not be spawned.
	ErrProcessLaunch = errors.New("failed to launch transcoder")

	// ErrStaleTrack is returned by the persistence collaborator when the
	// track's version changed between load and save. Absorbed by the
	// coordinator's reload-and-retry loop, never caller visible.
	ErrStaleTrack = errors.New("track modified concurrently")
	// ErrVariantExists is returned by the persistence collaborator when a
	// variant row for the (track, profile) pair is already recorded. The
	// coordinator treats it as success without work.
	ErrVariantExists = errors.New("variant already recorded")
)

// ProcessExitError reports a transcoder that launched but exited non-zero.
type ProcessExitError struct {
	ExitCode int
}

func (e *ProcessExitError) Error() string {
	return fmt.Sprintf("transcoder exited with code %d", e.ExitCode)
}
