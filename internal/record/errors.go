package record

import "errors"

// Failure kinds for the recording engine. Wrapped with context at the call
// site; callers match with errors.Is.
var (
	// ErrSinkCreation: a new capture could not be started. Fatal to that
	// rotation attempt only; recording resumes at the next transition.
	ErrSinkCreation = errors.New("sink creation failed")

	// ErrFinalize: the sink failed to flush cleanly. The partial file is
	// discarded and never exposed as a cached recording.
	ErrFinalize = errors.New("finalize failed")

	// ErrSourceUnavailable: the stream source died. Recording state is
	// forced to stopped and the error surfaces to the caller.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAnalysisUnavailable: boundary analysis could not run. Never
	// fatal; the engine keeps the metadata-derived cut.
	ErrAnalysisUnavailable = errors.New("analysis unavailable")

	// ErrNotFound: the cached recording id is unknown or its backing
	// file is gone.
	ErrNotFound = errors.New("recording not found")
)
