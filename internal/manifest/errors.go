package manifest

import "errors"

// Sentinel errors shared by all manifest parsers. Callers classify failures
// with errors.Is; parsers wrap these with fmt.Errorf("...: %w", ...) to add
// context.
var (
	// ErrMalformedManifest means the document could not be parsed at all.
	// No partial result is meaningful, so this is fatal regardless of the
	// caller's Fatal option.
	ErrMalformedManifest = errors.New("malformed manifest")

	// ErrMissingField means a mandatory field (e.g. Duration, a segment
	// duration) is absent. Also fatal regardless of the Fatal option.
	ErrMissingField = errors.New("missing mandatory field")

	// ErrLiveManifest is returned for manifest types that only support VOD
	// snapshots (Smooth Streaming).
	ErrLiveManifest = errors.New("live manifest not supported")

	// ErrFetch wraps a failed fetch of a nested sub-resource. It is
	// surfaced only when the caller requested Fatal; otherwise the parser
	// returns whatever it already resolved.
	ErrFetch = errors.New("sub-resource fetch failed")
)
