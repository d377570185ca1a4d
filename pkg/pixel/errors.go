package pixel

import "errors"

// Failure classes shared by all codecs. Codec errors wrap one of these so a
// caller can tell bad data from an unsupported variant or a calling bug.
var (
	// ErrMalformed: bad magic, truncated header, inconsistent sizes or offsets.
	ErrMalformed = errors.New("malformed image data")
	// ErrUnsupported: structurally valid input using a variant that is not implemented.
	ErrUnsupported = errors.New("unsupported image variant")
	// ErrPrecondition: empty input, bad dimensions, or a call made before data was set.
	ErrPrecondition = errors.New("invalid argument")
)
