package manifest

import (
	"errors"

	"github.com/latticefs/node/internal/code"
)

// Sentinel errors for manifest load/save.
var (
	// ErrNotFound is returned by Load when no sidecar exists at path.
	ErrNotFound = errors.New("manifest: not found")

	// ErrParse is returned by Load when the sidecar content is
	// malformed (missing size line, bad chunk index, bad digest hex).
	ErrParse = errors.New("manifest: parse error")
)

func classify(err error) code.Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return code.NotFound
	case errors.Is(err, ErrParse):
		return code.IoError
	default:
		return code.IoError
	}
}

// Coded wraps err with its classified Kind.
func Coded(err error) error {
	if err == nil {
		return nil
	}
	return code.Wrap(classify(err), err)
}
