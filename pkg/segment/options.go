package segment

import (
	"os"

	"github.com/TernDB/tern/pkg/common/log"
)

// WriterOptions carries the file and logging configuration injected into a
// segment build. The data format's thresholds are fixed constants (see
// format.go) and deliberately not configurable: two segments built by
// different processes must stay byte-compatible.
type WriterOptions struct {
	// OpenFlags is OR-ed into the flags used to open artifact files, on top
	// of the write-create flags the writer always needs.
	OpenFlags int

	// FileMode is the permission mode for created files.
	FileMode os.FileMode

	// SyncOnFinalize syncs artifacts to stable storage before they are
	// renamed into place.
	SyncOnFinalize bool

	// Logger receives the writer's progress output. Nil selects the
	// package default logger.
	Logger log.Logger
}

// DefaultWriterOptions returns the options used when the caller has no
// special requirements.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		FileMode:       0644,
		SyncOnFinalize: true,
	}
}

// sanitize fills zero-valued fields with their defaults.
func (o WriterOptions) sanitize() WriterOptions {
	if o.FileMode == 0 {
		o.FileMode = 0644
	}
	if o.Logger == nil {
		o.Logger = log.GetDefaultLogger()
	}
	return o
}
