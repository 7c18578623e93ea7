package persistence

import "errors"

// ErrBadMagic is returned when a file's leading bytes don't match the
// vecdb snapshot magic.
var ErrBadMagic = errors.New("persistence: not a vecdb snapshot")

// ErrIncompatibleVersion is returned when a snapshot's format_version
// exceeds MaxSupportedVersion.
var ErrIncompatibleVersion = errors.New("persistence: incompatible version")

// ErrIntegrityCheckFailed is returned when a section's CRC32 does not
// match its recorded directory entry.
var ErrIntegrityCheckFailed = errors.New("persistence: integrity check failed")

// ErrTruncated is returned when the section directory references bytes
// beyond the end of the file.
var ErrTruncated = errors.New("persistence: truncated snapshot")
