package repository

import "errors"

var (
	// ErrInvalidInput is returned when the root is missing, is not a
	// directory, or cannot be listed. It is the only fatal walk error.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEntryUnreadable marks a file or sub-directory that could not be
	// stat'ed, opened or read. The entry is skipped.
	ErrEntryUnreadable = errors.New("entry unreadable")

	// ErrBinaryDetection marks a file whose leading bytes could not be
	// read for the binary check. The file is then treated as text.
	ErrBinaryDetection = errors.New("binary detection failed")
)

// IssueKind names a recovered condition.
type IssueKind string

const (
	IssueEntryUnreadable IssueKind = "entry_unreadable"
	IssueBinaryDetection IssueKind = "binary_detection_failure"
	// IssueDecodeFallback means the file held invalid UTF-8 that was
	// replaced with U+FFFD. It is informational, not an error.
	IssueDecodeFallback IssueKind = "decode_fallback"
)

// Issue records one recovered condition. Err wraps the category sentinel
// and the underlying cause; it is nil for decode fallbacks.
type Issue struct {
	Kind IssueKind `json:"kind" yaml:"kind"`
	Path string    `json:"path" yaml:"path"`
	Err  error     `json:"-" yaml:"-"`
}

// Message returns the error text, or an empty string.
func (i Issue) Message() string {
	if i.Err == nil {
		return ""
	}
	return i.Err.Error()
}
