package analysis

import "errors"

var (
	// ErrNotFound is returned by repositories when a run or suggestion does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition guards the run state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMalformedResponse means the inference payload is not a well-formed review object.
	ErrMalformedResponse = errors.New("malformed inference response")

	// ErrInvalidDisposition rejects unknown suggestion statuses.
	ErrInvalidDisposition = errors.New("invalid suggestion status")

	// ErrInvalidInput rejects comment and review drafts the host would refuse.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFileTooLarge means a file's content exceeds the fetch limit; the file is skipped.
	ErrFileTooLarge = errors.New("file content too large")
)
