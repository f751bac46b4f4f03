package feedback

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyComment rejects blank comments before any request is made.
	ErrEmptyComment = errors.New("feedback: comment text required")
	// ErrVersionMismatch rejects operations against a version other than the loaded one.
	ErrVersionMismatch = errors.New("feedback: version is not loaded")
	// ErrMissingTitle rejects operations without a section title.
	ErrMissingTitle = errors.New("feedback: section title required")
)

// ServiceError carries a stable code of the form feedback.<operation>.<reason>.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opLoad    = "feedback.load"
	opLike    = "feedback.like"
	opDislike = "feedback.dislike"
	opComment = "feedback.comment"

	reasonRequestFailed   = "request_failed"
	reasonVersionMismatch = "version_mismatch"
	reasonEmptyComment    = "empty_comment"
	reasonMissingTitle    = "missing_title"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
