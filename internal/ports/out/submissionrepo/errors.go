package submissionrepo

import "errors"

// ErrNotFound indicates the requested submission record does not exist.
var ErrNotFound = errors.New("submission not found")
