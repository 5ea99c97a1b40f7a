package documents

import "errors"

var (
	ErrUnauthenticated  = errors.New("login required")
	ErrEmptyUploadBatch = errors.New("at least one file is required")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("document not found")
	ErrFileUnavailable  = errors.New("document file unavailable")
)
