package registry

import "errors"

var (
	// backing store is missing or malformed; screening degrades to an empty corpus
	ErrCorpusUnavailable = errors.New("identity corpus unavailable")
	ErrNotFound          = errors.New("identity not in registry")
	ErrNotAuditor        = errors.New("not an auditor")
	ErrPersistence       = errors.New("saving registry")
)
