package models

import "errors"

// Sentinel errors shared across the engine. Callers test with errors.Is.
var (
	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when a mutation is rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrIndexing is returned when the index rejects a submission or is unreachable.
	ErrIndexing = errors.New("indexing failed")
	// ErrUnknownDocumentType is reported when a search hit carries a document
	// type the result mapper does not recognize.
	ErrUnknownDocumentType = errors.New("unknown document type")
)
