package docstore

import "errors"

var (
	// ErrNotFound is returned when a document is not stored locally.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrNoSigningKey is returned when a document was not created locally.
	ErrNoSigningKey = errors.New("docstore: no signing key for document")

	// ErrNotDocument is returned when a non-document link is used as a document.
	ErrNotDocument = errors.New("docstore: link is not a document")
)
