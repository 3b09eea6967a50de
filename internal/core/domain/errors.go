package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound also masks tenant-isolation violations: an
	// update scoped to the wrong organization surfaces as not-found,
	// never as a cross-tenant existence leak.
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStorageFetch     = errors.New("storage fetch failed")
	ErrParse            = errors.New("parse failed")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
