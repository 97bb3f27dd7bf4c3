package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrLoadFailure       = errors.New("load failure")
	ErrEmbeddingFailure  = errors.New("embedding failure")
	ErrGenerationFailure = errors.New("generation failure")
	ErrRetrievalFailure  = errors.New("retrieval failure")
	ErrStoreFailure      = errors.New("store failure")
	ErrNotFound          = errors.New("not found")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
