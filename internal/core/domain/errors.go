package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrIngestion            = errors.New("document ingestion failed")
	ErrRuleExtractionFailed = errors.New("rule extraction failed")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrIndexQueryTimeout    = errors.New("index query timeout")
	ErrIndexNotReady        = errors.New("rule index not ready")
	ErrEmptyRuleSet         = errors.New("rule set is empty")
	ErrNoRuleSet            = errors.New("no style guide loaded")
	ErrSessionNotFound      = errors.New("session not found")
	ErrRunNotFound          = errors.New("review run not found")
	ErrReviewCancelled      = errors.New("review cancelled")
	ErrTemporary            = errors.New("temporary failure")
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
