package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound), domain.IsKind(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNoRuleSet), domain.IsKind(err, domain.ErrReviewCancelled):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrIngestion),
		domain.IsKind(err, domain.ErrEmptyRuleSet),
		domain.IsKind(err, domain.ErrRuleExtractionFailed):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrIndexQueryTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrEmbeddingUnavailable),
		domain.IsKind(err, domain.ErrIndexNotReady),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
