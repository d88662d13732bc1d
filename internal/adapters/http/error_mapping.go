package httpadapter

import (
	"net/http"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrWorkflowNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDependencyTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// statusForResult maps a finished workflow to its response code. Failures
// carry the full result body either way, so the code only routes retries.
func statusForResult(result domain.WorkflowResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.ErrorCategory {
	case domain.CategoryValidation:
		return http.StatusBadRequest
	case domain.CategorySecurity:
		return http.StatusUnauthorized
	case domain.CategoryDependencyTimeout:
		return http.StatusGatewayTimeout
	case domain.CategoryDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
