package controller

import (
	"net/http"

	"github/msilvano/assistant/services"
)

// mapServiceError translates the typed service errors into HTTP status codes
// and user-facing messages.
func mapServiceError(err error) (int, string) {
	if svcErr, ok := services.AsServiceError(err); ok {
		switch svcErr.Code {
		case services.ErrorValidation:
			return http.StatusBadRequest, svcErr.Reason
		case services.ErrorConfiguration:
			return http.StatusBadRequest, svcErr.Reason
		case services.ErrorUpstreamStatus:
			// Reason carries the terminal run state string.
			return http.StatusInternalServerError, "The assistant could not process the request. Status: " + svcErr.Reason
		}
	}
	return http.StatusInternalServerError, "An internal error occurred: " + err.Error()
}
