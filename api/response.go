package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ogsm-service/apierr"
	"ogsm-service/service"
)

type APIError struct {
	Message  string     `json:"message"`
	Code     string     `json:"code,omitempty"`
	FailedID *uuid.UUID `json:"failed_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondWithJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// respondWithError writes err as an error envelope. Errors that do not
// carry a status are reported as storage failures.
func (h *ComponentHandler) respondWithError(c *gin.Context, err error) {
	ae := apierr.From(err)
	body := APIError{Message: ae.Error(), Code: ae.Code}

	var failure *service.ReorderFailure
	if errors.As(err, &failure) {
		body.FailedID = &failure.ID
	}

	if ae.Status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "error", err)
		body.Message = "internal error"
	}
	c.AbortWithStatusJSON(ae.Status, ErrorEnvelope{Error: body})
}

func respondBadRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorEnvelope{Error: APIError{Message: message, Code: code}})
}
