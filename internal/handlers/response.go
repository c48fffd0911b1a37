package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/depositly-backend/internal/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := apierr.CodeInternal
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if ae, ok := apierr.As(err); ok {
		status = ae.Status
		code = ae.Code
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
