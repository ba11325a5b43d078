package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/logging"
)

const (
	StatusOK      = "ok"
	StatusPending = "pending"
)

//ErrorResponse is a dto for sending error response
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

//ErrResponse is a constructor for ErrorResponse
func ErrResponse(msg string, err error) *ErrorResponse {
	if err == nil {
		return &ErrorResponse{Message: msg}
	}

	return &ErrorResponse{
		Message: fmt.Sprintf("%s: %s", msg, err.Error()),
		Error:   err.Error(),
	}
}

//StatusResponse is a dto for sending operation status
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

//OKResponse returns StatusResponse with Status = "ok"
func OKResponse() StatusResponse {
	return StatusResponse{Status: StatusOK}
}

//PendingResponse returns StatusResponse with Status = "pending"
func PendingResponse() StatusResponse {
	return StatusResponse{Status: StatusPending}
}

//StatusCode maps typed service errors to HTTP codes
func StatusCode(err error) int {
	switch {
	case errorj.IsValidation(err):
		return http.StatusBadRequest
	case errorj.IsNotFound(err):
		return http.StatusNotFound
	case errorj.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

//AbortWithError writes ErrorResponse with the status code of the error.
//Client errors carry the error message as is, internal errors are logged and hidden behind msg
func AbortWithError(c *gin.Context, msg string, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		logging.Errorf("%s %s: %s: %v", c.Request.Method, c.Request.URL.Path, msg, err)
		c.AbortWithStatusJSON(code, ErrResponse(msg, nil))
		return
	}

	c.AbortWithStatusJSON(code, &ErrorResponse{Message: errorj.Message(err)})
}
