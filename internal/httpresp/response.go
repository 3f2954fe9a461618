// Package httpresp is the Dispatcher's response envelope, adapted from the
// pack's gin response helpers to Optimus's own error taxonomy.
package httpresp

import (
	"github.com/gin-gonic/gin"

	"optimus/internal/oerr"
)

// Response is the envelope every Dispatcher endpoint returns on an error
// path; success paths return the wire shapes of spec.md §6 directly.
type Response struct {
	Code    oerr.Code   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error sends an error response, extracting the HTTP status from the error's code.
func Error(c *gin.Context, err error) {
	e := oerr.GetCode(err)
	msg := err.Error()
	c.JSON(e.HTTPStatus(), Response{Code: e, Message: msg})
}

// ErrorWithCode sends an error response for a bare code with no wrapped error.
func ErrorWithCode(c *gin.Context, code oerr.Code, message string) {
	if message == "" {
		message = code.Message()
	}
	c.JSON(code.HTTPStatus(), Response{Code: code, Message: message})
}

// BadRequest sends a 400 validation error.
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, oerr.Validation, message)
}

// NotFound sends a 404 not-found error.
func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = "not found"
	}
	ErrorWithCode(c, oerr.NotFound, message)
}

// InternalServerError sends a 500 internal error.
func InternalServerError(c *gin.Context, err error) {
	ErrorWithCode(c, oerr.Internal, err.Error())
}

// JSON is a thin wrapper kept for symmetry with the pack's Success helper;
// the Dispatcher's success paths use the literal wire shapes of spec.md §6,
// not a generic envelope, so this just forwards to gin.
func JSON(c *gin.Context, status int, body interface{}) {
	c.JSON(status, body)
}
