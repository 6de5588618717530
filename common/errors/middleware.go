package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the JSON body of every error response.
type Envelope struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Errors     interface{} `json:"errors,omitempty"`
	Stack      string      `json:"stack,omitempty"`
}

// ToEnvelope maps any error to the envelope. Unknown errors become INTERNAL
// without leaking their text. The stack is only included outside production.
func ToEnvelope(err error, production bool) Envelope {
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		appErr = Internal("Internal server error", err)
	}

	env := Envelope{
		Success:    false,
		StatusCode: appErr.StatusCode,
		Code:       appErr.Code,
		Message:    appErr.Message,
		Errors:     appErr.Errors,
	}
	if env.StatusCode == 0 {
		env.StatusCode = http.StatusInternalServerError
	}
	if !production {
		env.Stack = appErr.StackTrace()
	}
	return env
}

// ErrorMiddleware renders the last error a handler attached with c.Error.
func ErrorMiddleware(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		env := ToEnvelope(c.Errors.Last().Err, production)
		c.AbortWithStatusJSON(env.StatusCode, env)
	}
}
