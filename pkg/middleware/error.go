package middleware

import (
	"errors"

	"beautyhub-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error attached to the context as an errutil JSON body.
// Handlers call c.Error(err) and return without writing a response.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if errors.As(last.Err, &base) {
			c.JSON(base.Code.HTTPStatus(), base.JSON())
			return
		}

		internal := errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}
		c.JSON(internal.Code.HTTPStatus(), internal.JSON())
	}
}
