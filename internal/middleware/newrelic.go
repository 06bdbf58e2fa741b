package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// CallerAttributes tags the request's New Relic transaction with the
// authenticated caller. It must run after nrgin.Middleware and
// AuthMiddleware; without a transaction it does nothing.
func CallerAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		if txn := nrgin.Transaction(c); txn != nil {
			txn.AddAttribute("caller.id", CallerID(c))
			txn.AddAttribute("caller.role", string(CallerRole(c)))
		}
		c.Next()

		if txn := nrgin.Transaction(c); txn != nil {
			for _, err := range c.Errors {
				txn.NoticeError(err.Err)
			}
		}
	}
}
