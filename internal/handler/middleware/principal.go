package middleware

import (
	"net/http"
	"strconv"

	"flashsale-starter/internal/handler/httperr"
	"flashsale-starter/internal/pkg/errs"

	"github.com/gin-gonic/gin"
)

const ctxUserIDKey = "principal_user_id"

var errMissingPrincipal = errs.New("missing authenticated principal")

// RequirePrincipal extracts the authenticated user id injected by the
// upstream auth layer (X-User-ID). Authentication itself lives outside
// this service; here we only demand that it already happened.
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			httperr.AbortWithError(c, http.StatusUnauthorized, errMissingPrincipal, "Authentication required", nil)
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			httperr.AbortWithError(c, http.StatusUnauthorized, errMissingPrincipal, "Invalid principal", nil)
			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(ctxUserIDKey)
	if !exists {
		return 0, false
	}

	id, ok := userID.(int64)
	return id, ok
}
