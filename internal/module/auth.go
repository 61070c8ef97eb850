// Package module carries cross-cutting request middleware.
package module

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const authorization = "Authorization"

var errMissingToken = errors.New("bearer token not found")

// Auth verifies the bearer token on every request. An empty required
// token disables verification; identity still comes from the X-User-ID
// header either way.
func Auth(requiredToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if requiredToken == "" {
			c.Next()
			return
		}

		token, err := accessTokenFromHeader(c, authorization)
		if err != nil || token != requiredToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"kind":    "UNAUTHORIZED",
					"message": "invalid or missing bearer token",
				},
			})
			return
		}

		c.Next()
	}
}

func accessTokenFromHeader(c *gin.Context, header string) (string, error) {
	val := c.GetHeader(header)
	if val == "" {
		return "", errMissingToken
	}
	if !strings.HasPrefix(val, "Bearer ") {
		return "", errMissingToken
	}
	return strings.TrimPrefix(val, "Bearer "), nil
}
