package middleware

import "github.com/gin-gonic/gin"

// Fail aborts the request with the common failure body.
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
