package root

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Validate only runs after the JWT middleware, so reaching it means
// the token checked out
func Validate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"userID": c.MustGet("userID").(string),
	})
}
