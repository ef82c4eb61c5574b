package handlers

import (
	"log"
	"net/http"

	"github.com/devoll/rhga-schedule-bot/internal/auth"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware protege las rutas de administración con Basic Auth.
// Sin archivo de credenciales deja pasar todo (modo desarrollo).
func AuthMiddleware(creds auth.Credentials) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !creds.Enabled() {
			c.Next()
			return
		}

		user, pass, ok := c.Request.BasicAuth()
		if !ok || !creds.Check(user, pass) {
			log.Printf("⚠️  Failed auth attempt from %s (user: %s)", c.ClientIP(), user)
			c.Header("WWW-Authenticate", `Basic realm="Schedule Sync"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
