package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FromHTTP adapts net/http middleware to Gin. The Gin chain continues
// inside the wrapped handler, with whatever request the middleware passed
// on; if the middleware answered by itself the chain is aborted.
func FromHTTP(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			c.Request = r
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		if !called {
			c.Abort()
		}
	}
}

// GinRequireAuth is RequireAuth for Gin routes.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return FromHTTP(auth.RequireAuth)
}
