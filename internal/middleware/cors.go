package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns a CORS middleware for the given origins. The anonymous user
// header must be allowed so browsers can send it cross-origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AnonymousUserHeader, CorrelationIDHeader},
		ExposedHeaders:   []string{CorrelationIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
