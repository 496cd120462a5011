package security

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS builds the cross-origin policy for the quote form and admin client.
// A "*" entry allows any origin but disables credentials, since browsers
// refuse credentialed wildcard responses.
func CORS(originsCSV string) func(http.Handler) http.Handler {
	origins := make([]string, 0)
	wildcard := false
	for _, origin := range strings.Split(originsCSV, ",") {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			wildcard = true
		}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = []string{"*"}
		wildcard = true
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", DefaultCSRFHeader, "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replay", "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}
