package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/api/handlers"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the scenario engine's HTTP admin/preview surface,
// mirroring the teacher's middleware stack order.
func NewRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)

	origins := parseCORSOrigins()
	isWildcard := len(origins) == 1 && origins[0] == "*"
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !isWildcard,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/version", h.Version)

	r.Route("/api/v1/sessions/{userKey}", func(r chi.Router) {
		r.Post("/start", h.StartSession)
		r.Post("/resume", h.ResumeSession)
		r.Get("/", h.GetSession)
	})

	return r
}

func parseCORSOrigins() []string {
	v := os.Getenv("SCENARIO_CORS_ORIGINS")
	if v == "" {
		return []string{"*"}
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
