package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nuevabiblioteca/biblioteca/internal/api/shared"
)

// NewRouter builds the HTTP router for the local frontend surface.
func NewRouter(tasks *TaskHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(traceMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", tasks.EnqueueTask)
			r.Get("/{id}", tasks.GetTask)
			r.Delete("/{id}", tasks.CancelTask)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// traceMiddleware adds a trace ID to the request context so log lines
// and error responses for one request can be correlated.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
