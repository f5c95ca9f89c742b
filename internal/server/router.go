// Package server assembles the HTTP router.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayush/task-manager/internal/events"
	"github.com/ayush/task-manager/internal/middleware"
	"github.com/ayush/task-manager/internal/respond"
	"github.com/ayush/task-manager/internal/store"
	"github.com/ayush/task-manager/internal/tasks"
	"github.com/ayush/task-manager/internal/users"
	"github.com/ayush/task-manager/internal/validation"
)

// Deps are the collaborators the router needs.
type Deps struct {
	Store          store.Store
	Events         events.Publisher
	AllowedOrigins []string
	// Registry receives the HTTP and process metrics. A fresh registry is
	// created when nil.
	Registry *prometheus.Registry
	// AccessLog enables chi's request logger.
	AccessLog bool
}

// NewRouter wires every route onto a chi router.
func NewRouter(d Deps) http.Handler {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	v := validation.New()
	userHandler := users.NewHandler(d.Store, v, d.Events)
	taskHandler := tasks.NewHandler(d.Store, v, d.Events)
	metrics := middleware.NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if d.AccessLog {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(metrics.Handler)
	r.Use(chimw.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", health(d.Store))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/users", func(r chi.Router) {
		r.Post("/", userHandler.Create)
		r.Get("/{id}", userHandler.Get)
		r.Delete("/{id}", userHandler.Delete)
		r.Get("/{id}/tasks", taskHandler.ListByUser)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.Create)
		r.Get("/", taskHandler.List)
		r.Get("/user/{id}", taskHandler.ListByUser)
		r.Put("/{id}", taskHandler.Update)
		r.Delete("/{id}", taskHandler.Delete)
	})

	return r
}

func health(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
