/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the daemon's HTTP surface: health, metrics,
// and a JWT-protected admin API for triggering runs and inspecting
// state.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/auth"
	"github.com/friendsincode/munin_post/internal/config"
	"github.com/friendsincode/munin_post/internal/store"
	"github.com/friendsincode/munin_post/internal/syndication"
	"github.com/friendsincode/munin_post/internal/telemetry"
	"github.com/friendsincode/munin_post/internal/version"
)

// Server bundles the HTTP router and its dependencies.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	svc        *syndication.Service
	checker    *version.Checker
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New builds the server and its routes. checker may be nil.
func New(cfg *config.Config, st *store.Store, svc *syndication.Service, checker *version.Checker, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		svc:     svc,
		checker: checker,
		logger:  logger.With().Str("component", "server").Logger(),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	s.router = router
	s.configureRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
	})
	s.router.Method(http.MethodGet, "/metrics", telemetry.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware([]byte(s.cfg.APISecret)))
		r.Post("/fetch", s.handleFetch)
		r.Post("/publish", s.handlePublish)
		r.Get("/status", s.handleStatus)
		r.Get("/upcoming", s.handleUpcoming)
	})
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until the listener fails or Close is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close drains in-flight requests.
func (s *Server) Close(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.RunFetch(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("fetch run failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.RunPublish(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("publish run failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type statusResponse struct {
	Posts         int64      `json:"posts"`
	Messages      int64      `json:"messages"`
	FullyPosted   int64      `json:"fully_posted"`
	PartiallyDone int64      `json:"partially_done"`
	Unscheduled   int64      `json:"unscheduled"`
	NextDueID     string     `json:"next_due_id,omitempty"`
	NextDueAt     *time.Time `json:"next_due_at,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := statusResponse{
		Posts:         counts.Posts,
		Messages:      counts.Messages,
		FullyPosted:   counts.FullyPosted,
		PartiallyDone: counts.PartiallyDone,
		Unscheduled:   counts.Unscheduled,
	}
	if next, err := s.store.NextEligible(r.Context()); err == nil && next != nil {
		resp.NextDueID = next.ID
		resp.NextDueAt = next.ScheduledFor
	}
	writeJSON(w, http.StatusOK, resp)
}

type upcomingEntry struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	BlogURL      string     `json:"blog_url,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for"`
	LinkedInDone bool       `json:"posted_to_linkedin"`
	XDone        bool       `json:"posted_to_x"`
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.Upcoming(r.Context(), 5)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]upcomingEntry, 0, len(msgs))
	for _, m := range msgs {
		e := upcomingEntry{
			ID:           m.ID,
			Text:         m.Text,
			ScheduledFor: m.ScheduledFor,
			LinkedInDone: m.PostedToLinkedIn,
			XDone:        m.PostedToX,
		}
		if m.BlogPost != nil {
			e.BlogURL = m.BlogPost.URL
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
