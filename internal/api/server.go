package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pbaille/cvvault/internal/domain"
	"github.com/pbaille/cvvault/internal/enrich"
	"github.com/pbaille/cvvault/internal/metrics"
	"github.com/pbaille/cvvault/internal/portfolio"
	"github.com/prometheus/client_golang/prometheus"
)

// Server exposes the vault over HTTP for a browser front end
type Server struct {
	repo     *portfolio.Repository
	coord    *enrich.Coordinator
	log      *slog.Logger
	gatherer prometheus.Gatherer
}

// New creates a new API server; gatherer may be nil to disable /metrics
func New(repo *portfolio.Repository, coord *enrich.Coordinator, log *slog.Logger, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{repo: repo, coord: coord, log: log.With("component", "api"), gatherer: gatherer}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/health", s.health)
	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer))
	}

	r.Get("/export", s.export)

	r.Route("/entries/{kind}", func(r chi.Router) {
		r.Get("/", s.listEntries)
		r.Post("/", s.addEntry)
		r.Get("/{id}", s.getEntry)
		r.Delete("/{id}", s.deleteEntry)
		r.Post("/{id}/reflect", s.reflect)
		r.Get("/{id}/status", s.status)
	})

	return r
}

// Run serves on addr until ctx is cancelled, then waits for in-flight
// enrichments to be written back
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.coord.Wait()
	s.log.Info("server stopped")
	return err
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.Export())
}

func kindParam(w http.ResponseWriter, r *http.Request) (domain.Kind, bool) {
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

// EntryView is an entry plus its enrichment status
type EntryView struct {
	Entry   domain.Entry `json:"entry"`
	Pending bool         `json:"pending"`
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	entries := s.repo.List(kind)
	views := make([]EntryView, len(entries))
	for i, e := range entries {
		views[i] = EntryView{Entry: e, Pending: s.coord.IsPending(kind, e.EntryID())}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"kind":    kind,
		"entries": views,
	})
}

func (s *Server) addEntry(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	var (
		entry domain.Entry
		err   error
	)
	switch kind {
	case domain.KindExperience:
		var in domain.ExperienceInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		entry, err = s.repo.AddExperience(r.Context(), in)
	case domain.KindEducation:
		var in domain.EducationInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		entry, err = s.repo.AddEducation(r.Context(), in)
	}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	entry, found := s.repo.Get(kind, id)
	if !found {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}

	writeJSON(w, http.StatusOK, EntryView{Entry: entry, Pending: s.coord.IsPending(kind, id)})
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	if err := s.repo.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reflect(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if _, found := s.repo.Get(kind, id); !found {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}

	if !s.coord.Trigger(r.Context(), kind, id) {
		writeError(w, http.StatusConflict, "enrichment already pending")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "pending": true})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "pending": s.coord.IsPending(kind, id)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
