// Package web exposes the calendar over HTTP: event and category CRUD,
// per-occurrence edits, the rendered agenda and an iCal export.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"daycal/internal/agenda"
	"daycal/internal/config"
	"daycal/internal/holiday"
	"daycal/internal/ics"
	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/recurrence"
	"daycal/internal/store"
)

// maxRequestBytes bounds JSON request bodies.
const maxRequestBytes = 1 << 20

// exportCacheTTL bounds how long a rendered /calendar.ics body is reused.
const exportCacheTTL = 30 * time.Second

// Imports supplies events from subscribed feeds. *subscription.Manager
// satisfies it.
type Imports interface {
	Events() []model.Event
	LastRefresh() time.Time
}

// Server serves the HTTP API.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	imports  Imports
	holidays holiday.Provider
	loc      *time.Location
	mux      *http.ServeMux
	now      func() time.Time

	// Rendered export, dropped on every write.
	exportMu    sync.RWMutex
	exportCache *exportCache
}

type exportCache struct {
	body      string
	updatedAt time.Time
}

// NewServer constructs a Server. imports and holidays may be nil.
func NewServer(cfg *config.Config, st *store.Store, imports Imports, holidays holiday.Provider) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		imports:  imports,
		holidays: holidays,
		loc:      cfg.Location(),
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.PasswordHash != ""
}

// basicAuthMiddleware guards every route except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	hash := []byte(s.cfg.BasicAuth.PasswordHash)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || bcrypt.CompareHashAndPassword(hash, []byte(p)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="daycal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/events/{id}/occurrences/{date}", s.handleGetOccurrence)
	s.mux.HandleFunc("PUT /api/events/{id}/occurrences/{date}", s.handlePutOccurrence)
	s.mux.HandleFunc("DELETE /api/events/{id}/occurrences/{date}", s.handleDeleteOccurrence)
	s.mux.HandleFunc("DELETE /api/events/{id}/occurrences/{date}/override", s.handleRestoreOccurrence)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)

	s.mux.HandleFunc("GET /api/categories", s.handleListCategories)
	s.mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	s.mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	s.mux.HandleFunc("GET /calendar.ics", s.handleExport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListEvents())
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if !decodeJSON(w, r, &ev) {
		return
	}
	created, err := s.store.CreateEvent(ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateExport()
	appLog.Info("event created", "event_id", created.ID, "recurring", created.Recurring != nil)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.GetEvent(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if !decodeJSON(w, r, &ev) {
		return
	}
	ev.ID = r.PathValue("id")
	updated, err := s.store.UpdateEvent(ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateExport()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEvent(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateExport()
	w.WriteHeader(http.StatusNoContent)
}

// handleGetOccurrence returns one occurrence as it is rendered.
func (s *Server) handleGetOccurrence(w http.ResponseWriter, r *http.Request) {
	ev, date, ok := s.scheduledOccurrence(w, r)
	if !ok {
		return
	}
	occ, ok := recurrence.Resolve(ev, date)
	if !ok {
		writeError(w, http.StatusNotFound, "occurrence deleted")
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

// handlePutOccurrence edits a single occurrence. The body carries the
// override fields; the date comes from the path.
func (s *Server) handlePutOccurrence(w http.ResponseWriter, r *http.Request) {
	ev, date, ok := s.scheduledOccurrence(w, r)
	if !ok {
		return
	}
	var ex model.RecurringException
	if !decodeJSON(w, r, &ex) {
		return
	}
	ex.Date = date
	s.saveException(w, ev.ID, ex)
}

func (s *Server) handleDeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	ev, date, ok := s.scheduledOccurrence(w, r)
	if !ok {
		return
	}
	s.saveException(w, ev.ID, model.RecurringException{Date: date, Deleted: true})
}

// handleRestoreOccurrence drops any exception for the date.
func (s *Server) handleRestoreOccurrence(w http.ResponseWriter, r *http.Request) {
	updated, err := s.store.RemoveException(r.PathValue("id"), r.PathValue("date"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateExport()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) saveException(w http.ResponseWriter, eventID string, ex model.RecurringException) {
	updated, err := s.store.SetException(eventID, ex)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateExport()
	appLog.Info("occurrence edited", "event_id", eventID, "date", ex.Date, "deleted", ex.Deleted)
	writeJSON(w, http.StatusOK, updated)
}

// scheduledOccurrence loads the event and checks that its rule schedules an
// occurrence on the path date. It writes the error response itself.
func (s *Server) scheduledOccurrence(w http.ResponseWriter, r *http.Request) (model.Event, string, bool) {
	ev, err := s.store.GetEvent(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return model.Event{}, "", false
	}
	date := r.PathValue("date")
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeValidation(w, &model.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"})
		return model.Event{}, "", false
	}
	if ev.Recurring == nil {
		writeValidation(w, &model.ValidationError{Field: "recurring", Reason: "event does not recur"})
		return model.Event{}, "", false
	}
	if _, ok := recurrence.ScheduledStart(ev, date); !ok {
		writeError(w, http.StatusNotFound, "no occurrence on "+date)
		return model.Event{}, "", false
	}
	return ev, date, true
}

// handleCalendar renders the agenda for ?start=&end=. Both accept RFC 3339
// or YYYY-MM-DD; a bare end date covers that whole day. Missing bounds
// default to today through the configured horizon.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today := startOfDay(s.now().In(s.loc))

	start, err := parseBound(q.Get("start"), s.loc, false, today)
	if err != nil {
		writeValidation(w, &model.ValidationError{Field: "start", Reason: err.Error()})
		return
	}
	end, err := parseBound(q.Get("end"), s.loc, true, today.AddDate(0, 0, s.cfg.HorizonDays).Add(-time.Nanosecond))
	if err != nil {
		writeValidation(w, &model.ValidationError{Field: "end", Reason: err.Error()})
		return
	}
	if start.After(end) {
		writeValidation(w, &model.ValidationError{Field: "end", Reason: "must not be before start"})
		return
	}

	in := agenda.Input{
		Events:        s.store.ListEvents(),
		Categories:    s.store.ListCategories(),
		WindowStart:   start,
		WindowEnd:     end,
		MaxIterations: s.cfg.MaxExpansionIterations,
	}
	if s.imports != nil {
		in.Imported = s.imports.Events()
	}
	if s.holidays != nil {
		in.Holidays = holiday.InRange(s.holidays, start, end, s.loc)
	}

	view, err := agenda.Build(in)
	if err != nil {
		appLog.Error("api calendar: build failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build calendar")
		return
	}

	appLog.Debug("api calendar request",
		"start", start.Format(time.RFC3339),
		"end", end.Format(time.RFC3339),
		"items", len(view.Items),
	)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListCategories())
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var c model.Category
	if !decodeJSON(w, r, &c) {
		return
	}
	created, err := s.store.CreateCategory(c)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateExport()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCategory(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateExport()
	w.WriteHeader(http.StatusNoContent)
}

// handleExport serves local events as an iCal feed.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	now := s.now()

	s.exportMu.RLock()
	ec := s.exportCache
	s.exportMu.RUnlock()

	body := ""
	if ec != nil && now.Sub(ec.updatedAt) < exportCacheTTL {
		body = ec.body
	} else {
		var err error
		body, err = ics.Export(s.store.ListEvents(), s.store.ListCategories(), now)
		if err != nil {
			appLog.Error("ics export failed", err)
			writeError(w, http.StatusInternalServerError, "failed to export calendar")
			return
		}
		s.exportMu.Lock()
		s.exportCache = &exportCache{body: body, updatedAt: now}
		s.exportMu.Unlock()
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) invalidateExport() {
	s.exportMu.Lock()
	s.exportCache = nil
	s.exportMu.Unlock()
}

// parseBound parses a window bound. A date-only value is the start of that
// day, or the last instant of it when endOfDay is set.
func parseBound(v string, loc *time.Location, endOfDay bool, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	d, err := time.ParseInLocation(model.DateLayout, v, loc)
	if err != nil {
		return time.Time{}, errors.New("must be RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return d, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeStoreError maps store and validation errors onto status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		appLog.Error("store operation failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeValidation(w http.ResponseWriter, verr *model.ValidationError) {
	writeJSON(w, http.StatusBadRequest, errResp{Error: verr.Error(), Field: verr.Field})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errResp struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}
