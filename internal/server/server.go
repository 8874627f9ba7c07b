// Package server is the reference REST backend for the MyPM client.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/kimhyun5u/MyPM/internal/logging"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

// Store is the persistence the server needs. Unknown ids are reported with
// models.ErrNotFound; a missing retrospective for a date is (nil, nil).
type Store interface {
	ListTasks(ctx context.Context, status *models.TaskStatus) ([]models.Task, error)
	CreateTask(ctx context.Context, in models.TaskCreate) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, in models.TaskUpdate) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	GetRetrospectiveByDate(ctx context.Context, date string) (*models.Retrospective, error)
	SaveRetrospective(ctx context.Context, in models.RetrospectiveCreate) (*models.Retrospective, error)
	AttachTask(ctx context.Context, retrospectiveID, taskID string) (*models.Retrospective, error)
}

type Server struct {
	store   Store
	logger  *log.Logger
	now     func() time.Time
	handler http.Handler
	server  *http.Server
}

type Option func(*Server)

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used to default retrospective dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(store Store, opts ...Option) *Server {
	s := &Server{
		store:  store,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = withCORS(trimTrailingSlash(s.withLogging(s.routes())))
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter().UseEncodedPath()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	router.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{taskID}", s.handleUpdateTask).Methods(http.MethodPatch)
	router.HandleFunc("/tasks/{taskID}", s.handleDeleteTask).Methods(http.MethodDelete)

	router.HandleFunc("/retrospectives", s.handleSaveRetrospective).Methods(http.MethodPost)
	router.HandleFunc("/retrospectives/date/{date}", s.handleGetRetrospectiveByDate).Methods(http.MethodGet)
	router.HandleFunc("/retrospectives/{retroID}/tasks/{taskID}", s.handleAttachTask).Methods(http.MethodPost)

	return router
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening", "addr", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var filter *models.TaskStatus
	if raw := r.URL.Query().Get("status_filter"); raw != "" {
		status := models.TaskStatus(raw)
		if !status.Valid() {
			writeJSON(w, http.StatusOK, []models.Task{})
			return
		}
		filter = &status
	}

	tasks, err := s.store.ListTasks(r.Context(), filter)
	s.respond(w, r, http.StatusOK, tasks, err)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in models.TaskCreate
	if !s.decode(w, r, taskCreateSchema, &in) {
		return
	}
	task, err := s.store.CreateTask(r.Context(), in)
	s.respond(w, r, http.StatusCreated, task, err)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathVar(w, r, "taskID")
	if !ok {
		return
	}
	var in models.TaskUpdate
	if !s.decode(w, r, taskUpdateSchema, &in) {
		return
	}
	task, err := s.store.UpdateTask(r.Context(), id, in)
	s.respond(w, r, http.StatusOK, task, err)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathVar(w, r, "taskID")
	if !ok {
		return
	}
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		s.respond(w, r, 0, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRetrospectiveByDate(w http.ResponseWriter, r *http.Request) {
	date, ok := pathVar(w, r, "date")
	if !ok {
		return
	}
	if !models.ValidDate(date) {
		writeDetail(w, http.StatusUnprocessableEntity, models.ErrInvalidDate.Error())
		return
	}
	retro, err := s.store.GetRetrospectiveByDate(r.Context(), date)
	if err == nil && retro == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s.respond(w, r, http.StatusOK, retro, err)
}

func (s *Server) handleSaveRetrospective(w http.ResponseWriter, r *http.Request) {
	var in models.RetrospectiveCreate
	if !s.decode(w, r, retrospectiveCreateSchema, &in) {
		return
	}
	if models.NormalizeOptional(in.Date) == nil {
		in.Date = models.Ptr(models.Today(s.now()))
	}
	retro, err := s.store.SaveRetrospective(r.Context(), in)
	s.respond(w, r, http.StatusCreated, retro, err)
}

func (s *Server) handleAttachTask(w http.ResponseWriter, r *http.Request) {
	retroID, ok := pathVar(w, r, "retroID")
	if !ok {
		return
	}
	taskID, ok := pathVar(w, r, "taskID")
	if !ok {
		return
	}
	retro, err := s.store.AttachTask(r.Context(), retroID, taskID)
	s.respond(w, r, http.StatusOK, retro, err)
}

// decode validates the request body against schema and decodes it into out.
// It writes the error response itself and reports whether to continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, schema *requestSchema, out any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := schema.validate(body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, data)
	case errors.Is(err, models.ErrNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrTitleRequired),
		errors.Is(err, models.ErrInvalidDate),
		errors.Is(err, models.ErrInvalidStatus):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func pathVar(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(mux.Vars(r)[name])
	if err != nil || v == "" {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return "", false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
