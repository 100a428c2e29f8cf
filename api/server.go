// Package api is the HTTP surface for submitting and inspecting tasks.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Tasks is what the handlers need from the orchestrator.
type Tasks interface {
	Submit(desc types.TaskDescription) (uuid.UUID, error)
	Get(id uuid.UUID) (types.Task, bool)
	List() []types.Task
}

type SubmitResponse struct {
	TaskID uuid.UUID `json:"taskId"`
}

// Server serves the task endpoints, the task event stream and /metrics.
type Server struct {
	tasks    Tasks
	hub      *Hub
	gatherer prometheus.Gatherer
	srv      *http.Server
	listener net.Listener
}

// NewServer wires the routes. hub and gatherer may be nil, in which case
// /tasks/stream and /metrics are not served.
func NewServer(tasks Tasks, hub *Hub, gatherer prometheus.Gatherer) *Server {
	return &Server{tasks: tasks, hub: hub, gatherer: gatherer}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/tasks", s.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/tasks", s.handleList).Methods(http.MethodGet)
	if s.hub != nil {
		router.HandleFunc("/tasks/stream", s.hub.serveWs).Methods(http.MethodGet)
	}
	router.HandleFunc("/tasks/{id}", s.handleGet).Methods(http.MethodGet)
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return router
}

// Handler is the router behind CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
			http.MethodHead},
	})
	return c.Handler(s.Router())
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Info(log.APIMonitoring, "task API started", "address", fmt.Sprintf("http://%s", listener.Addr()))

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(log.APIMonitoring, "task API server error", "err", err)
		}
	}()
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var desc types.TaskDescription
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		http.Error(w, "invalid task description", http.StatusBadRequest)
		return
	}
	id, err := s.tasks.Submit(desc)
	if err != nil {
		log.Error(log.APIMonitoring, "submit", "query", desc.QueryID, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, SubmitResponse{TaskID: id})
}

// handleGet answers unknown and malformed ids with a NotFound record.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, types.NotFoundTask(uuid.Nil))
		return
	}
	t, ok := s.tasks.Get(id)
	if !ok {
		t = types.NotFoundTask(id)
	}
	writeJSON(w, t)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.tasks.List())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn(log.APIMonitoring, "write response", "err", err)
	}
}
