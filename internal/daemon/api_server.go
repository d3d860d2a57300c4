package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"conductor/internal/journal"
	"conductor/internal/logging"
)

// APIServer exposes a read-only HTTP view of the daemon for dashboards and
// scripts on the rig's local network.
type APIServer struct {
	bind   string
	daemon *Daemon
	logger *slog.Logger
	server *http.Server
}

// NewAPIServer builds the HTTP server. An empty bind address disables it.
func NewAPIServer(bind string, d *Daemon, logger *slog.Logger) *APIServer {
	return &APIServer{
		bind:   bind,
		daemon: d,
		logger: logging.NewComponentLogger(logger, "api-server"),
	}
}

// Routes returns the HTTP handler. Exposed for tests.
func (s *APIServer) Routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/devices", s.handleDevices).Methods(http.MethodGet)
	router.HandleFunc("/api/devices/{id:.+}", s.handleDevice).Methods(http.MethodGet)
	router.HandleFunc("/api/modules", s.handleModules).Methods(http.MethodGet)
	router.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	return router
}

// Start begins serving in the background. Disabled when no bind address is
// configured.
func (s *APIServer) Start() {
	if s.bind == "" {
		return
	}
	s.server = &http.Server{
		Addr:              s.bind,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("http api server stopped unexpectedly",
				logging.Error(err),
				logging.String(logging.FieldEventType, "api_server_failed"),
				logging.String(logging.FieldErrorHint, "check the api bind address is free"),
				logging.String(logging.FieldImpact, "http status surface unavailable"),
			)
		}
	}()
	s.logger.Info("http api listening",
		logging.String(logging.FieldEventType, "api_server_started"),
		logging.String("bind", s.bind),
	)
}

// Stop shuts the server down gracefully.
func (s *APIServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *APIServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, deviceDTOs(s.daemon.Devices()))
}

func (s *APIServer) handleDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d, ok := s.daemon.Device(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	writeJSON(w, http.StatusOK, ToDeviceDTO(d))
}

func (s *APIServer) handleModules(w http.ResponseWriter, r *http.Request) {
	modules := s.daemon.Modules()
	if modules == nil {
		modules = []ModuleInfo{}
	}
	writeJSON(w, http.StatusOK, modules)
}

func (s *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	events, err := s.daemon.EventTail(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
