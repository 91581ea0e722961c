package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"mobilus-to-mqtt/application"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const StatusServerShutdownTimeout = 5 * time.Second

// SnapshotSource is the read side of the coordinator.
type SnapshotSource interface {
	Snapshot() *application.Snapshot
	LastUpdateSuccess() bool
	RequestRefresh()
}

type StatusServerParams struct {
	Listen   string
	Source   SnapshotSource
	Gatherer prometheus.Gatherer

	Log zerolog.Logger
}

type StatusServer struct {
	params StatusServerParams

	router chi.Router

	log zerolog.Logger
}

type snapshotResponse struct {
	Available bool                       `json:"available"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Devices   []*application.DeviceState `json:"devices"`
}

func NewStatusServer(params StatusServerParams) *StatusServer {
	s := &StatusServer{params: params, log: params.Log}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/devices", s.handleDevices)
	r.Get("/api/devices/{id}", s.handleDevice)
	r.Post("/api/refresh", s.handleRefresh)
	if params.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r

	return s
}

func (s *StatusServer) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done.
func (s *StatusServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.params.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.params.Listen).Msg("status server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), StatusServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("status server stopped")
	return nil
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.params.Source.LastUpdateSuccess() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *StatusServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	snapshot := s.params.Source.Snapshot()

	resp := snapshotResponse{
		Available: s.params.Source.LastUpdateSuccess(),
		UpdatedAt: snapshot.UpdatedAt,
		Devices:   make([]*application.DeviceState, 0, len(snapshot.Devices)),
	}
	for _, state := range snapshot.Devices {
		resp.Devices = append(resp.Devices, state)
	}
	sort.Slice(resp.Devices, func(i, j int) bool {
		return resp.Devices[i].DeviceID < resp.Devices[j].DeviceID
	})

	writeJSON(w, http.StatusOK, resp)
}

func (s *StatusServer) handleDevice(w http.ResponseWriter, r *http.Request) {
	state, ok := s.params.Source.Snapshot().Device(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *StatusServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.params.Source.RequestRefresh()
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
