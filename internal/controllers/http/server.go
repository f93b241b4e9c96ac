package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Agrid-Dev/airtank/internal/ports"
	"github.com/Agrid-Dev/airtank/internal/tank"
)

type Server struct {
	svc      ports.TankService
	srv      *http.Server
	deviceID string
}

// New returns a runnable server.
func New(svc ports.TankService, addr string, deviceID string) *Server {
	mux := http.NewServeMux()
	s := &Server{svc: svc, deviceID: deviceID}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)

	// Write: one endpoint per variable
	mux.HandleFunc("POST /v1/valve_open", s.handlePostValveOpen)
	mux.HandleFunc("POST /v1/ambient_pressure", s.handlePostAmbientPressure)
	mux.HandleFunc("POST /v1/refill", s.handlePostRefill)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type snapshotDTO struct {
	DeviceID        string  `json:"device_id"`
	Phase           string  `json:"phase"`
	ValveOpen       bool    `json:"valve_open"`
	AmbientPressure float64 `json:"ambient_pressure"`
	Pressure        float64 `json:"pressure"`
	Density         float64 `json:"density"`
	Temperature     float64 `json:"temperature"`
	ExitVelocity    float64 `json:"exit_velocity"`
	Thrust          float64 `json:"thrust"`
	AirMass         float64 `json:"air_mass"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}

func toDTO(s tank.Snapshot) snapshotDTO {
	return snapshotDTO{
		Phase:           s.Phase().String(),
		ValveOpen:       s.ValveOpen,
		AmbientPressure: s.AmbientPressure,
		Pressure:        s.Pressure,
		Density:         s.Density,
		Temperature:     s.Temperature,
		ExitVelocity:    s.ExitVelocity,
		Thrust:          s.Thrust,
		AirMass:         s.AirMass,
		ElapsedSeconds:  s.Elapsed.Seconds(),
	}
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handlePostValveOpen(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v bool) error {
		s.svc.SetValveOpen(v)
		return nil
	})
}

func (s *Server) handlePostAmbientPressure(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		return s.svc.SetAmbientPressure(v)
	})
}

func (s *Server) handlePostRefill(w http.ResponseWriter, r *http.Request) {
	// body: {"value": 500000}
	postValue(s, w, r, func(v float64) error {
		return s.svc.Refill(v)
	})
}

// ---- generic helpers ----
func (s *Server) respondSnapshot(w http.ResponseWriter) {
	dto := toDTO(s.svc.Get())
	dto.DeviceID = s.deviceID
	writeJSON(w, http.StatusOK, dto)
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondSnapshot(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
