// Package api serves the engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
	"github.com/rsas-protocol/rsas-go/pkg/service"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// Engine is the subset of *service.Engine the API drives.
type Engine interface {
	ListDevices(ctx context.Context) ([]registry.Device, error)
	Resolve(ctx context.Context, deviceID string) (registry.Device, error)
	Activate(ctx context.Context, req activation.Request) (activation.Result, error)
	ReadStoredFields(ctx context.Context, ref transport.Ref) (protocol.Fields, error)
	HealthSnapshot(ctx context.Context) service.Health
}

var _ Engine = (*service.Engine)(nil)

// Server holds the HTTP handlers.
type Server struct {
	engine Engine
	logger log.Logger
}

// NewRouter returns the API routes. gatherer, when non-nil, is served on
// /metrics.
func NewRouter(engine Engine, gatherer prometheus.Gatherer, logger log.Logger) http.Handler {
	if logger == nil {
		logger = log.WithName("api")
	}
	s := &Server{engine: engine, logger: logger}

	r := mux.NewRouter()
	r.Use(s.recoverPanics, s.cors, s.logRequests, limitBody)

	r.HandleFunc("/devices", s.devices).Methods(http.MethodGet)
	r.HandleFunc("/activate", s.activate).Methods(http.MethodPost)
	r.HandleFunc("/device-info", s.deviceInfo).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// Preflight requests for any route.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

type devicesResponse struct {
	Count   int          `json:"count"`
	Devices []DeviceView `json:"devices"`
	Error   string       `json:"error,omitempty"`
}

// DeviceView is a device as listed by GET /devices. Port is the serial path
// or host:port a client passes back to reach the module.
type DeviceView struct {
	ID             string         `json:"id"`
	ESN            string         `json:"esn"`
	Name           string         `json:"name"`
	Port           string         `json:"port"`
	Kind           transport.Kind `json:"connection_kind"`
	ConnectionType string         `json:"connection_type"`
	Status         string         `json:"status"`
	LastSeen       time.Time      `json:"last_seen"`
	VID            string         `json:"vid,omitempty"`
	PID            string         `json:"pid,omitempty"`
	Manufacturer   string         `json:"manufacturer,omitempty"`
	Description    string         `json:"description,omitempty"`
	Hostname       string         `json:"hostname,omitempty"`
}

// NewDeviceView flattens a registry device.
func NewDeviceView(d registry.Device) DeviceView {
	v := DeviceView{
		ID:             d.ID,
		ESN:            d.ID,
		Name:           d.Name,
		Port:           d.Ref.String(),
		Kind:           d.Kind(),
		ConnectionType: "USB",
		Status:         d.Status,
		LastSeen:       d.LastSeen,
		VID:            d.Metadata["vid"],
		PID:            d.Metadata["pid"],
		Manufacturer:   d.Metadata["manufacturer"],
		Description:    d.Metadata["description"],
		Hostname:       d.Metadata["hostname"],
	}
	if d.Kind() == transport.KindNetwork {
		v.ConnectionType = "Network"
	}
	return v
}

func (s *Server) devices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.engine.ListDevices(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, devicesResponse{Devices: []DeviceView{}, Error: err.Error()})
		return
	}
	views := make([]DeviceView, len(devices))
	for i, d := range devices {
		views[i] = NewDeviceView(d)
	}
	writeJSON(w, http.StatusOK, devicesResponse{Count: len(devices), Devices: views})
}

// ActivateRequest is the POST /activate body.
type ActivateRequest struct {
	DevicePort   string       `json:"device_port"`
	DeviceID     string       `json:"device_id"`
	AircraftData AircraftData `json:"aircraft_data"`
}

// AircraftData carries the identifiers to write.
type AircraftData struct {
	OperatorID string `json:"operator_id"`
	AircraftID string `json:"aircraft_id"`
	ESN        string `json:"esn"`
	RIDID      string `json:"rid_id"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	var body ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	req := activation.Request{
		DeviceID:   strings.TrimSpace(body.DeviceID),
		OperatorID: body.AircraftData.OperatorID,
		AircraftID: body.AircraftData.AircraftID,
		ESN:        body.AircraftData.ESN,
		RIDID:      body.AircraftData.RIDID,
	}
	if port := strings.TrimSpace(body.DevicePort); port != "" {
		req.Target = transport.SerialRef(port)
	}
	if req.Target.IsZero() && req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "Missing device_port or device_id")
		return
	}

	res, err := s.engine.Activate(r.Context(), req)
	if err != nil {
		writeError(w, StatusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type deviceInfoResponse struct {
	Success bool `json:"success"`
	protocol.Fields
}

func (s *Server) deviceInfo(w http.ResponseWriter, r *http.Request) {
	ref, err := s.target(r)
	if err != nil {
		writeError(w, StatusFor(err), err.Error())
		return
	}
	fields, err := s.engine.ReadStoredFields(r.Context(), ref)
	if err != nil {
		writeError(w, StatusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, deviceInfoResponse{Success: true, Fields: fields})
}

var errMissingTarget = errors.New("missing device_port or device_id")

// target reads device_port or device_id from the query.
func (s *Server) target(r *http.Request) (transport.Ref, error) {
	q := r.URL.Query()
	if port := strings.TrimSpace(q.Get("device_port")); port != "" {
		return transport.SerialRef(port), nil
	}
	if id := strings.TrimSpace(q.Get("device_id")); id != "" {
		d, err := s.engine.Resolve(r.Context(), id)
		if err != nil {
			return transport.Ref{}, err
		}
		return d.Ref, nil
	}
	return transport.Ref{}, errMissingTarget
}

type healthResponse struct {
	Status         string `json:"status"`
	DevicesCount   int    `json:"devices_count"`
	ConnectionType string `json:"connection_type,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	h := s.engine.HealthSnapshot(r.Context())
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "running",
		DevicesCount:   h.DeviceCount,
		ConnectionType: h.ConnectionType,
		Error:          h.Diagnostic,
	})
}

// StatusFor maps engine errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, activation.ErrValidation), errors.Is(err, errMissingTarget):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, transport.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, transport.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrDecode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// maxBodySize bounds request bodies; an activation request is a few hundred
// bytes.
const maxBodySize = 64 << 10

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error(fmt.Errorf("panic: %v", v), "handler panicked", "method", r.Method, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}
