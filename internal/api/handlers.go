// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tamzrod/baywatch/internal/config"
	"github.com/tamzrod/baywatch/internal/health"
	"github.com/tamzrod/baywatch/internal/occupancy"
	"github.com/tamzrod/baywatch/internal/supervisor"
)

// HealthSource yields the current health snapshot. *health.Aggregator satisfies it.
type HealthSource interface {
	Snapshot() health.Snapshot
}

// Handler serves the bay API over a fixed registry.
type Handler struct {
	Bays    *supervisor.Registry
	Health  HealthSource
	Config  *config.Config
	Env     config.LookupEnv // read by config reload; nil means os.LookupEnv
	Version string
	Started time.Time
	Now     func() time.Time
	Log     *slog.Logger

	// guards Config after a reload
	cfgMu sync.RWMutex
}

type errorResponse struct {
	Ok      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type okResponse struct {
	Ok bool `json:"ok"`
}

// bayView is the per-bay status read.
type bayView struct {
	ID                  int              `json:"id"`
	Status              occupancy.Status `json:"status"`
	LastUpdated         time.Time        `json:"lastUpdated"`
	IsConnected         bool             `json:"isConnected"`
	DetectionConfidence float64          `json:"detectionConfidence"`
	Calibrating         bool             `json:"calibrating"`
}

// stationView is the customer-facing read.
type stationView struct {
	ID          int              `json:"id"`
	Status      occupancy.Status `json:"status"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

type outOfServiceRequest struct {
	OutOfService *bool `json:"outOfService"`
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleLiveness)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/config", h.handleConfig)
		r.Post("/config/reload", h.handleConfigReload)
		r.Get("/guest/stations", h.handleGuestStations)
		r.Route("/bays", func(r chi.Router) {
			r.Get("/", h.handleBaysList)
			r.Get("/{id}", h.handleBayGet)
			r.Post("/{id}/force_available", h.handleForceAvailable)
			r.Post("/{id}/out_of_service", h.handleOutOfService)
			r.Post("/{id}/reset_calibration", h.handleResetCalibration)
			r.Post("/{id}/reset_quality", h.handleResetQuality)
		})
	})
}

// ---- reads ----

func (h *Handler) handleBaysList(w http.ResponseWriter, r *http.Request) {
	bays := h.Bays.Bays()
	out := make([]bayView, 0, len(bays))
	for _, b := range bays {
		out = append(out, viewOf(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleBayGet(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(b))
}

// connectionError is shown to guests as outOfService.
func (h *Handler) handleGuestStations(w http.ResponseWriter, r *http.Request) {
	states := h.Bays.States()
	out := make([]stationView, 0, len(states))
	for _, st := range states {
		s := st.Status
		if s == occupancy.ConnectionError {
			s = occupancy.OutOfService
		}
		out = append(out, stationView{ID: st.ID, Status: s, LastUpdated: st.LastUpdated})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Health.Snapshot())
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, effectiveConfig(h.currentConfig()))
}

// handleConfigReload re-reads the environment and applies the occupancy
// thresholds to every tracker. Other sections need a restart.
func (h *Handler) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()

	occ, err := config.ReloadOccupancy(h.Config, h.Env)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}
	if err := h.Bays.ApplyOccupancy(supervisor.OccupancyFrom(occ)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}
	h.Config = config.WithOccupancy(h.Config, occ)

	h.logger().Info("config reloaded",
		"available_to_in_use", occ.AvailableToInUseThreshold,
		"in_use_to_available", occ.InUseToAvailableThreshold,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, http.StatusOK, effectiveConfig(h.Config))
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  now().Sub(h.Started).Seconds(),
		"version": h.Version,
	})
}

// ---- admin ----

func (h *Handler) handleForceAvailable(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, "force_available", h.Bays.ForceAvailable)
}

func (h *Handler) handleResetCalibration(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, "reset_calibration", h.Bays.ResetCalibration)
}

func (h *Handler) handleResetQuality(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, "reset_quality", h.Bays.ResetQuality)
}

func (h *Handler) handleOutOfService(w http.ResponseWriter, r *http.Request) {
	var req outOfServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OutOfService == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", `body must be {"outOfService": bool}`)
		return
	}
	h.admin(w, r, "out_of_service", func(id int) error {
		return h.Bays.SetOutOfService(id, *req.OutOfService)
	})
}

// admin runs one operator command against the bay named in the path.
func (h *Handler) admin(w http.ResponseWriter, r *http.Request, name string, fn func(int) error) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := fn(id); err != nil {
		if errors.Is(err, supervisor.ErrUnknownBay) {
			writeError(w, http.StatusBadRequest, "unknown_bay", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	h.logger().Info("admin command",
		"command", name,
		"bay_id", id,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}

// ---- helpers ----

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*supervisor.Bay, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}
	b, err := h.Bays.Get(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_bay", err.Error())
		return nil, false
	}
	return b, true
}

func (h *Handler) currentConfig() *config.Config {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()
	return h.Config
}

func (h *Handler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func parseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "bay id must be an integer")
		return 0, false
	}
	return id, true
}

func viewOf(b *supervisor.Bay) bayView {
	st := b.Tracker.State()
	return bayView{
		ID:                  st.ID,
		Status:              st.Status,
		LastUpdated:         st.LastUpdated,
		IsConnected:         st.IsConnected,
		DetectionConfidence: st.DetectionConfidence,
		Calibrating:         b.Classifier != nil && b.Classifier.Calibrating(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Ok: false, Code: code, Message: message})
}
