package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/config"
	"github.com/ekaya-inc/ekaya-grounding/pkg/services"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse reports whether a value index is published.
type HealthResponse struct {
	Status     string     `json:"status"`
	IndexReady bool       `json:"index_ready"`
	Entries    int        `json:"entries,omitempty"`
	BuiltAt    *time.Time `json:"built_at,omitempty"`
}

// HealthHandler handles health check, ping and metrics endpoints.
type HealthHandler struct {
	cfg       *config.Config
	snapshots *services.SnapshotHolder
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. gatherer may be nil to leave
// /metrics unregistered.
func NewHealthHandler(cfg *config.Config, snapshots *services.SnapshotHolder, gatherer prometheus.Gatherer, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, snapshots: snapshots, gatherer: gatherer, logger: logger}
}

// RegisterRoutes registers the handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// Health handles GET /health requests.
// Returns 503 until the first index build has been published so load
// balancers hold traffic while the service is indexing.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Load()
	if snap == nil {
		if err := WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "indexing"}); err != nil {
			h.logger.Error("Failed to encode health response", zap.Error(err))
		}
		return
	}

	builtAt := snap.BuiltAt
	response := HealthResponse{
		Status:     "ok",
		IndexReady: true,
		Entries:    snap.Index.Len(),
		BuiltAt:    &builtAt,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-grounding",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
