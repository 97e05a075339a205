package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"irrisync/irrigation-server/internal/config"
	"irrisync/irrigation-server/internal/metrics"
	"irrisync/irrigation-server/internal/model"
	"irrisync/irrigation-server/internal/mqttingest"
	"irrisync/irrigation-server/internal/pump"
	"irrisync/irrigation-server/internal/registry"
	"irrisync/irrigation-server/internal/store"
	"irrisync/irrigation-server/internal/ws"
)

const storeTimeout = 2 * time.Second

// App wires together the irrigation services and manages their lifecycle.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	sessions *registry.Registry
	service  *pump.Service
	ws       *ws.Handler
	ingest   *mqttingest.Ingest
	mdns     *zeroconf.Server
}

// New constructs a new application instance.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run starts all configured services and blocks until the context is cancelled or an error occurs.
func (a *App) Run(ctx context.Context) error {
	db, err := store.Open(a.cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.store = db

	if err := a.store.InitSchema(ctx); err != nil {
		return err
	}

	defer func() {
		if cerr := a.store.Close(); cerr != nil {
			a.logger.Error("close store", "error", cerr)
		}
	}()

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	a.sessions = registry.New(a.logger)
	a.service = pump.New(a.store, a.sessions, a.logger, m)
	a.ws = ws.NewHandler(a.service, a.sessions, a.logger)

	if a.cfg.MQTTBrokerURL != "" {
		a.ingest = mqttingest.New(a.cfg.MQTTBrokerURL, a.service, a.logger)
		if err := a.ingest.Start(); err != nil {
			return err
		}
		defer a.ingest.Stop()
	}

	if a.cfg.MDNSEnabled {
		if err := a.startMDNS(a.cfg.HTTPPort); err != nil {
			a.logger.Warn("mDNS advertisement failed", "error", err)
		}
		defer a.stopMDNS()
	}

	httpErrCh := make(chan error, 1)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler: a.routes(),
	}

	go func() {
		a.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	metricsErrCh := make(chan error, 1)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.MetricsPort),
		Handler: metricsMux,
	}

	go func() {
		a.logger.Info("metrics server started", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErrCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http server shutdown: %w", err)
			}
			a.logger.Info("http server stopped")

			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("metrics server shutdown: %w", err)
			}
			a.logger.Info("metrics server stopped")
			return nil
		case err := <-httpErrCh:
			_ = metricsServer.Shutdown(context.Background())
			return err
		case err := <-metricsErrCh:
			_ = httpServer.Shutdown(context.Background())
			return err
		}
	}
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.HandleFunc("GET /pumps", a.handleListPumps)
	mux.HandleFunc("GET /pumps/{area}", a.handleGetPump)
	mux.HandleFunc("POST /pumps/{area}", a.handlePumpCommand)
	mux.HandleFunc("GET /crops/{area}", a.handleGetCrop)
	mux.HandleFunc("PUT /crops/{area}", a.handlePutCrop)
	mux.HandleFunc("GET /ws/{area}", a.ws.Serve)
	return mux
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if a.store == nil || a.service == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"starting"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (a *App) handleListPumps(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	statuses, err := a.service.ListStatuses(ctx)
	if err != nil {
		a.logger.Error("failed to list pump statuses", "error", err)
		http.Error(w, "failed to load statuses", http.StatusInternalServerError)
		return
	}

	response := struct {
		Pumps []model.PumpStatus `json:"pumps"`
	}{Pumps: statuses}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error("failed to encode pump list", "error", err)
	}
}

func (a *App) handleGetPump(w http.ResponseWriter, r *http.Request) {
	area := r.PathValue("area")

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	status, err := a.service.GetStatus(ctx, area)
	if err != nil {
		a.logger.Error("failed to load pump status", "area", area, "error", err)
		http.Error(w, "failed to load status", http.StatusInternalServerError)
		return
	}
	if status == nil {
		http.Error(w, "unknown area", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		a.logger.Error("failed to encode pump status", "error", err)
	}
}

func (a *App) handlePumpCommand(w http.ResponseWriter, r *http.Request) {
	area := r.PathValue("area")

	var req struct {
		Status *bool   `json:"status"`
		Mode   *string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if req.Status == nil || req.Mode == nil {
		http.Error(w, "status and mode are required", http.StatusBadRequest)
		return
	}
	mode := model.Mode(*req.Mode)
	if !mode.Valid() {
		http.Error(w, "mode must be auto or manual", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := a.service.ApplyOperatorCommand(ctx, area, *req.Status, mode); err != nil {
		http.Error(w, "failed to apply command", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"success":true}`))
}

func (a *App) handleGetCrop(w http.ResponseWriter, r *http.Request) {
	area := r.PathValue("area")

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	settings, err := a.store.GetCropSettings(ctx, area)
	if err != nil {
		a.logger.Error("failed to load crop settings", "area", area, "error", err)
		http.Error(w, "failed to load crop settings", http.StatusInternalServerError)
		return
	}
	if settings == nil {
		http.Error(w, "no crop settings for area", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(settings); err != nil {
		a.logger.Error("failed to encode crop settings", "error", err)
	}
}

func (a *App) handlePutCrop(w http.ResponseWriter, r *http.Request) {
	area := r.PathValue("area")

	var req struct {
		CropName        string   `json:"crop_name"`
		OptimalMoisture *float64 `json:"optimal_moisture"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.CropName == "" || req.OptimalMoisture == nil {
		http.Error(w, "crop_name and optimal_moisture are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	settings := model.CropSettings{
		AreaName:        area,
		CropName:        req.CropName,
		OptimalMoisture: *req.OptimalMoisture,
	}
	if err := a.store.UpsertCropSettings(ctx, settings); err != nil {
		a.logger.Error("failed to store crop settings", "area", area, "error", err)
		http.Error(w, "failed to store crop settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(settings); err != nil {
		a.logger.Error("failed to encode crop settings", "error", err)
	}
}
