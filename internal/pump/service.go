// Package pump implements the synchronization service: the sole entry point
// for pump state changes. Every mutation runs inside a per-area critical
// section covering read, decision, persist, and broadcast, so concurrent
// sensor updates and operator commands for the same area never lose writes.
// Different areas proceed independently.
package pump

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"irrisync/irrigation-server/internal/engine"
	"irrisync/irrigation-server/internal/metrics"
	"irrisync/irrigation-server/internal/model"
)

// Store is the persistence surface the service depends on.
type Store interface {
	GetStatus(ctx context.Context, area string) (*model.PumpStatus, error)
	UpsertStatus(ctx context.Context, area, pumpID string, status bool, mode model.Mode) error
	ListStatuses(ctx context.Context) ([]model.PumpStatus, error)
	GetCropSettings(ctx context.Context, area string) (*model.CropSettings, error)
}

// Broadcaster pushes a payload to an area's live session, best effort.
type Broadcaster interface {
	Send(area string, payload any) bool
}

// Result reports what a sensor reading did.
type Result string

const (
	// ResultApplied means the reading changed the persisted pump state.
	ResultApplied Result = "applied"
	// ResultSkipped means the reading required no action: the area is
	// unconfigured, in manual mode, or the decision was unchanged.
	ResultSkipped Result = "skipped"
)

// Service coordinates the store, the decision engine, and the registry.
type Service struct {
	store    Store
	sessions Broadcaster
	logger   *slog.Logger
	metrics  *metrics.Metrics

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs the service. metrics may be nil.
func New(store Store, sessions Broadcaster, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
		locks:    make(map[string]*sync.Mutex),
	}
}

// areaLock returns the mutex serializing operations for one area, creating
// it on first use. Locks are never removed: the area set is small and
// stable for the life of the process.
func (s *Service) areaLock(area string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[area]
	if !ok {
		l = &sync.Mutex{}
		s.locks[area] = l
	}
	return l
}

// ApplyOperatorCommand persists an operator-issued status/mode pair for an
// area and broadcasts the committed state. Operator commands always win:
// they are accepted regardless of the area's current mode and may switch it.
// On persistence failure the error is returned and nothing is broadcast.
func (s *Service) ApplyOperatorCommand(ctx context.Context, area string, status bool, mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}

	l := s.areaLock(area)
	l.Lock()
	defer l.Unlock()

	if err := s.store.UpsertStatus(ctx, area, model.PumpID(area), status, mode); err != nil {
		s.logger.Error("operator command persistence failed", "area", area, "error", err)
		return err
	}

	s.metrics.CommandApplied()
	s.logger.Info("operator command applied", "area", area, "status", status, "mode", mode)

	s.broadcast(ctx, area)
	return nil
}

// ApplySensorReading feeds a soil moisture observation into auto control.
// Unconfigured areas, manual areas, and unchanged decisions are skipped;
// only a real state transition is persisted and broadcast.
func (s *Service) ApplySensorReading(ctx context.Context, area string, observedMoisture float64) (Result, error) {
	settings, err := s.store.GetCropSettings(ctx, area)
	if err != nil {
		s.logger.Error("crop settings lookup failed", "area", area, "error", err)
		return "", err
	}
	if settings == nil {
		s.metrics.ReadingOutcome(metrics.SkipNoSettings)
		s.logger.Debug("no crop settings for area, skipping reading", "area", area)
		return ResultSkipped, nil
	}

	l := s.areaLock(area)
	l.Lock()
	defer l.Unlock()

	current, err := s.store.GetStatus(ctx, area)
	if err != nil {
		s.logger.Error("pump status lookup failed", "area", area, "error", err)
		return "", err
	}
	if current == nil {
		// First reference to this area: create the row in its default state.
		if err := s.store.UpsertStatus(ctx, area, model.PumpID(area), false, model.ModeAuto); err != nil {
			s.logger.Error("pump status creation failed", "area", area, "error", err)
			return "", err
		}
		current = &model.PumpStatus{
			AreaName: area,
			PumpID:   model.PumpID(area),
			Status:   false,
			Mode:     model.ModeAuto,
		}
	}

	if current.Mode != model.ModeAuto {
		s.metrics.ReadingOutcome(metrics.SkipManualMode)
		s.logger.Debug("area in manual mode, skipping reading", "area", area)
		return ResultSkipped, nil
	}

	desired, changed := engine.Decide(current.Mode, current.Status, settings.OptimalMoisture, observedMoisture)
	if !changed {
		s.metrics.ReadingOutcome(metrics.SkipUnchanged)
		return ResultSkipped, nil
	}

	if err := s.store.UpsertStatus(ctx, area, current.PumpID, desired, model.ModeAuto); err != nil {
		s.logger.Error("sensor-driven persistence failed", "area", area, "error", err)
		return "", err
	}

	s.metrics.ReadingOutcome("applied")
	s.logger.Info("auto control transition", "area", area,
		"pump", current.PumpID, "status", desired,
		"moisture", observedMoisture, "target", engine.TargetMoisture(settings.OptimalMoisture))

	s.broadcast(ctx, area)
	return ResultApplied, nil
}

// QueryStatus returns the area's pump status, synthesizing the default view
// (pump off, auto mode) for areas that have never been written. The query
// itself never creates a row.
func (s *Service) QueryStatus(ctx context.Context, area string) (model.PumpStatus, error) {
	current, err := s.store.GetStatus(ctx, area)
	if err != nil {
		return model.PumpStatus{}, err
	}
	if current == nil {
		return model.PumpStatus{
			AreaName: area,
			PumpID:   model.PumpID(area),
			Status:   false,
			Mode:     model.ModeAuto,
		}, nil
	}
	return *current, nil
}

// GetStatus is the strict read used by the request/response path: nil when
// the area has never been seen.
func (s *Service) GetStatus(ctx context.Context, area string) (*model.PumpStatus, error) {
	return s.store.GetStatus(ctx, area)
}

// ListStatuses returns all persisted pump statuses ordered by area.
func (s *Service) ListStatuses(ctx context.Context) ([]model.PumpStatus, error) {
	return s.store.ListStatuses(ctx)
}

// CropSettings returns the area's crop reference data, nil when unconfigured.
func (s *Service) CropSettings(ctx context.Context, area string) (*model.CropSettings, error) {
	return s.store.GetCropSettings(ctx, area)
}

// broadcast re-reads the authoritative row and pushes it to the area's
// session. Re-reading (instead of pushing the value computed upstream)
// guarantees the broadcast reflects the last committed write. Missing rows
// and missing sessions are silent no-ops.
func (s *Service) broadcast(ctx context.Context, area string) {
	current, err := s.store.GetStatus(ctx, area)
	if err != nil {
		s.logger.Error("broadcast re-read failed", "area", area, "error", err)
		s.metrics.BroadcastResult(metrics.BroadcastDropped)
		return
	}
	if current == nil {
		s.metrics.BroadcastResult(metrics.BroadcastDropped)
		return
	}

	if s.sessions.Send(area, model.NewPumpStatusUpdate(*current)) {
		s.metrics.BroadcastResult(metrics.BroadcastDelivered)
	} else {
		s.metrics.BroadcastResult(metrics.BroadcastDropped)
	}
}

// Broadcast pushes the current committed state for an area to its session,
// if one is registered. Exposed for transports that need an explicit push.
func (s *Service) Broadcast(ctx context.Context, area string) {
	l := s.areaLock(area)
	l.Lock()
	defer l.Unlock()
	s.broadcast(ctx, area)
}
