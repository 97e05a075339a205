// Package ws is the bidirectional streaming adapter. Each connection binds
// to a single irrigation area taken from the request path, registers in the
// connection registry, and translates the wire messages into calls on the
// synchronization service.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"irrisync/irrigation-server/internal/model"
	"irrisync/irrigation-server/internal/pump"
	"irrisync/irrigation-server/internal/registry"
)

const handleTimeout = 5 * time.Second

// Handler upgrades HTTP requests to per-area WebSocket sessions.
type Handler struct {
	service  *pump.Service
	sessions *registry.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs the WebSocket adapter.
func NewHandler(service *pump.Service, sessions *registry.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Field nodes and operator dashboards connect from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// inboundMessage is the tagged union carried on the wire. Optional fields
// are pointers so missing values are distinguishable from zero values.
type inboundMessage struct {
	Type         string   `json:"type"`
	Area         string   `json:"area"`
	PumpID       string   `json:"pump_id"`
	Status       *bool    `json:"status"`
	Mode         *string  `json:"mode"`
	SoilMoisture *float64 `json:"soil_moisture"`
}

// Serve handles GET /ws/{area}: upgrade, register, push the current state,
// then consume inbound messages until the peer disconnects.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	area := r.PathValue("area")
	if area == "" {
		http.Error(w, "area required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "area", area, "error", err)
		return
	}

	sess := newSession(area, conn, h.logger)
	go sess.writeLoop()

	if prev := h.sessions.Register(area, sess); prev != nil {
		// Resource hygiene: tear down the superseded connection.
		if old, ok := prev.(*session); ok {
			old.close()
		}
	}

	h.pushCurrentStatus(sess)

	h.readLoop(sess)

	sess.close()
	h.sessions.Unregister(area, sess)
}

// pushCurrentStatus sends the (possibly synthesized) status so a fresh
// client is in sync before any event arrives.
func (h *Handler) pushCurrentStatus(sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	status, err := h.service.QueryStatus(ctx, sess.area)
	if err != nil {
		h.logger.Error("initial status query failed", "area", sess.area, "error", err)
		return
	}
	if err := sess.Send(model.NewPumpStatusUpdate(status)); err != nil {
		h.logger.Debug("initial status push dropped", "area", sess.area, "error", err)
	}
}

func (h *Handler) readLoop(sess *session) {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("session read ended", "area", sess.area, "session", sess.id, "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("malformed message on session", "area", sess.area, "error", err)
			continue
		}

		h.dispatch(sess, msg)
	}
}

func (h *Handler) dispatch(sess *session, msg inboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	// A session speaks for exactly one area; an inbound area field that
	// disagrees with the binding is ignored in favor of the binding.
	if msg.Area != "" && msg.Area != sess.area {
		h.logger.Warn("message area differs from session binding",
			"session_area", sess.area, "message_area", msg.Area)
	}

	switch msg.Type {
	case model.MsgPumpControl:
		h.handlePumpControl(ctx, sess, msg)
	case model.MsgSoilMoistureUpdate:
		h.handleMoistureUpdate(ctx, sess, msg)
	case model.MsgRequestOptimalMoisture:
		h.handleOptimalMoistureRequest(ctx, sess)
	default:
		h.logger.Warn("unknown message type", "area", sess.area, "type", msg.Type)
	}
}

func (h *Handler) handlePumpControl(ctx context.Context, sess *session, msg inboundMessage) {
	if msg.Status == nil || msg.Mode == nil {
		h.logger.Warn("pump_control missing status or mode", "area", sess.area)
		return
	}
	mode := model.Mode(*msg.Mode)
	if !mode.Valid() {
		h.logger.Warn("pump_control invalid mode", "area", sess.area, "mode", *msg.Mode)
		return
	}

	if err := h.service.ApplyOperatorCommand(ctx, sess.area, *msg.Status, mode); err != nil {
		h.logger.Error("pump_control failed", "area", sess.area, "error", err)
	}
}

func (h *Handler) handleMoistureUpdate(ctx context.Context, sess *session, msg inboundMessage) {
	if msg.SoilMoisture == nil {
		h.logger.Warn("soil_moisture_update missing soil_moisture", "area", sess.area)
		return
	}

	if _, err := h.service.ApplySensorReading(ctx, sess.area, *msg.SoilMoisture); err != nil {
		h.logger.Error("soil_moisture_update failed", "area", sess.area, "error", err)
	}
}

func (h *Handler) handleOptimalMoistureRequest(ctx context.Context, sess *session) {
	settings, err := h.service.CropSettings(ctx, sess.area)
	if err != nil {
		h.logger.Error("optimal moisture lookup failed", "area", sess.area, "error", err)
		settings = nil
	}

	resp := model.OptimalMoistureResponse{
		Type:   model.MsgOptimalMoistureResponse,
		Status: "error",
	}
	if settings != nil {
		optimal := settings.OptimalMoisture
		resp.Status = "success"
		resp.CropName = settings.CropName
		resp.OptimalMoisture = &optimal
	}

	if err := sess.Send(resp); err != nil {
		h.logger.Debug("optimal moisture response dropped", "area", sess.area, "error", err)
	}
}
