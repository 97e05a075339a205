package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrisync/irrigation-server/internal/model"
	"irrisync/irrigation-server/internal/pump"
	"irrisync/irrigation-server/internal/registry"
	"irrisync/irrigation-server/internal/store"
)

const readWait = 2 * time.Second

type testEnv struct {
	store   *store.Store
	service *pump.Service
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "irrisync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.InitSchema(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := registry.New(logger)
	service := pump.New(st, sessions, logger, nil)
	handler := NewHandler(service, sessions, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{area}", handler.Serve)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{store: st, service: service, server: srv}
}

func (e *testEnv) dial(t *testing.T, area string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/" + area
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestConnectPushesSynthesizedStatus(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t, "field9")
	msg := readMessage(t, conn)

	assert.Equal(t, model.MsgPumpStatusUpdate, msg["type"])
	assert.Equal(t, "field9", msg["area_name"])
	assert.Equal(t, "pump_field9", msg["pump_id"])
	assert.Equal(t, false, msg["status"])
	assert.Equal(t, "auto", msg["mode"])

	// The synthesized view must not have created a row.
	status, err := env.store.GetStatus(context.Background(), "field9")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestSoilMoistureUpdateDrivesAutoControl(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.UpsertCropSettings(context.Background(), model.CropSettings{
		AreaName:        "field1",
		CropName:        "tomato",
		OptimalMoisture: 40,
	}))

	conn := env.dial(t, "field1")
	readMessage(t, conn) // initial status push

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":          model.MsgSoilMoistureUpdate,
		"area":          "field1",
		"soil_moisture": 30,
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, model.MsgPumpStatusUpdate, msg["type"])
	assert.Equal(t, true, msg["status"], "dry reading below target must start the pump")
	assert.Equal(t, "auto", msg["mode"])
}

func TestPumpControlAppliesOperatorCommand(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t, "field1")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   model.MsgPumpControl,
		"area":   "field1",
		"status": true,
		"mode":   "manual",
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, model.MsgPumpStatusUpdate, msg["type"])
	assert.Equal(t, true, msg["status"])
	assert.Equal(t, "manual", msg["mode"])

	status, err := env.store.GetStatus(context.Background(), "field1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.True(t, status.Status)
	assert.Equal(t, model.ModeManual, status.Mode)
}

func TestPumpControlMissingFieldsIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t, "field1")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": model.MsgPumpControl,
		"area": "field1",
	}))

	// Messages on a session are handled in order: once the follow-up
	// command's broadcast arrives, the malformed one has been processed
	// (and ignored); the store must reflect only the valid command.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   model.MsgPumpControl,
		"area":   "field1",
		"status": false,
		"mode":   "auto",
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, model.MsgPumpStatusUpdate, msg["type"])
	assert.Equal(t, false, msg["status"])
	assert.Equal(t, "auto", msg["mode"])
}

func TestRequestOptimalMoisture(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t, "field1")
	readMessage(t, conn)

	// Unconfigured area answers with an error status.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": model.MsgRequestOptimalMoisture,
		"area": "field1",
	}))
	msg := readMessage(t, conn)
	assert.Equal(t, model.MsgOptimalMoistureResponse, msg["type"])
	assert.Equal(t, "error", msg["status"])

	require.NoError(t, env.store.UpsertCropSettings(context.Background(), model.CropSettings{
		AreaName:        "field1",
		CropName:        "tomato",
		OptimalMoisture: 40,
	}))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": model.MsgRequestOptimalMoisture,
		"area": "field1",
	}))
	msg = readMessage(t, conn)
	assert.Equal(t, model.MsgOptimalMoistureResponse, msg["type"])
	assert.Equal(t, "success", msg["status"])
	assert.Equal(t, "tomato", msg["crop_name"])
	assert.Equal(t, 40.0, msg["optimal_moisture"])
}

func TestNewConnectionSupersedesOldSession(t *testing.T) {
	env := newTestEnv(t)

	first := env.dial(t, "field1")
	readMessage(t, first)

	second := env.dial(t, "field1")
	readMessage(t, second)

	// A broadcast after replacement reaches only the new session.
	require.NoError(t, env.service.ApplyOperatorCommand(context.Background(), "field1", true, model.ModeManual))

	msg := readMessage(t, second)
	assert.Equal(t, model.MsgPumpStatusUpdate, msg["type"])
	assert.Equal(t, true, msg["status"])

	// The superseded connection was closed by the server; reads fail once
	// the close propagates.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(readWait)))
	var discard map[string]any
	err := first.ReadJSON(&discard)
	assert.Error(t, err)
}
