// Package mqttingest subscribes to sensor moisture readings published over
// MQTT and feeds them into the synchronization service. Field nodes publish
// to irrigation/<area>/moisture; the area is taken from the topic.
package mqttingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"irrisync/irrigation-server/internal/pump"
)

const (
	topicFilter    = "irrigation/+/moisture"
	connectTimeout = 10 * time.Second
	handleTimeout  = 5 * time.Second
)

// Ingest is the MQTT-side sensor adapter.
type Ingest struct {
	client  mqtt.Client
	service *pump.Service
	logger  *slog.Logger
}

// New configures a paho client against the given broker URL.
func New(brokerURL string, service *pump.Service, logger *slog.Logger) *Ingest {
	clientID := fmt.Sprintf("irrisync-server-%d", time.Now().UnixNano())
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true)

	return &Ingest{
		client:  mqtt.NewClient(opts),
		service: service,
		logger:  logger,
	}
}

// Start connects and subscribes. Readings arriving before Start returns are
// handled normally.
func (i *Ingest) Start() error {
	token := i.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	sub := i.client.Subscribe(topicFilter, 0, i.handleMessage)
	if !sub.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt subscribe timeout")
	}
	if err := sub.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}

	i.logger.Info("mqtt ingest started", "topic", topicFilter)
	return nil
}

// Stop disconnects the client.
func (i *Ingest) Stop() {
	i.client.Disconnect(250)
	i.logger.Info("mqtt ingest stopped")
}

func (i *Ingest) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	area := areaFromTopic(msg.Topic())
	if area == "" {
		i.logger.Warn("mqtt message on unexpected topic", "topic", msg.Topic())
		return
	}

	var payload struct {
		SoilMoisture *float64 `json:"soil_moisture"`
	}
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		i.logger.Warn("mqtt payload decode failed", "topic", msg.Topic(), "error", err)
		return
	}
	if payload.SoilMoisture == nil {
		i.logger.Warn("mqtt payload missing soil_moisture", "topic", msg.Topic())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	result, err := i.service.ApplySensorReading(ctx, area, *payload.SoilMoisture)
	if err != nil {
		i.logger.Error("mqtt reading failed", "area", area, "error", err)
		return
	}

	i.logger.Debug("mqtt reading processed", "area", area, "moisture", *payload.SoilMoisture, "result", result)
}

func areaFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "irrigation" || parts[2] != "moisture" {
		return ""
	}
	return parts[1]
}
