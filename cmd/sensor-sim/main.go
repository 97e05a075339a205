// sensor-sim publishes simulated soil moisture readings for one area over
// MQTT, drifting the value down over time the way a drying field would and
// jumping it back up when the published value crosses the dry floor.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type moisturePayload struct {
	SoilMoisture float64 `json:"soil_moisture"`
	Timestamp    string  `json:"timestamp"`
}

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	area := flag.String("area", "field1", "Irrigation area name")
	interval := flag.Duration("interval", 2*time.Second, "Interval between published readings")
	startMoisture := flag.Float64("start-moisture", 60, "Initial soil moisture percentage")
	dryRate := flag.Float64("dry-rate", 0.8, "Moisture lost per interval")
	floor := flag.Float64("floor", 20, "Moisture value at which the field is re-wetted")
	jitter := flag.Float64("jitter", 1.5, "Maximum random jitter applied to readings")

	flag.Parse()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	clientID := fmt.Sprintf("%s-sensor-sim-%d", *area, time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	log.Printf("connected to MQTT broker %s as %s", *brokerAddr, clientID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	moisture := *startMoisture
	topic := fmt.Sprintf("irrigation/%s/moisture", *area)

	publish := func() {
		moisture -= *dryRate
		if moisture < *floor {
			moisture = *startMoisture
			log.Printf("field re-wetted, moisture reset to %.1f", moisture)
		}

		reading := moisture + (rng.Float64()*2-1)*(*jitter)

		payload := moisturePayload{
			SoilMoisture: reading,
			Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("failed to encode payload: %v", err)
			return
		}

		token := client.Publish(topic, 0, false, data)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("publish error: %v", err)
			return
		}
		log.Printf("published %s soil_moisture=%.1f", topic, reading)
	}

	publish()

	for {
		select {
		case <-ctx.Done():
			log.Print("received shutdown signal, disconnecting")
			client.Disconnect(250)
			return
		case <-ticker.C:
			publish()
		}
	}
}
