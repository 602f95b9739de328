// Command orchestrator is the primary deployment: it loads a graph
// document, runs its engine on a fixed tick, bridges DeviceTrigger inputs
// from MQTT, persists the event log to Postgres, and serves the HTTP API
// alongside the running engine.
package main

import (
	"log"
	"os"
	"time"

	"github.com/nodeflowio/nodeflow/internal/api"
	"github.com/nodeflowio/nodeflow/internal/config"
	"github.com/nodeflowio/nodeflow/internal/engine"
	"github.com/nodeflowio/nodeflow/internal/events"
	"github.com/nodeflowio/nodeflow/internal/graphdoc"
	"github.com/nodeflowio/nodeflow/internal/mqttbridge"
	"github.com/nodeflowio/nodeflow/internal/storage/postgres"
	"github.com/nodeflowio/nodeflow/internal/version"
)

func configPath() string {
	if p := os.Getenv("NODEFLOW_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func main() {
	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "orchestrator starting", map[string]interface{}{
		"hostname": hostname,
		"pid":      os.Getpid(),
		"version":  version.Version,
	})

	cfg, err := config.LoadEngineConfig(configPath())
	if err != nil {
		log.Fatalf("failed to load engine config: %v", err)
	}

	api.InitTLS()
	api.InitAuth()
	api.InitAlerts()
	api.InitMetrics()

	loadDoc := graphdoc.LoadJSON
	if cfg.GraphFormat() == "yaml" {
		loadDoc = graphdoc.LoadYAML
	}

	gdoc, err := loadDoc(cfg.Graph.Path)
	if err != nil {
		events.Emit("error", "graph.load_failed", err.Error(), map[string]interface{}{"path": cfg.Graph.Path})
		log.Fatalf("failed to load graph document %q: %v", cfg.Graph.Path, err)
	}

	eng, err := engine.Load(gdoc)
	if err != nil {
		events.Emit("error", "graph.load_failed", err.Error(), nil)
		log.Fatalf("failed to load engine: %v", err)
	}
	events.Emit("info", "graph.loaded", "", map[string]interface{}{
		"path":   cfg.Graph.Path,
		"run_id": eng.RunID,
	})

	api.SetEngine(eng)
	api.SetGraphID(cfg.Graph.Path)
	api.SetEngineReady(true)

	if cfg.Postgres.Host != "" {
		pg, err := postgres.New(cfg.Graph.Path)
		if err != nil {
			log.Printf("postgres unavailable, continuing without persistence: %v", err)
			api.SetPostgresState(false, true)
		} else {
			events.SetPostgresClient(pg)
			api.SetPostgresState(true, false)
		}
	} else {
		api.SetPostgresState(false, true)
	}

	if cfg.MQTT.BrokerURL != "" {
		mqttClient := mqttbridge.NewClient(cfg.MQTT.ClientID)
		if mqttClient.StartWithRetry() {
			bridge := mqttbridge.NewBridge(mqttClient, eng)
			if err := bridge.SubscribeAll(); err != nil {
				log.Printf("mqtt subscribe failed: %v", err)
				api.SetMQTTState(false, false)
			} else {
				api.SetMQTTState(true, false)
			}
		} else {
			api.SetMQTTState(false, false)
		}
	} else {
		api.SetMQTTState(false, true)
	}

	api.StartAlertMonitor(15 * time.Second)

	const tickInterval = 100 * time.Millisecond
	ticker := time.NewTicker(tickInterval)
	go func() {
		last := time.Now()
		for now := range ticker.C {
			dt := now.Sub(last).Seconds() * 1000
			last = now
			eng.Tick(dt)
			eng.Evaluate()
		}
	}()

	port := cfg.APIPort()
	log.Printf("orchestrator ready, serving API on :%d\n", port)
	if err := api.ListenAndServe(port); err != nil {
		log.Fatalf("api server failed: %v", err)
	}
}
