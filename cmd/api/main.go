// Command api is the HTTP-only deployment: it loads a graph and serves the
// engine's input/tick/snapshot endpoints without a device bridge, for
// hosts that drive every DeviceTrigger input over REST instead of MQTT.
package main

import (
	"log"
	"os"

	"github.com/nodeflowio/nodeflow/internal/api"
	"github.com/nodeflowio/nodeflow/internal/config"
	"github.com/nodeflowio/nodeflow/internal/engine"
	"github.com/nodeflowio/nodeflow/internal/events"
	"github.com/nodeflowio/nodeflow/internal/graphdoc"
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
	events.Emit("info", "system.startup", "api starting", map[string]interface{}{
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
	eng.Evaluate() // cold-start sweep, so /snapshot has real values before any input arrives
	events.Emit("info", "graph.loaded", "", map[string]interface{}{
		"path":   cfg.Graph.Path,
		"run_id": eng.RunID,
	})

	api.SetEngine(eng)
	api.SetGraphID(cfg.Graph.Path)
	api.SetEngineReady(true)
	api.SetMQTTState(false, true)

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

	port := cfg.APIPort()
	log.Printf("API listening on :%d\n", port)
	if err := api.ListenAndServe(port); err != nil {
		log.Fatalf("api server failed: %v", err)
	}
}
