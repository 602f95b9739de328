package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nodeflowio/nodeflow/internal/events"
	"github.com/nodeflowio/nodeflow/internal/version"
)

// Metrics state
var (
	metricsState = &MetricsState{}
)

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	mu                       sync.RWMutex
	startTime                time.Time
	graphID                  string
	backupLastSuccessTimeSec int64 // Unix timestamp, -1 if unknown
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.backupLastSuccessTimeSec = -1
}

// SetGraphID sets the loaded graph's identifier for metrics labels.
func SetGraphID(id string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.graphID = id
}

// GetGraphID returns the current graph identifier.
func GetGraphID() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.graphID
}

// SetBackupLastSuccess sets the timestamp of the last successful backup.
func SetBackupLastSuccess(ts time.Time) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.backupLastSuccessTimeSec = ts.Unix()
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	metricsState.mu.RLock()
	startTime := metricsState.startTime
	graphID := metricsState.graphID
	backupLastSuccess := metricsState.backupLastSuccessTimeSec
	metricsState.mu.RUnlock()

	uptime := time.Since(startTime).Seconds()
	eventsTotal := events.TotalCount()

	readiness.mu.RLock()
	engineReady := readiness.engineReady
	mqttConnected := readiness.mqttConnected
	postgresConnected := readiness.postgresConnected
	readiness.mu.RUnlock()

	wsClients := events.SubscriberCount()

	engineActive := 0
	if engineReady {
		engineActive = 1
	}

	mqttConnectedVal := 0
	if mqttConnected {
		mqttConnectedVal = 1
	}

	postgresConnectedVal := 0
	if postgresConnected {
		postgresConnectedVal = 1
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		if labels != "" {
			fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
		} else {
			fmt.Fprintf(w, "%s %v\n", name, value)
		}
	}

	labels := fmt.Sprintf(`graph="%s",instance="%s",version="%s"`, graphID, hostname, version.Version)

	writeMetric("nodeflow_uptime_seconds", "gauge",
		"Number of seconds since the engine process started", uptime, labels)

	writeMetric("nodeflow_engine_active", "gauge",
		"Whether the loaded graph's engine is ready to accept input (1) or not (0)", engineActive, labels)

	writeMetric("nodeflow_events_total", "counter",
		"Total number of lifecycle events emitted since startup", eventsTotal, labels)

	writeMetric("nodeflow_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", mqttConnectedVal, labels)

	writeMetric("nodeflow_postgres_connected", "gauge",
		"Whether the Postgres event sink is connected (1) or not (0)", postgresConnectedVal, labels)

	writeMetric("nodeflow_ws_clients", "gauge",
		"Number of active WebSocket client connections", wsClients, labels)

	writeMetric("nodeflow_backup_last_success_timestamp", "gauge",
		"Unix timestamp of last successful backup (-1 if unknown)", backupLastSuccess, labels)
}
