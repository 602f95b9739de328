package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nodeflowio/nodeflow/internal/events"
	"github.com/nodeflowio/nodeflow/internal/graph"
	"github.com/nodeflowio/nodeflow/internal/nfvalue"
)

// EngineHandle is the subset of *engine.Engine the API needs to drive a
// loaded graph from HTTP: feed external inputs, force a tick, and read back
// the resulting change set.
type EngineHandle interface {
	SetInput(nodeID, portID string, v nfvalue.Value) error
	Tick(dtMS float64)
	Evaluate() uint64
	Snapshot() map[string]nfvalue.Value
	Delta(watermark uint64) map[graph.PortHandle]nfvalue.Value
	CurrentEvaluationGeneration() uint64
}

var eng EngineHandle

// SetEngine wires the running engine into the API's input/tick/snapshot
// endpoints. Must be called once before ListenAndServe.
func SetEngine(e EngineHandle) {
	eng = e
}

// readiness tracks the dependencies a host cares about before routing
// traffic to this instance: the loaded engine itself, and the optional
// MQTT/Postgres backends that feed or record it.
var readiness = struct {
	mu                sync.RWMutex
	engineReady       bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}{}

// SetEngineReady records whether a graph has been loaded and the engine
// is accepting input.
func SetEngineReady(ready bool) {
	readiness.mu.Lock()
	readiness.engineReady = ready
	readiness.mu.Unlock()
}

// SetMQTTState records the current MQTT bridge connection state. optional
// is true when no MQTT bridge is configured for this run, so a
// disconnected broker does not fail readiness.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
	readiness.mu.Unlock()
}

// SetPostgresState records the current event-sink connection state.
// optional is true when no Postgres client was configured for this run.
func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
	readiness.mu.Unlock()
}

// DependencyStatus reports one readiness check's outcome.
type DependencyStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional"`
}

// ReadinessResponse is the /ready endpoint's response body.
type ReadinessResponse struct {
	Ready       bool                        `json:"ready"`
	Checks      map[string]DependencyStatus `json:"checks"`
	NotReadyMsg string                      `json:"message,omitempty"`
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	engineReady := readiness.engineReady
	mqttConnected := readiness.mqttConnected
	mqttOptional := readiness.mqttOptional
	postgresConnected := readiness.postgresConnected
	postgresOptional := readiness.postgresOptional
	readiness.mu.RUnlock()

	checks := make(map[string]DependencyStatus, 3)
	ready := true
	var reasons []string

	if engineReady {
		checks["engine"] = DependencyStatus{Status: "ok"}
	} else {
		checks["engine"] = DependencyStatus{Status: "not_ready"}
		ready = false
		reasons = append(reasons, "engine not ready")
	}

	switch {
	case mqttConnected:
		checks["mqtt"] = DependencyStatus{Status: "ok", Optional: mqttOptional}
	case mqttOptional:
		checks["mqtt"] = DependencyStatus{Status: "unavailable", Optional: true}
	default:
		checks["mqtt"] = DependencyStatus{Status: "not_ready"}
		ready = false
		reasons = append(reasons, "mqtt not connected")
	}

	switch {
	case postgresConnected:
		checks["postgres"] = DependencyStatus{Status: "ok", Optional: postgresOptional}
	case postgresOptional:
		checks["postgres"] = DependencyStatus{Status: "unavailable", Optional: true}
	default:
		checks["postgres"] = DependencyStatus{Status: "not_ready"}
		ready = false
		reasons = append(reasons, "postgres not connected")
	}

	resp := ReadinessResponse{Ready: ready, Checks: checks}
	if !ready {
		resp.NotReadyMsg = joinReasons(reasons)
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "api",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events.Snapshot())
}

// InputRequest is the body of a POST /input request: drive one external
// value into a DeviceTrigger node's output port.
type InputRequest struct {
	NodeID string      `json:"node_id"`
	Port   string      `json:"port"`
	Value  interface{} `json:"value"`
}

type InputResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// asValue converts a decoded JSON scalar into the tagged Value the engine
// expects. The engine's own Coerce (invoked inside SetInput) narrows it to
// the destination port's declared type, so only the JSON/Go type needs
// distinguishing here, not the port's type.
func asValue(raw interface{}) nfvalue.Value {
	switch v := raw.(type) {
	case string:
		return nfvalue.NewString(v)
	case bool:
		if v {
			return nfvalue.NewI32(1)
		}
		return nfvalue.NewI32(0)
	case float64:
		return nfvalue.NewF64(v)
	default:
		return nfvalue.NewF64(0)
	}
}

func inputHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(InputResponse{OK: false, Error: "method not allowed"})
		return
	}

	if eng == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(InputResponse{OK: false, Error: "no graph loaded"})
		return
	}

	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(InputResponse{OK: false, Error: "invalid JSON"})
		return
	}

	if req.NodeID == "" || req.Port == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(InputResponse{OK: false, Error: "node_id and port required"})
		return
	}

	if err := eng.SetInput(req.NodeID, req.Port, asValue(req.Value)); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(InputResponse{OK: false, Error: err.Error()})
		return
	}

	events.Emit("info", "input.set", "", map[string]interface{}{
		"node_id": req.NodeID,
		"port":    req.Port,
	})

	_ = json.NewEncoder(w).Encode(InputResponse{OK: true})
}

// TickRequest carries the elapsed milliseconds since the previous tick.
type TickRequest struct {
	DtMS float64 `json:"dt_ms"`
}

type TickResponse struct {
	OK         bool   `json:"ok"`
	Generation uint64 `json:"generation,omitempty"`
	Error      string `json:"error,omitempty"`
}

func tickHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(TickResponse{OK: false, Error: "method not allowed"})
		return
	}

	if eng == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(TickResponse{OK: false, Error: "no graph loaded"})
		return
	}

	var req TickRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	eng.Tick(req.DtMS)
	gen := eng.Evaluate()

	_ = json.NewEncoder(w).Encode(TickResponse{OK: true, Generation: gen})
}

// jsonValue converts a tagged Value to the plain Go value JSON encodes it
// as: numeric kinds as a number, String as a string.
func jsonValue(v nfvalue.Value) interface{} {
	switch v.Kind() {
	case nfvalue.String:
		return v.AsString()
	default:
		return v.AsF64()
	}
}

func snapshotHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if eng == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(InputResponse{OK: false, Error: "no graph loaded"})
		return
	}
	out := make(map[string]interface{}, 0)
	for name, v := range eng.Snapshot() {
		out[name] = jsonValue(v)
	}
	_ = json.NewEncoder(w).Encode(out)
}

func deltaHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if eng == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(InputResponse{OK: false, Error: "no graph loaded"})
		return
	}

	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		fmt.Sscanf(s, "%d", &since)
	}

	changed := eng.Delta(since)
	out := make(map[string]interface{}, len(changed))
	for h, v := range changed {
		out[fmt.Sprintf("%d", h)] = jsonValue(v)
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"generation": eng.CurrentEvaluationGeneration(),
		"changed":    out,
	})
}

func routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler)
	mux.HandleFunc("/events", eventsHandler)
	mux.HandleFunc("/ws/events", wsEventsHandler)
	mux.HandleFunc("/metrics", metricsHandler)
	mux.HandleFunc("/input", RequireAnyRole(inputHandler))
	mux.HandleFunc("/tick", RequireAnyRole(tickHandler))
	mux.HandleFunc("/snapshot", snapshotHandler)
	mux.HandleFunc("/delta", deltaHandler)
	return mux
}

// ListenAndServe starts the API server on the given port.
// It blocks until the server exits.
func ListenAndServe(port int) error {
	mux := routes()
	addr := fmt.Sprintf(":%d", port)

	if IsTLSEnabled() {
		log.Printf("API listening on %s (TLS)\n", addr)
		srv := &http.Server{Addr: addr, Handler: mux, TLSConfig: LoadTLSConfig()}
		return srv.ListenAndServeTLS("", "")
	}

	log.Printf("API listening on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}

// Start starts the API server in a goroutine.
// Errors are logged but do not stop the caller.
func Start(port int) {
	go func() {
		if err := ListenAndServe(port); err != nil {
			log.Printf("api server error: %v", err)
		}
	}()
}
