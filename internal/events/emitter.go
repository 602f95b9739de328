package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nodeflowio/nodeflow/internal/storage/postgres"
)

var buffer = NewRingBuffer(256)

var (
	pgClient      *postgres.Client
	pgMu          sync.RWMutex
	pgErrorLogged bool
)

// SetPostgresClient sets the Postgres client used to persist emitted
// events. A nil client disables persistence.
func SetPostgresClient(client *postgres.Client) {
	pgMu.Lock()
	pgClient = client
	pgMu.Unlock()
}

// GetPostgresClient returns the current Postgres client, for API queries
// that read the persisted event log.
func GetPostgresClient() *postgres.Client {
	pgMu.RLock()
	defer pgMu.RUnlock()
	return pgClient
}

// Event is one entry in the engine's lifecycle log: a graph load, an
// evaluation generation advancing, a Timer firing, an external input
// arriving, and so on.
type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit validates name against the allow-list, buffers the event, fans it
// out to websocket subscribers, and persists it to Postgres if a client is
// configured. It returns the event's JSON encoding.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)

	pgMu.RLock()
	client := pgClient
	errorLogged := pgErrorLogged
	pgMu.RUnlock()

	if client != nil {
		if err := client.Append(ts, level, name, msg, fields, ""); err != nil && !errorLogged {
			pgMu.Lock()
			if !pgErrorLogged {
				pgErrorLogged = true
				pgMu.Unlock()
				// Add directly to the ring buffer, bypassing Emit, so a
				// persistently failing Postgres client can't recurse.
				buffer.Add(Event{
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
					Level:     "error",
					Name:      "system.error",
					Message:   "postgres append failed",
					Fields:    map[string]interface{}{"error": err.Error()},
				})
			} else {
				pgMu.Unlock()
			}
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return b, nil
}

// Snapshot returns every buffered event, oldest first.
func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup (or the
// last Clear), independent of how many are still held in the ring buffer.
func TotalCount() uint64 {
	return buffer.Total()
}

// Clear empties the event buffer. Used between tests.
func Clear() {
	buffer.Clear()
}
