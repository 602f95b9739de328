// Package postgres persists the engine's emitted lifecycle log
// (internal/events) to a Postgres table, keyed by graph id, so a host can
// query recent evaluation history after a restart. This does not restore
// engine state — spec.md rules that out explicitly — it is an
// observability sink only.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents one persisted lifecycle event.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	GraphID   string                 `json:"graph_id"`
	RunID     *string                `json:"run_id,omitempty"`
}

// Client manages the Postgres connection used for event persistence.
type Client struct {
	db      *sql.DB
	graphID string

	mu          sync.Mutex
	errorLogged bool
}

// New opens a connection scoped to one loaded graph, identified by
// graphID (the value a host assigns to the loaded document — a file name
// or a caller-provided identifier), using environment variables for the
// connection parameters. Returns nil if connection fails (caller should
// handle gracefully).
func New(graphID string) (*Client, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "nodeflow")
	dbname := getEnv("PGDATABASE", "nodeflow")
	password := os.Getenv("PGPASSWORD")

	var connStr string
	if password != "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	} else {
		connStr = fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
			host, port, user, dbname)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:      db,
		graphID: graphID,
	}

	if err := client.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id  BIGSERIAL PRIMARY KEY,
			ts        TIMESTAMPTZ NOT NULL,
			level     TEXT NOT NULL,
			event     TEXT NOT NULL,
			msg       TEXT,
			fields    JSONB,
			graph_id  TEXT NOT NULL,
			run_id    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_graph_id ON events(graph_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts one lifecycle event, tagged with the engine run that
// produced it (runID, e.g. Engine.RunID) if the caller has one.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var runPtr *string
	if runID != "" {
		runPtr = &runID
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, graph_id, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.graphID, runPtr)
	return err
}

// Query returns the last N events for this client's graph, newest first.
func (c *Client) Query(limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, graph_id, run_id
		FROM events
		WHERE graph_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.graphID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, runID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.GraphID, &runID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if runID.Valid {
			e.RunID = &runID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// MarkErrorLogged marks that an append failure has already been logged,
// so a persistently unreachable database doesn't spam the event log.
func (c *Client) MarkErrorLogged() {
	c.mu.Lock()
	c.errorLogged = true
	c.mu.Unlock()
}

// HasLoggedError reports whether MarkErrorLogged has been called.
func (c *Client) HasLoggedError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorLogged
}
