package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Ravikumarchavva/agent-framework/pkg/config"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

const (
	sqliteMessagesTableSQL = `
CREATE TABLE IF NOT EXISTS agent_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id VARCHAR(255) NOT NULL,
    message_id VARCHAR(255) NOT NULL,
    role VARCHAR(50) NOT NULL,
    message_json TEXT NOT NULL,
    sequence_num INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agent_messages_session ON agent_messages(session_id, sequence_num);
`

	postgresMessagesTableSQL = `
CREATE TABLE IF NOT EXISTS agent_messages (
    id SERIAL PRIMARY KEY,
    session_id VARCHAR(255) NOT NULL,
    message_id VARCHAR(255) NOT NULL,
    role VARCHAR(50) NOT NULL,
    message_json TEXT NOT NULL,
    sequence_num BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agent_messages_session ON agent_messages(session_id, sequence_num);
`
)

// SQLMemory persists the conversation log to a relational database and keeps
// a write-through in-memory copy for snapshots. Rows store messages in their
// canonical JSON form keyed by session, so a process restart resumes the
// conversation where it left off.
type SQLMemory struct {
	mu        sync.RWMutex
	db        *sql.DB
	driver    string
	sessionID string
	messages  []*protocol.Message
	seq       int64
	tokens    tokenEstimator
}

// NewSQLMemory opens the database, ensures the schema and loads any existing
// rows for the session in sequence order.
func NewSQLMemory(cfg *config.MemoryConfig) (*SQLMemory, error) {
	if cfg.Driver != "postgres" && cfg.Driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported sql driver %q (supported: postgres, sqlite3)", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sql memory requires a dsn")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", cfg.Driver, err)
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	m := &SQLMemory{
		db:        db,
		driver:    cfg.Driver,
		sessionID: sessionID,
		tokens:    newTokenEstimator(""),
	}
	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := m.load(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// SessionID reports the session this memory reads and writes.
func (m *SQLMemory) SessionID() string {
	return m.sessionID
}

func (m *SQLMemory) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := sqliteMessagesTableSQL
	if m.driver == "postgres" {
		schema = postgresMessagesTableSQL
	}
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}
	return nil
}

func (m *SQLMemory) load() error {
	query := `SELECT message_json, sequence_num FROM agent_messages WHERE session_id = ` + m.placeholder(1) + ` ORDER BY sequence_num`
	rows, err := m.db.Query(query, m.sessionID)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", m.sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		var seq int64
		if err := rows.Scan(&payload, &seq); err != nil {
			return fmt.Errorf("scanning message row: %w", err)
		}
		msg, err := protocol.DecodeMessage([]byte(payload))
		if err != nil {
			return fmt.Errorf("decoding stored message at sequence %d: %w", seq, err)
		}
		m.messages = append(m.messages, msg)
		if seq > m.seq {
			m.seq = seq
		}
	}
	return rows.Err()
}

func (m *SQLMemory) placeholder(n int) string {
	if m.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (m *SQLMemory) Append(msg *protocol.Message) error {
	if msg == nil {
		return fmt.Errorf("cannot append nil message")
	}

	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seq := m.seq + 1
	query := fmt.Sprintf(
		`INSERT INTO agent_messages (session_id, message_id, role, message_json, sequence_num, created_at) VALUES (%s, %s, %s, %s, %s, %s)`,
		m.placeholder(1), m.placeholder(2), m.placeholder(3), m.placeholder(4), m.placeholder(5), m.placeholder(6),
	)
	if _, err := m.db.Exec(query, m.sessionID, msg.ID, string(msg.Role), string(payload), seq, time.Now().UTC()); err != nil {
		return fmt.Errorf("persisting message: %w", err)
	}

	m.seq = seq
	m.messages = append(m.messages, msg)
	return nil
}

func (m *SQLMemory) Snapshot() []*protocol.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*protocol.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Clear removes the session's rows along with the cached copy.
func (m *SQLMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `DELETE FROM agent_messages WHERE session_id = ` + m.placeholder(1)
	if _, err := m.db.Exec(query, m.sessionID); err == nil {
		m.seq = 0
	}
	// Keep seq where it was if the delete failed so later appends never
	// collide with surviving rows.
	m.messages = nil
}

func (m *SQLMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

func (m *SQLMemory) ApproxTokens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.estimate(m.messages)
}

// Close releases the database handle.
func (m *SQLMemory) Close() error {
	return m.db.Close()
}
