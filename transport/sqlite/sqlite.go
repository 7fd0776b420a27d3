// Package sqlite provides a SQLite-backed queue transport. Published samples
// are stored in a table and handed to listeners by polling.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/drblury/framepub/internal/runtime/jsoncodec"
	"github.com/drblury/framepub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "sqlite"

const (
	// DefaultFilePath is used when no database file is configured.
	DefaultFilePath = "framepub_queue.db"
	// DefaultPollInterval is the default interval for polling new messages.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultMaxRetries is how often a nacked message is redelivered before
	// it is dropped.
	DefaultMaxRetries = 3
	// DefaultLockTimeout is how long a delivered message stays invisible to
	// other consumers.
	DefaultLockTimeout = 30 * time.Second
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("sqlite: transport is closed")

func init() {
	Register()
}

// Register registers the SQLite transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.SQLiteCapabilities)
}

// Build opens the database and creates the schema. The same handle serves
// the subscriber when consuming.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	t, err := New(Config{FilePath: cfg.GetSQLiteFile()}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	out := transport.Transport{Publisher: t}
	if cfg.GetConsume() {
		out.Subscriber = t
	}
	return out, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.SQLiteCapabilities
}

// Config holds SQLite-specific configuration.
type Config struct {
	// FilePath is the path to the SQLite database file. ":memory:" gives an
	// in-memory database (useful for testing).
	FilePath string
	// PollInterval is the interval for polling new messages.
	PollInterval time.Duration
	// MaxRetries is the number of redeliveries after a nack.
	MaxRetries int
	// LockTimeout hides a delivered message from other consumers.
	LockTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FilePath == "" {
		c.FilePath = DefaultFilePath
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	return c
}

// Transport implements message.Publisher and message.Subscriber on SQLite.
type Transport struct {
	db     *sql.DB
	config Config
	logger watermill.LoggerAdapter

	closed     bool
	closedMu   sync.RWMutex
	closedChan chan struct{}
	wg         sync.WaitGroup
}

// New opens the database and creates the schema.
func New(cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	db, err := sql.Open("sqlite3", cfg.FilePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.FilePath, err)
	}

	// a single connection keeps ":memory:" databases shared and writes serial
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	t := &Transport{
		db:         db,
		config:     cfg,
		logger:     logger,
		closedChan: make(chan struct{}),
	}

	if err := t.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return t, nil
}

func (t *Transport) initSchema() error {
	_, err := t.db.Exec(`
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		topic TEXT NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		locked_until TIMESTAMP,
		retry_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_topic_id ON messages(topic, id);
	`)
	return err
}

func (t *Transport) isClosed() bool {
	t.closedMu.RLock()
	defer t.closedMu.RUnlock()
	return t.closed
}

// Publish stores the messages in one transaction.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return ErrClosed
	}

	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer t.rollback(tx)

	stmt, err := tx.Prepare(`
		INSERT INTO messages (uuid, topic, payload, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, msg := range messages {
		metadata, err := jsoncodec.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: marshal metadata: %w", err)
		}
		payload := []byte(msg.Payload)
		if payload == nil {
			payload = []byte{}
		}
		if _, err := stmt.Exec(msg.UUID, topic, payload, string(metadata), now); err != nil {
			return fmt.Errorf("sqlite: insert %s: %w", msg.UUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Subscribe polls the table for topic in insertion order.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}

	msgChan := make(chan *message.Message)
	t.wg.Add(1)
	go t.pollMessages(ctx, topic, msgChan)
	return msgChan, nil
}

func (t *Transport) pollMessages(ctx context.Context, topic string, msgChan chan *message.Message) {
	defer t.wg.Done()
	defer close(msgChan)

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closedChan:
			return
		case <-ticker.C:
			// drain everything available before waiting again
			for t.deliverNext(ctx, topic, msgChan) {
			}
		}
	}
}

type fetchedMessage struct {
	id       int64
	uuid     string
	payload  []byte
	metadata sql.NullString
}

func (t *Transport) fetchAndLock(ctx context.Context, topic string) (*fetchedMessage, bool) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Error("sqlite: begin fetch", err, nil)
		}
		return nil, false
	}
	defer t.rollback(tx)

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `
		SELECT id, uuid, payload, metadata
		FROM messages
		WHERE topic = ?
		AND (locked_until IS NULL OR locked_until < ?)
		ORDER BY id ASC
		LIMIT 1
	`, topic, now)

	var fm fetchedMessage
	if err := row.Scan(&fm.id, &fm.uuid, &fm.payload, &fm.metadata); err != nil {
		if !errors.Is(err, sql.ErrNoRows) && ctx.Err() == nil {
			t.logger.Error("sqlite: scan message", err, watermill.LogFields{"topic": topic})
		}
		return nil, false
	}

	if _, err := tx.ExecContext(ctx, `UPDATE messages SET locked_until = ? WHERE id = ?`, now.Add(t.config.LockTimeout), fm.id); err != nil {
		t.logger.Error("sqlite: lock message", err, watermill.LogFields{"uuid": fm.uuid})
		return nil, false
	}
	if err := tx.Commit(); err != nil {
		t.logger.Error("sqlite: commit lock", err, watermill.LogFields{"uuid": fm.uuid})
		return nil, false
	}
	return &fm, true
}

// deliverNext hands one message to the subscriber and waits for its ack.
// It reports whether another poll should follow immediately.
func (t *Transport) deliverNext(ctx context.Context, topic string, msgChan chan *message.Message) bool {
	fm, found := t.fetchAndLock(ctx, topic)
	if !found {
		return false
	}

	metadata := make(message.Metadata)
	if fm.metadata.Valid && fm.metadata.String != "" {
		if err := jsoncodec.Unmarshal([]byte(fm.metadata.String), &metadata); err != nil {
			t.logger.Error("sqlite: unmarshal metadata", err, watermill.LogFields{"uuid": fm.uuid})
		}
	}

	msg := message.NewMessage(fm.uuid, fm.payload)
	msg.Metadata = metadata
	msg.SetContext(ctx)

	select {
	case msgChan <- msg:
	case <-ctx.Done():
		t.unlock(fm.id)
		return false
	case <-t.closedChan:
		t.unlock(fm.id)
		return false
	}

	select {
	case <-msg.Acked():
		t.ack(fm.id)
		return true
	case <-msg.Nacked():
		t.nack(fm.id, fm.uuid)
		return true
	case <-ctx.Done():
		t.unlock(fm.id)
	case <-t.closedChan:
		t.unlock(fm.id)
	}
	return false
}

func (t *Transport) ack(id int64) {
	if _, err := t.db.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
		t.logger.Error("sqlite: ack message", err, nil)
	}
}

func (t *Transport) nack(id int64, uuid string) {
	var retryCount int
	if err := t.db.QueryRow(`SELECT retry_count FROM messages WHERE id = ?`, id).Scan(&retryCount); err != nil {
		t.logger.Error("sqlite: read retry count", err, watermill.LogFields{"uuid": uuid})
		return
	}

	if retryCount >= t.config.MaxRetries {
		t.logger.Info("Dropping message after max retries", watermill.LogFields{
			"uuid":    uuid,
			"retries": retryCount,
		})
		t.ack(id)
		return
	}

	if _, err := t.db.Exec(`
		UPDATE messages
		SET retry_count = retry_count + 1, locked_until = NULL
		WHERE id = ?
	`, id); err != nil {
		t.logger.Error("sqlite: nack message", err, watermill.LogFields{"uuid": uuid})
	}
}

func (t *Transport) unlock(id int64) {
	if _, err := t.db.Exec(`UPDATE messages SET locked_until = NULL WHERE id = ?`, id); err != nil {
		t.logger.Error("sqlite: unlock message", err, nil)
	}
}

func (t *Transport) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.Error("sqlite: rollback", err, nil)
	}
}

// GetPendingCount returns the number of stored messages for topic.
func (t *Transport) GetPendingCount(topic string) (int64, error) {
	var count int64
	err := t.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE topic = ?`, topic).Scan(&count)
	return count, err
}

// Close stops the pollers and closes the database. Safe to call twice.
func (t *Transport) Close() error {
	t.closedMu.Lock()
	if t.closed {
		t.closedMu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closedChan)
	t.closedMu.Unlock()

	t.wg.Wait()
	return t.db.Close()
}
