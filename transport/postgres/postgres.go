// Package postgres provides a PostgreSQL-backed queue transport.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/drblury/framepub/internal/runtime/jsoncodec"
	"github.com/drblury/framepub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "postgres"

const (
	// DefaultPollInterval is the default interval for polling new messages.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultMaxRetries is how often a nacked message is redelivered before
	// it is dropped.
	DefaultMaxRetries = 3
	// DefaultLockTimeout is the default duration a message is locked during processing.
	DefaultLockTimeout = 30 * time.Second
	// DefaultSchemaName holds the queue tables.
	DefaultSchemaName = "framepub"
)

var (
	// ErrClosed is returned by Publish and Subscribe after Close.
	ErrClosed = errors.New("postgres: transport is closed")
	// ErrConnectionRequired is returned when no connection string is set.
	ErrConnectionRequired = errors.New("postgres: connection string is required")
	// ErrInvalidSchema is returned for schema names that are not plain identifiers.
	ErrInvalidSchema = errors.New("postgres: invalid schema name")
)

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func init() {
	Register()
}

// Register registers the transport and its "postgresql" alias.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.PostgresCapabilities)
	transport.RegisterWithCapabilities("postgresql", Build, transport.PostgresCapabilities)
}

// Build connects to PostgreSQL and creates the queue schema.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	t, err := New(Config{ConnectionString: cfg.GetPostgresURL()}, logger)
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
	return transport.PostgresCapabilities
}

// Config holds PostgreSQL-specific configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string
	// PollInterval is the interval for polling new messages.
	PollInterval time.Duration
	// MaxRetries is the number of redeliveries after a nack.
	MaxRetries int
	// LockTimeout is how long a message stays locked during processing.
	LockTimeout time.Duration
	// SchemaName is the schema holding the tables. Defaults to "framepub".
	SchemaName   string
	MaxOpenConns int
	MaxIdleConns int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.SchemaName == "" {
		c.SchemaName = DefaultSchemaName
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	return c
}

func (c Config) validate() error {
	if c.ConnectionString == "" {
		return ErrConnectionRequired
	}
	if !schemaNamePattern.MatchString(c.SchemaName) {
		return fmt.Errorf("%w: %q", ErrInvalidSchema, c.SchemaName)
	}
	return nil
}

// Transport implements message.Publisher and message.Subscriber on PostgreSQL.
type Transport struct {
	db     *sql.DB
	config Config
	logger watermill.LoggerAdapter

	closed     bool
	closedMu   sync.RWMutex
	closedChan chan struct{}
	wg         sync.WaitGroup
}

// New connects to PostgreSQL and creates the queue schema.
func New(cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	t := &Transport{
		db:         db,
		config:     cfg,
		logger:     logger,
		closedChan: make(chan struct{}),
	}

	if err := t.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}
	return t, nil
}

// table returns the qualified name of the messages table. The schema name
// is checked against schemaNamePattern in New.
func (t *Transport) table() string {
	return t.config.SchemaName + ".messages"
}

func (t *Transport) initSchema() error {
	if _, err := t.db.Exec(`CREATE SCHEMA IF NOT EXISTS ` + t.config.SchemaName); err != nil {
		return err
	}

	// #nosec G201 - schema name matches schemaNamePattern
	_, err := t.db.Exec(fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id BIGSERIAL PRIMARY KEY,
		uuid TEXT NOT NULL UNIQUE,
		topic TEXT NOT NULL,
		payload BYTEA NOT NULL,
		metadata JSONB DEFAULT '{}',
		created_at TIMESTAMPTZ DEFAULT NOW(),
		locked_until TIMESTAMPTZ,
		retry_count INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_topic_id ON %[1]s(topic, id);
	`, t.table()))
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
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer t.rollback(tx)

	// #nosec G201 - schema name matches schemaNamePattern
	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (uuid, topic, payload, metadata)
		VALUES ($1, $2, $3, $4)
	`, t.table()))
	if err != nil {
		return fmt.Errorf("postgres: prepare: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		metadata, err := jsoncodec.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: marshal metadata: %w", err)
		}
		payload := []byte(msg.Payload)
		if payload == nil {
			payload = []byte{}
		}
		if _, err := stmt.Exec(msg.UUID, topic, payload, metadata); err != nil {
			return fmt.Errorf("postgres: insert %s: %w", msg.UUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Subscribe polls the table for topic. Concurrent subscribers share the
// work through SKIP LOCKED.
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
			for t.deliverNext(ctx, topic, msgChan) {
			}
		}
	}
}

func (t *Transport) fetchAndLock(ctx context.Context, topic string) (int64, *message.Message, bool) {
	now := time.Now().UTC()

	// #nosec G201 - schema name matches schemaNamePattern
	query := fmt.Sprintf(`
		UPDATE %[1]s
		SET locked_until = $1
		WHERE id = (
			SELECT id FROM %[1]s
			WHERE topic = $2
			AND (locked_until IS NULL OR locked_until < $3)
			ORDER BY id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, uuid, payload, metadata
	`, t.table())

	var (
		id           int64
		uuid         string
		payload      []byte
		metadataJSON []byte
	)
	err := t.db.QueryRowContext(ctx, query, now.Add(t.config.LockTimeout), topic, now).
		Scan(&id, &uuid, &payload, &metadataJSON)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && ctx.Err() == nil {
			t.logger.Error("postgres: fetch message", err, watermill.LogFields{"topic": topic})
		}
		return 0, nil, false
	}

	metadata := make(message.Metadata)
	if len(metadataJSON) > 0 {
		if err := jsoncodec.Unmarshal(metadataJSON, &metadata); err != nil {
			t.logger.Error("postgres: unmarshal metadata", err, watermill.LogFields{"uuid": uuid})
		}
	}

	msg := message.NewMessage(uuid, payload)
	msg.Metadata = metadata
	return id, msg, true
}

func (t *Transport) deliverNext(ctx context.Context, topic string, msgChan chan *message.Message) bool {
	id, msg, found := t.fetchAndLock(ctx, topic)
	if !found {
		return false
	}
	msg.SetContext(ctx)

	select {
	case msgChan <- msg:
	case <-ctx.Done():
		t.unlock(id)
		return false
	case <-t.closedChan:
		t.unlock(id)
		return false
	}

	select {
	case <-msg.Acked():
		t.ack(id)
		return true
	case <-msg.Nacked():
		t.nack(id, msg.UUID)
		return true
	case <-ctx.Done():
		t.unlock(id)
	case <-t.closedChan:
		t.unlock(id)
	}
	return false
}

func (t *Transport) ack(id int64) {
	// #nosec G201 - schema name matches schemaNamePattern
	if _, err := t.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.table()), id); err != nil {
		t.logger.Error("postgres: ack message", err, nil)
	}
}

func (t *Transport) nack(id int64, uuid string) {
	var retryCount int
	// #nosec G201 - schema name matches schemaNamePattern
	err := t.db.QueryRow(fmt.Sprintf(`SELECT retry_count FROM %s WHERE id = $1`, t.table()), id).Scan(&retryCount)
	if err != nil {
		t.logger.Error("postgres: read retry count", err, watermill.LogFields{"uuid": uuid})
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

	// #nosec G201 - schema name matches schemaNamePattern
	_, err = t.db.Exec(fmt.Sprintf(`
		UPDATE %s
		SET retry_count = retry_count + 1, locked_until = NULL
		WHERE id = $1
	`, t.table()), id)
	if err != nil {
		t.logger.Error("postgres: nack message", err, watermill.LogFields{"uuid": uuid})
	}
}

func (t *Transport) unlock(id int64) {
	// #nosec G201 - schema name matches schemaNamePattern
	if _, err := t.db.Exec(fmt.Sprintf(`UPDATE %s SET locked_until = NULL WHERE id = $1`, t.table()), id); err != nil {
		t.logger.Error("postgres: unlock message", err, nil)
	}
}

func (t *Transport) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.Error("postgres: rollback", err, nil)
	}
}

// GetPendingCount returns the number of stored messages for topic.
func (t *Transport) GetPendingCount(topic string) (int64, error) {
	var count int64
	// #nosec G201 - schema name matches schemaNamePattern
	err := t.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE topic = $1`, t.table()), topic).Scan(&count)
	return count, err
}

// Close stops the pollers and closes the pool. Safe to call twice.
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
