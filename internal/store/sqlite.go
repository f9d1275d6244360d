// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Append-only message log with best-effort embedding storage

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // pure Go, default
	DriverCGO     = "sqlite3" // mattn/go-sqlite3, requires cgo
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	dims   int
	now    func() time.Time

	// clockMu guards lastCreated so created_at is strictly increasing per process.
	clockMu     sync.Mutex
	lastCreated time.Time
}

// Option configures a SQLiteStore.
type Option func(*sqliteOptions)

type sqliteOptions struct {
	driver string
	dims   int
	logger *slog.Logger
	now    func() time.Time
}

// WithDriver selects the database/sql driver (DriverModernc or DriverCGO).
func WithDriver(driver string) Option {
	return func(o *sqliteOptions) { o.driver = driver }
}

// WithDimensions makes the store reject embeddings of any other length.
// Zero accepts any non-empty vector.
func WithDimensions(dims int) Option {
	return func(o *sqliteOptions) { o.dims = dims }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *sqliteOptions) { o.logger = logger }
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(o *sqliteOptions) { o.now = now }
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	o := sqliteOptions{driver: DriverModernc, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn, err := buildDSN(o.driver, path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(o.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would be a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		dims:   o.dims,
		now:    o.now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", o.driver)
	return s, nil
}

// buildDSN applies WAL, foreign keys and a busy timeout on every pooled
// connection, using each driver's own parameter syntax.
func buildDSN(driver, path string) (string, error) {
	switch driver {
	case DriverModernc:
		return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	case DriverCGO:
		return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			sender_id   TEXT NOT NULL REFERENCES users(id),
			receiver_id TEXT NOT NULL REFERENCES users(id),
			body        TEXT NOT NULL,
			created_at  INTEGER NOT NULL,

			CHECK (sender_id <> receiver_id),
			CHECK (length(trim(body)) > 0)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_pair
			ON messages(sender_id, receiver_id, created_at, id);
		CREATE INDEX IF NOT EXISTS idx_messages_receiver
			ON messages(receiver_id, created_at, id);

		-- Embeddings live beside the log so a vector failure never blocks the body write
		CREATE TABLE IF NOT EXISTS message_embeddings (
			message_id TEXT PRIMARY KEY REFERENCES messages(id),
			dims       INTEGER NOT NULL,
			vector     BLOB NOT NULL,

			CHECK (dims > 0 AND length(vector) = dims * 4)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser inserts a user. Returns ErrDuplicateUser if the ID is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" || user.Name == "" {
		return errors.New("user id and name are required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		user.ID, user.Name, user.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking user insert: %w", err)
	}
	if n == 0 {
		return ErrDuplicateUser
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	return &u, nil
}

// CreateMessage appends a message to the log and returns the stored record.
//
// The body and the vector are written in one transaction. If the vector part
// is rejected the transaction is rolled back and the message is written again
// without it: the embedding is best-effort, the body is not.
func (s *SQLiteStore) CreateMessage(ctx context.Context, in *NewMessage) (*Message, error) {
	if err := validateNewMessage(in); err != nil {
		return nil, err
	}

	msg := &Message{
		ID:         newMessageID(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Body:       in.Body,
		CreatedAt:  s.nextTimestamp(),
	}

	err := s.insertMessage(ctx, msg, in.Embedding)
	if errors.Is(err, ErrVectorRejected) {
		s.logger.Warn("embedding write failed, storing message without vector",
			"error", err,
			"message_id", msg.ID,
			"sender_id", msg.SenderID,
			"receiver_id", msg.ReceiverID)
		err = s.insertMessage(ctx, msg, nil)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("saved message",
		"id", msg.ID,
		"sender_id", msg.SenderID,
		"receiver_id", msg.ReceiverID,
		"embedded", len(in.Embedding) > 0)

	return s.GetMessage(ctx, msg.ID)
}

func (s *SQLiteStore) insertMessage(ctx context.Context, msg *Message, vector []float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Body, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if vector != nil {
		blob, err := encodeVector(vector, s.dims)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO message_embeddings (message_id, dims, vector) VALUES (?, ?, ?)`,
			msg.ID, len(vector), blob,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrVectorRejected, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}
	return nil
}

// nextTimestamp returns a UTC timestamp strictly after the previous one
// handed out by this store.
func (s *SQLiteStore) nextTimestamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	ts := s.now().UTC()
	if !ts.After(s.lastCreated) {
		ts = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = ts
	return ts
}

// newMessageID returns a time-ordered UUIDv7, falling back to v4.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

const messageColumns = `
	SELECT m.id, m.sender_id, m.receiver_id, su.name, ru.name, m.body, m.created_at, e.vector
	FROM messages m
	JOIN users su ON su.id = m.sender_id
	JOIN users ru ON ru.id = m.receiver_id
	LEFT JOIN message_embeddings e ON e.message_id = m.id
`

// GetMessage retrieves a single hydrated message by ID
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	rows, err := s.db.QueryContext(ctx, messageColumns+` WHERE m.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrNotFound
	}
	return messages[0], nil
}

// ListConversation returns messages touching q.UserID (or exactly the pair
// {UserID, PeerID}) ordered by (created_at, id) ascending, capped at q.Limit.
func (s *SQLiteStore) ListConversation(ctx context.Context, q ConversationQuery) ([]*Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var query string
	var args []any
	if q.PeerID != "" {
		query = messageColumns + `
			WHERE (m.sender_id = ? AND m.receiver_id = ?)
			   OR (m.sender_id = ? AND m.receiver_id = ?)
			ORDER BY m.created_at ASC, m.id ASC
			LIMIT ?`
		args = []any{q.UserID, q.PeerID, q.PeerID, q.UserID, limit}
	} else {
		query = messageColumns + `
			WHERE m.sender_id = ? OR m.receiver_id = ?
			ORDER BY m.created_at ASC, m.id ASC
			LIMIT ?`
		args = []any{q.UserID, q.UserID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return scanMessages(rows)
}

// ListSearchCandidates returns every message touching userID in (created_at, id) order.
func (s *SQLiteStore) ListSearchCandidates(ctx context.Context, userID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, messageColumns+`
		WHERE m.sender_id = ? OR m.receiver_id = ?
		ORDER BY m.created_at ASC, m.id ASC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying search candidates: %w", err)
	}
	return scanMessages(rows)
}

// scanMessages drains rows produced by a messageColumns query and closes them.
func scanMessages(rows *sql.Rows) ([]*Message, error) {
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAt int64
		var blob []byte
		if err := rows.Scan(
			&msg.ID, &msg.SenderID, &msg.ReceiverID,
			&msg.SenderName, &msg.ReceiverName,
			&msg.Body, &createdAt, &blob,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.CreatedAt = time.Unix(0, createdAt).UTC()

		vector, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", msg.ID, err)
		}
		msg.Embedding = vector
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}
