package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteMessageStore struct {
	conn *sql.DB
}

// NewSQLiteMessageStore opens the database at path and creates the messages
// table when it does not exist yet.
func NewSQLiteMessageStore(path string) (*SQLiteMessageStore, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	s := &SQLiteMessageStore{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteMessageStore) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			text TEXT,
			file TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender, recipient, created_at)`,
	}
	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteMessageStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteMessageStore) Save(ctx context.Context, message Message) (Message, error) {
	message, err := prepare(message)
	if err != nil {
		return Message{}, err
	}
	_, err = s.conn.ExecContext(ctx,
		"INSERT INTO messages (id, sender, recipient, text, file, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		message.ID, message.Sender, message.Recipient,
		nullString(message.Text), nullString(message.File),
		message.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Message{}, err
	}
	return message, nil
}

func (s *SQLiteMessageStore) Get(ctx context.Context, id string) (Message, error) {
	var (
		message   Message
		text      sql.NullString
		file      sql.NullString
		createdAt string
	)
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, sender, recipient, text, file, created_at FROM messages WHERE id = ?", id,
	).Scan(&message.ID, &message.Sender, &message.Recipient, &text, &file, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}

	message.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Message{}, err
	}
	if text.Valid {
		message.Text = &text.String
	}
	if file.Valid {
		message.File = &file.String
	}
	return message, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
