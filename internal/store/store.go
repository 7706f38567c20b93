// Package store persists conversations, messages, quotes, and a mirror of
// known users in a local sqlite database.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hybridz/shipdesk-whatsapp/internal/profile"
	"github.com/hybridz/shipdesk-whatsapp/internal/rate"
)

// conversationWindow is how long a conversation stays open; a message after
// this gap starts a new one.
const conversationWindow = 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	phone TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	last_message_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_phone ON conversations(phone, last_message_at);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	message_type TEXT NOT NULL DEFAULT 'text',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);

CREATE TABLE IF NOT EXISTS quotations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL,
	phone TEXT NOT NULL,
	request_json TEXT NOT NULL,
	result_json TEXT NOT NULL,
	quote_type TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	phone TEXT PRIMARY KEY,
	company TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	nickname TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT '',
	directory_row INTEGER NOT NULL DEFAULT 0,
	blocked INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
);
`

// Message is one stored conversation turn.
type Message struct {
	Role    string
	Content string
	Type    string
}

// Stats summarizes stored activity.
type Stats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	Quotations    int `json:"quotations"`
	Users         int `json:"users"`
}

// Store wraps the sqlite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ConversationID returns the open conversation for a sender, starting a new
// one when the last message is older than the conversation window.
func (s *Store) ConversationID(phone string) (int64, error) {
	now := s.now()
	var id int64
	var last time.Time
	err := s.db.QueryRow(
		`SELECT id, last_message_at FROM conversations WHERE phone = ? ORDER BY last_message_at DESC LIMIT 1`,
		phone).Scan(&id, &last)
	switch {
	case err == nil && now.Sub(last) < conversationWindow:
		return id, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("looking up conversation: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO conversations (phone, started_at, last_message_at) VALUES (?, ?, ?)`,
		phone, now, now)
	if err != nil {
		return 0, fmt.Errorf("starting conversation: %w", err)
	}
	return res.LastInsertId()
}

// AppendMessage records one turn and bumps the conversation clock.
func (s *Store) AppendMessage(conversationID int64, role, content, msgType string) error {
	if msgType == "" {
		msgType = "text"
	}
	now := s.now()
	if _, err := s.db.Exec(
		`INSERT INTO messages (conversation_id, role, content, message_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		conversationID, role, content, msgType, now); err != nil {
		return fmt.Errorf("storing message: %w", err)
	}
	if _, err := s.db.Exec(
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

// History returns the most recent turns of a conversation, oldest first.
func (s *Store) History(conversationID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT role, content, message_type FROM (
			SELECT id, role, content, message_type FROM messages
			WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Type); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// SaveQuote records a computed quote for auditing.
func (s *Store) SaveQuote(conversationID int64, phone string, req rate.QuoteRequest, res rate.Result) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding quote request: %w", err)
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding quote result: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO quotations (conversation_id, phone, request_json, result_json, quote_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conversationID, phone, string(reqJSON), string(resJSON), res.QuoteType, s.now())
	if err != nil {
		return fmt.Errorf("storing quote: %w", err)
	}
	return nil
}

// GetUser loads a mirrored profile. Returns nil without error when absent.
func (s *Store) GetUser(phone string) (*profile.Context, error) {
	var u profile.Context
	var blocked int
	err := s.db.QueryRow(
		`SELECT phone, company, name, nickname, role, directory_row, blocked FROM users WHERE phone = ?`,
		profile.NormalizePhone(phone)).
		Scan(&u.Phone, &u.Company, &u.Name, &u.Nickname, &u.Role, &u.Row, &blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	u.Blocked = blocked != 0
	return &u, nil
}

// SaveUser upserts a mirrored profile.
func (s *Store) SaveUser(u *profile.Context) error {
	blocked := 0
	if u.Blocked {
		blocked = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO users (phone, company, name, nickname, role, directory_row, blocked, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(phone) DO UPDATE SET
			company = excluded.company, name = excluded.name, nickname = excluded.nickname,
			role = excluded.role, directory_row = excluded.directory_row,
			blocked = excluded.blocked, updated_at = excluded.updated_at`,
		profile.NormalizePhone(u.Phone), u.Company, u.Name, u.Nickname, u.Role, u.Row, blocked, s.now())
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// DeleteUser drops a mirrored profile. Deleting an absent row is not an
// error.
func (s *Store) DeleteUser(phone string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE phone = ?`, profile.NormalizePhone(phone))
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// Stats counts stored rows.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	for _, q := range []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM conversations`, &st.Conversations},
		{`SELECT COUNT(*) FROM messages`, &st.Messages},
		{`SELECT COUNT(*) FROM quotations`, &st.Quotations},
		{`SELECT COUNT(*) FROM users`, &st.Users},
	} {
		if err := s.db.QueryRow(q.query).Scan(q.dst); err != nil {
			return Stats{}, fmt.Errorf("counting rows: %w", err)
		}
	}
	return st, nil
}
