package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/textrelay/textrelay/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sender TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_sender_id ON messages(sender, id);
`

// Database is the per-sender message log. created_at is stored as unix
// milliseconds so staleness comparisons happen on integers inside
// sqlite. Safe for concurrent use.
type Database struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Database{db: db, now: time.Now}, nil
}

// AppendMessage inserts one turn. The store assigns the timestamp and
// sequence number, filling msg.ID and msg.CreatedAt on return.
func (d *Database) AppendMessage(msg *models.Message) error {
	now := d.now()
	err := d.db.QueryRow(`
        INSERT INTO messages (sender, role, content, created_at)
        VALUES (?, ?, ?, ?)
        RETURNING id`,
		msg.Sender, msg.Role, msg.Content, now.UnixMilli()).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("append message for %s: %w", msg.Sender, err)
	}
	msg.CreatedAt = now
	return nil
}

// RecentMessages returns at most limit of the sender's newest messages
// in chronological order. limit <= 0 yields an empty slice.
func (d *Database) RecentMessages(sender string, limit int) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	if limit <= 0 {
		return messages, nil
	}

	rows, err := d.db.Query(`
        SELECT id, sender, role, content, created_at
        FROM messages
        WHERE sender = ?
        ORDER BY id DESC
        LIMIT ?`, sender, limit)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", sender, err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = time.UnixMilli(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history for %s: %w", sender, err)
	}

	// Rows come back newest-first, reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ClearHistory deletes every message for the sender. Clearing a sender
// with no history is a no-op.
func (d *Database) ClearHistory(sender string) error {
	if _, err := d.db.Exec(`DELETE FROM messages WHERE sender = ?`, sender); err != nil {
		return fmt.Errorf("clear history for %s: %w", sender, err)
	}
	return nil
}

// LastUserMessage returns the content of the sender's newest user-role
// message. The second return is false when no such message exists.
func (d *Database) LastUserMessage(sender string) (string, bool, error) {
	var content string
	err := d.db.QueryRow(`
        SELECT content FROM messages
        WHERE sender = ? AND role = ?
        ORDER BY id DESC
        LIMIT 1`, sender, models.RoleUser).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("last user message for %s: %w", sender, err)
	}
	return content, true, nil
}

// ExpireIfStale deletes the sender's entire history when the newest
// message, any role, is older than timeout. A sender with no history is
// never stale. The check and the delete are a single statement, so a
// concurrent append moves MAX(created_at) forward and vetoes the
// delete instead of being silently swept away.
func (d *Database) ExpireIfStale(sender string, timeout time.Duration) (bool, error) {
	cutoff := d.now().Add(-timeout).UnixMilli()
	res, err := d.db.Exec(`
        DELETE FROM messages
        WHERE sender = ?
          AND (SELECT MAX(created_at) FROM messages WHERE sender = ?) < ?`,
		sender, sender, cutoff)
	if err != nil {
		return false, fmt.Errorf("expire history for %s: %w", sender, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("expire history for %s: %w", sender, err)
	}
	return n > 0, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
