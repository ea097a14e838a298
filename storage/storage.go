package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("not found")

// Post is a published image with its hashtags.
type Post struct {
	ID        string
	PostedAt  time.Time
	ImageName string
	ImageURL  string
	Tags      []string
	MessageID *int64
}

// DB wraps the SQLite database connection and provides storage operations.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		posted_at DATETIME NOT NULL,
		image_name TEXT NOT NULL,
		image_url TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		message_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_posts_posted_at ON posts(posted_at);
	CREATE INDEX IF NOT EXISTS idx_posts_image_name ON posts(image_name);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// RecordPost stores a published post. Times are stored in UTC so they
// compare correctly as text.
func (db *DB) RecordPost(ctx context.Context, post *Post) error {
	tagsJSON, err := json.Marshal(post.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	query := `
	INSERT INTO posts (id, posted_at, image_name, image_url, tags, message_id)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = db.conn.ExecContext(ctx, query,
		post.ID,
		post.PostedAt.UTC(),
		post.ImageName,
		post.ImageURL,
		string(tagsJSON),
		post.MessageID,
	)
	return err
}

// GetPost retrieves a post by ID.
func (db *DB) GetPost(ctx context.Context, id string) (*Post, error) {
	query := `
	SELECT id, posted_at, image_name, image_url, tags, message_id
	FROM posts WHERE id = ?
	`
	return db.scanPost(db.conn.QueryRowContext(ctx, query, id))
}

// LastPost returns the most recent post.
func (db *DB) LastPost(ctx context.Context) (*Post, error) {
	query := `
	SELECT id, posted_at, image_name, image_url, tags, message_id
	FROM posts ORDER BY posted_at DESC LIMIT 1
	`
	return db.scanPost(db.conn.QueryRowContext(ctx, query))
}

func (db *DB) scanPost(row *sql.Row) (*Post, error) {
	post := &Post{}
	var tagsJSON string
	var messageID sql.NullInt64

	err := row.Scan(
		&post.ID,
		&post.PostedAt,
		&post.ImageName,
		&post.ImageURL,
		&tagsJSON,
		&messageID,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &post.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if messageID.Valid {
		post.MessageID = &messageID.Int64
	}

	return post, nil
}

// RecentImageNames returns the names of images posted within the given duration.
func (db *DB) RecentImageNames(ctx context.Context, within time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-within)
	query := `SELECT DISTINCT image_name FROM posts WHERE posted_at > ?`

	rows, err := db.conn.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CountPosts returns the total number of recorded posts.
func (db *DB) CountPosts(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM posts`
	var count int
	err := db.conn.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
