package cache

import (
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteCache is a file-backed provider with tag support.
type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS entries (
			key TEXT PRIMARY KEY,
			expires INTEGER,
			bytes BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS entry_tags (
			key TEXT NOT NULL,
			tag TEXT NOT NULL,
			PRIMARY KEY (key, tag)
		)`,
		"CREATE INDEX IF NOT EXISTS expires_idx ON entries (expires)",
		"CREATE INDEX IF NOT EXISTS tag_idx ON entry_tags (tag)",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			panic(err)
		}
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

// Close closes the underlying db.
func (s SQLiteCache) Close() error {
	return s.db.Close()
}

func (s SQLiteCache) Get(key string) ([]byte, bool, error) {
	var expires int64
	var bytes []byte
	err := s.db.QueryRow("SELECT expires, bytes FROM entries WHERE key = ?", key).Scan(&expires, &bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !live(expires, time.Now()) {
		return nil, false, nil
	}
	return bytes, true, nil
}

func live(expires int64, now time.Time) bool {
	return expires == 0 || now.Before(time.UnixMilli(expires))
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (s SQLiteCache) Put(key string, expires time.Time, bytes []byte) error {
	return s.put(key, expires, bytes, nil)
}

func (s SQLiteCache) put(key string, expires time.Time, bytes []byte, tags []string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("INSERT OR REPLACE INTO entries (key, expires, bytes) VALUES (?, ?, ?)",
		key, unixMilli(expires), bytes); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM entry_tags WHERE key = ?", key); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := tx.Exec("INSERT OR IGNORE INTO entry_tags (key, tag) VALUES (?, ?)", key, tag); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s SQLiteCache) Has(key string) bool {
	var expires int64
	err := s.db.QueryRow("SELECT expires FROM entries WHERE key = ?", key).Scan(&expires)
	return err == nil && live(expires, time.Now())
}

func (s SQLiteCache) Purge(key string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	found, err := deleteEntries(tx, "key = ?", key)
	if err != nil {
		return false, err
	}
	return found > 0, tx.Commit()
}

func (s SQLiteCache) Take(key string) ([]byte, bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()
	var expires int64
	var bytes []byte
	err = tx.QueryRow("SELECT expires, bytes FROM entries WHERE key = ?", key).Scan(&expires, &bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if _, err := deleteEntries(tx, "key = ?", key); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return bytes, live(expires, time.Now()), nil
}

func (s SQLiteCache) Expire(t time.Time) (int, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	removed, err := deleteEntries(tx, "expires > 0 AND expires <= ?", t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return int(removed), tx.Commit()
}

// deleteEntries removes the entries matching where, together with their tags.
func deleteEntries(tx *sql.Tx, where string, args ...any) (int64, error) {
	rows, err := tx.Query("SELECT key FROM entries WHERE "+where, args...)
	if err != nil {
		return 0, err
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, err
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, key := range keys {
		if _, err := tx.Exec("DELETE FROM entry_tags WHERE key = ?", key); err != nil {
			return 0, err
		}
		if _, err := tx.Exec("DELETE FROM entries WHERE key = ?", key); err != nil {
			return 0, err
		}
	}
	return int64(len(keys)), nil
}

func (s SQLiteCache) Tags(tags ...string) TaggedCache {
	return sqliteTagged{s, tags}
}

type sqliteTagged struct {
	s    SQLiteCache
	tags []string
}

func (t sqliteTagged) Put(key string, expires time.Time, bytes []byte) error {
	return t.s.put(key, expires, bytes, t.tags)
}

func (t sqliteTagged) Clear() error {
	if len(t.tags) == 0 {
		return nil
	}
	t.s.writeMutex.Lock()
	defer t.s.writeMutex.Unlock()
	tx, err := t.s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	args := make([]any, 0, len(t.tags)+1)
	for _, tag := range t.tags {
		args = append(args, tag)
	}
	args = append(args, len(t.tags))
	where := "key IN (SELECT key FROM entry_tags WHERE tag IN (?" + strings.Repeat(", ?", len(t.tags)-1) +
		") GROUP BY key HAVING COUNT(DISTINCT tag) = ?)"
	if _, err := deleteEntries(tx, where, args...); err != nil {
		return err
	}
	return tx.Commit()
}
