// Package store is the on-disk relational companion to the in-memory index.
// It persists what a rescan cannot cheaply recover: thumbnail bookkeeping
// for the cover-art cache and album loudness read during earlier runs.
//
// The cache subcommand is the only writer. At serve time the store is
// opened read-only in spirit: serve only ever queries it.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ruuda/musium/internal/library"
)

const schema = `
CREATE TABLE IF NOT EXISTS albums (
	album_id INTEGER PRIMARY KEY,
	-- Integrated loudness in tenths of a dB, NULL when never measured.
	loudness INTEGER
);

CREATE TABLE IF NOT EXISTS thumbnails (
	album_id     INTEGER PRIMARY KEY,
	source_path  TEXT    NOT NULL,
	source_mtime INTEGER NOT NULL,
	size_bytes   INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);
`

// Store wraps the sqlite database holding cached album metadata.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Album ids are uint64 but sqlite integers are signed; the bit pattern is
// stored as-is and reinterpreted on read.

// SetAlbumLoudness records loudness values, in tenths of a dB, for many
// albums in one transaction.
func (s *Store) SetAlbumLoudness(loudness map[library.AlbumId]int16) error {
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO albums (album_id, loudness) VALUES (?, ?)
			ON CONFLICT(album_id) DO UPDATE SET loudness = excluded.loudness
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for id, v := range loudness {
			if _, err := stmt.Exec(int64(id), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// AlbumLoudness returns every recorded loudness value.
func (s *Store) AlbumLoudness() (map[library.AlbumId]int16, error) {
	rows, err := s.db.Query(`SELECT album_id, loudness FROM albums WHERE loudness IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loudness := make(map[library.AlbumId]int16)
	for rows.Next() {
		var id int64
		var v int16
		if err := rows.Scan(&id, &v); err != nil {
			return nil, err
		}
		loudness[library.AlbumId(id)] = v
	}
	return loudness, rows.Err()
}

// Thumbnail is the bookkeeping row for one generated thumbnail.
type Thumbnail struct {
	AlbumID     library.AlbumId
	SourcePath  string
	SourceMtime int64
	SizeBytes   int64
	CreatedAt   int64
}

// Thumbnail returns the row for an album, or nil when none was generated.
func (s *Store) Thumbnail(id library.AlbumId) (*Thumbnail, error) {
	row := s.db.QueryRow(`
		SELECT source_path, source_mtime, size_bytes, created_at
		FROM thumbnails WHERE album_id = ?
	`, int64(id))

	t := Thumbnail{AlbumID: id}
	err := row.Scan(&t.SourcePath, &t.SourceMtime, &t.SizeBytes, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertThumbnail records that an album's thumbnail was (re)generated.
func (s *Store) UpsertThumbnail(t Thumbnail) error {
	_, err := s.db.Exec(`
		INSERT INTO thumbnails (album_id, source_path, source_mtime, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(album_id) DO UPDATE SET
			source_path = excluded.source_path,
			source_mtime = excluded.source_mtime,
			size_bytes = excluded.size_bytes,
			created_at = excluded.created_at
	`, int64(t.AlbumID), t.SourcePath, t.SourceMtime, t.SizeBytes, t.CreatedAt)
	return err
}
