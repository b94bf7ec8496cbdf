// File: peer/fs_sqlite.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SQLite backend: the whole tree lives in one table keyed by path, so a
// deployment can ship its filesystem as a single database file.

package peer

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/momentics/hioload-mp/api"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS nodes (
	path   TEXT PRIMARY KEY,
	parent TEXT NOT NULL,
	is_dir INTEGER NOT NULL,
	data   BLOB NOT NULL DEFAULT x'',
	mtime  INTEGER NOT NULL
)`

// SQLiteBackend stores files and directories as rows.
type SQLiteBackend struct {
	db *sql.DB
}

var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLiteBackend opens or creates the database at dsn.
func OpenSQLiteBackend(dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO nodes (path, parent, is_dir, mtime) VALUES ('.', '', 1, ?)`, time.Now().UnixNano()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating root: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

type node struct {
	isDir bool
	size  int64
	mtime time.Time
}

func lookup(q queryer, name string) (node, error) {
	var n node
	var mtime int64
	err := q.QueryRow(`SELECT is_dir, length(data), mtime FROM nodes WHERE path = ?`, name).Scan(&n.isDir, &n.size, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return n, fs.ErrNotExist
	}
	n.mtime = time.Unix(0, mtime)
	return n, err
}

func parentOf(name string) string {
	if name == "." {
		return ""
	}
	return path.Dir(name)
}

func requireDir(q queryer, name string) error {
	n, err := lookup(q, name)
	if err != nil {
		return err
	}
	if !n.isDir {
		return ErrNotDir
	}
	return nil
}

// Open opens or creates a file row.
func (b *SQLiteBackend) Open(name string, flags api.OpenFlags) (File, error) {
	n, err := lookup(b.db, name)
	switch {
	case errors.Is(err, fs.ErrNotExist) && flags&api.OpenCreate != 0:
		if err := requireDir(b.db, parentOf(name)); err != nil {
			return nil, err
		}
		_, err = b.db.Exec(`INSERT INTO nodes (path, parent, is_dir, mtime) VALUES (?, ?, 0, ?)`,
			name, parentOf(name), time.Now().UnixNano())
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case n.isDir:
		return nil, ErrIsDir
	case flags&api.OpenTruncate != 0:
		if _, err := b.db.Exec(`UPDATE nodes SET data = x'', mtime = ? WHERE path = ?`, time.Now().UnixNano(), name); err != nil {
			return nil, err
		}
	}
	return &sqliteFile{b: b, name: name, writable: flags&(api.OpenWrite|api.OpenAppend) != 0}, nil
}

// Stat describes a row.
func (b *SQLiteBackend) Stat(name string) (api.Stat, error) {
	n, err := lookup(b.db, name)
	if err != nil {
		return api.Stat{}, err
	}
	mode := uint32(0o644) | api.ModeFile
	if n.isDir {
		mode = 0o755 | api.ModeDir
	}
	return api.Stat{
		Mode:    mode,
		Nlink:   1,
		Size:    n.size,
		Blksize: 512,
		Blocks:  (n.size + 511) / 512,
		Atime:   n.mtime,
		Mtime:   n.mtime,
		Ctime:   n.mtime,
	}, nil
}

// Rename moves a row and, for directories, every row below it.
func (b *SQLiteBackend) Rename(oldname, newname string) error {
	if oldname == "." || newname == "." {
		return fs.ErrInvalid
	}
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	src, err := lookup(tx, oldname)
	if err != nil {
		return err
	}
	if err := requireDir(tx, parentOf(newname)); err != nil {
		return err
	}
	if dst, err := lookup(tx, newname); err == nil {
		if dst.isDir || src.isDir {
			return fs.ErrExist
		}
		if _, err := tx.Exec(`DELETE FROM nodes WHERE path = ?`, newname); err != nil {
			return err
		}
	}
	if src.isDir && strings.HasPrefix(newname, oldname+"/") {
		return fs.ErrInvalid
	}
	if _, err := tx.Exec(`UPDATE nodes SET path = ?, parent = ? WHERE path = ?`, newname, parentOf(newname), oldname); err != nil {
		return err
	}
	if src.isDir {
		rows, err := tx.Query(`SELECT path FROM nodes WHERE path LIKE ? ESCAPE '\'`, likePrefix(oldname)+"/%")
		if err != nil {
			return err
		}
		var below []string
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			below = append(below, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, p := range below {
			moved := newname + strings.TrimPrefix(p, oldname)
			if _, err := tx.Exec(`UPDATE nodes SET path = ?, parent = ? WHERE path = ?`, moved, parentOf(moved), p); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func likePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Unlink deletes a file row.
func (b *SQLiteBackend) Unlink(name string) error {
	n, err := lookup(b.db, name)
	if err != nil {
		return err
	}
	if n.isDir {
		return ErrIsDir
	}
	_, err = b.db.Exec(`DELETE FROM nodes WHERE path = ?`, name)
	return err
}

// Mkdir inserts a directory row.
func (b *SQLiteBackend) Mkdir(name string) error {
	if _, err := lookup(b.db, name); err == nil {
		return fs.ErrExist
	}
	if err := requireDir(b.db, parentOf(name)); err != nil {
		return err
	}
	_, err := b.db.Exec(`INSERT INTO nodes (path, parent, is_dir, mtime) VALUES (?, ?, 1, ?)`,
		name, parentOf(name), time.Now().UnixNano())
	return err
}

// Rmdir deletes an empty directory row.
func (b *SQLiteBackend) Rmdir(name string) error {
	if name == "." {
		return fs.ErrInvalid
	}
	if err := requireDir(b.db, name); err != nil {
		return err
	}
	var children int
	if err := b.db.QueryRow(`SELECT count(*) FROM nodes WHERE parent = ?`, name).Scan(&children); err != nil {
		return err
	}
	if children > 0 {
		return ErrNotEmpty
	}
	_, err := b.db.Exec(`DELETE FROM nodes WHERE path = ?`, name)
	return err
}

// ReadDir lists the children of a directory row.
func (b *SQLiteBackend) ReadDir(name string) ([]string, error) {
	if err := requireDir(b.db, name); err != nil {
		return nil, err
	}
	rows, err := b.db.Query(`SELECT path FROM nodes WHERE parent = ? ORDER BY path`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		names = append(names, path.Base(p))
	}
	return names, rows.Err()
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type sqliteFile struct {
	b        *SQLiteBackend
	name     string
	writable bool
}

func (f *sqliteFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.ErrInvalid
	}
	var data []byte
	if err := f.b.db.QueryRow(`SELECT data FROM nodes WHERE path = ?`, f.name).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fs.ErrNotExist
		}
		return 0, err
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *sqliteFile) WriteAt(p []byte, off int64) (int, error) {
	if !f.writable {
		return 0, fs.ErrPermission
	}
	if off < 0 {
		return 0, fs.ErrInvalid
	}
	tx, err := f.b.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	var data []byte
	if err := tx.QueryRow(`SELECT data FROM nodes WHERE path = ?`, f.name).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fs.ErrNotExist
		}
		return 0, err
	}
	if end := off + int64(len(p)); end > int64(len(data)) {
		data = append(data, make([]byte, end-int64(len(data)))...)
	}
	copy(data[off:], p)
	if _, err := tx.Exec(`UPDATE nodes SET data = ?, mtime = ? WHERE path = ?`, data, time.Now().UnixNano(), f.name); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *sqliteFile) Sync() error  { return nil }
func (f *sqliteFile) Close() error { return nil }
