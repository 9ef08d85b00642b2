package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/laguz/spatial"
	"github.com/segmentio/encoding/json"

	_ "modernc.org/sqlite"
)

const (
	ErrTypeNotFound = "store-not-found"
	ErrTypeInvalid  = "store-invalid-record"
)

// Record is the persisted layout of a facility.
type Record struct {
	FacilityUUID string           `json:"facilityUuid"`
	Name         string           `json:"name"`
	Bounds       spatial.AABB     `json:"bounds"`
	Objects      []spatial.Object `json:"objects"`
	SavedAt      time.Time        `json:"savedAt"`
}

// Summary describes a persisted facility without its objects.
type Summary struct {
	FacilityUUID string    `json:"facilityUuid"`
	Name         string    `json:"name"`
	ObjectCount  int       `json:"objectCount"`
	SavedAt      time.Time `json:"savedAt"`
}

// SQLite stores facility layouts in a sqlite database.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("empty database path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.New("creating database directory failed").
				WithTag("path", path).
				Wrap(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New("opening database failed").
			WithTag("path", path).
			Wrap(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return errors.New("setting database pragma failed").
				WithTag("pragma", p).
				Wrap(err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS facilities (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			min_x REAL NOT NULL,
			min_y REAL NOT NULL,
			min_z REAL NOT NULL,
			max_x REAL NOT NULL,
			max_y REAL NOT NULL,
			max_z REAL NOT NULL,
			saved_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS objects (
			facility_uuid TEXT NOT NULL REFERENCES facilities(uuid) ON DELETE CASCADE,
			id TEXT NOT NULL,
			min_x REAL NOT NULL,
			min_y REAL NOT NULL,
			min_z REAL NOT NULL,
			max_x REAL NOT NULL,
			max_y REAL NOT NULL,
			max_z REAL NOT NULL,
			pos_x REAL NOT NULL,
			pos_y REAL NOT NULL,
			pos_z REAL NOT NULL,
			user_data TEXT NOT NULL,
			PRIMARY KEY (facility_uuid, id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return errors.New("creating database schema failed").Wrap(err)
		}
	}
	return nil
}

// Save replaces the persisted layout of the record facility.
func (s *SQLite) Save(ctx context.Context, r Record) error {
	if r.FacilityUUID == "" {
		return errors.New("record has no facility uuid").WithType(ErrTypeInvalid)
	}
	if r.SavedAt.IsZero() {
		r.SavedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New("beginning transaction failed").Wrap(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE facility_uuid = ?`, r.FacilityUUID); err != nil {
		return errors.New("deleting objects failed").
			WithTag("facility_uuid", r.FacilityUUID).
			Wrap(err)
	}

	b := r.Bounds
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO facilities (uuid, name, min_x, min_y, min_z, max_x, max_y, max_z, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			name = excluded.name,
			min_x = excluded.min_x, min_y = excluded.min_y, min_z = excluded.min_z,
			max_x = excluded.max_x, max_y = excluded.max_y, max_z = excluded.max_z,
			saved_at = excluded.saved_at`,
		r.FacilityUUID, r.Name,
		b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z,
		r.SavedAt.UnixMilli(),
	); err != nil {
		return errors.New("saving facility failed").
			WithTag("facility_uuid", r.FacilityUUID).
			Wrap(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO objects (facility_uuid, id, min_x, min_y, min_z, max_x, max_y, max_z, pos_x, pos_y, pos_z, user_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.New("preparing object statement failed").Wrap(err)
	}
	defer stmt.Close()

	for _, o := range r.Objects {
		userData, err := json.Marshal(o.UserData)
		if err != nil {
			return errors.New("encoding object user data failed").
				WithTag("object_id", o.ID).
				Wrap(err)
		}

		bb := o.BoundingBox
		if _, err := stmt.ExecContext(ctx,
			r.FacilityUUID, o.ID,
			bb.Min.X, bb.Min.Y, bb.Min.Z, bb.Max.X, bb.Max.Y, bb.Max.Z,
			o.Position.X, o.Position.Y, o.Position.Z,
			string(userData),
		); err != nil {
			return errors.New("saving object failed").
				WithTag("facility_uuid", r.FacilityUUID).
				WithTag("object_id", o.ID).
				Wrap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New("committing transaction failed").Wrap(err)
	}
	return nil
}

// Load returns the persisted layout of the given facility. Objects are sorted
// by id.
func (s *SQLite) Load(ctx context.Context, facilityUUID string) (Record, error) {
	r := Record{FacilityUUID: facilityUUID}

	var savedAt int64
	b := &r.Bounds
	err := s.db.QueryRowContext(ctx, `
		SELECT name, min_x, min_y, min_z, max_x, max_y, max_z, saved_at
		FROM facilities WHERE uuid = ?`, facilityUUID).
		Scan(&r.Name, &b.Min.X, &b.Min.Y, &b.Min.Z, &b.Max.X, &b.Max.Y, &b.Max.Z, &savedAt)
	if err == sql.ErrNoRows {
		return Record{}, errors.New("facility not found").
			WithTag("facility_uuid", facilityUUID).
			WithType(ErrTypeNotFound)
	}
	if err != nil {
		return Record{}, errors.New("loading facility failed").
			WithTag("facility_uuid", facilityUUID).
			Wrap(err)
	}
	r.SavedAt = time.UnixMilli(savedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, min_x, min_y, min_z, max_x, max_y, max_z, pos_x, pos_y, pos_z, user_data
		FROM objects WHERE facility_uuid = ? ORDER BY id`, facilityUUID)
	if err != nil {
		return Record{}, errors.New("loading objects failed").
			WithTag("facility_uuid", facilityUUID).
			Wrap(err)
	}
	defer rows.Close()

	r.Objects = []spatial.Object{}
	for rows.Next() {
		var o spatial.Object
		var userData string
		bb := &o.BoundingBox
		if err := rows.Scan(
			&o.ID,
			&bb.Min.X, &bb.Min.Y, &bb.Min.Z, &bb.Max.X, &bb.Max.Y, &bb.Max.Z,
			&o.Position.X, &o.Position.Y, &o.Position.Z,
			&userData,
		); err != nil {
			return Record{}, errors.New("reading object failed").
				WithTag("facility_uuid", facilityUUID).
				Wrap(err)
		}

		if err := json.Unmarshal([]byte(userData), &o.UserData); err != nil {
			return Record{}, errors.New("decoding object user data failed").
				WithTag("object_id", o.ID).
				Wrap(err)
		}
		r.Objects = append(r.Objects, o)
	}
	if err := rows.Err(); err != nil {
		return Record{}, errors.New("reading objects failed").Wrap(err)
	}
	return r, nil
}

// List returns the persisted facilities, most recently saved first.
func (s *SQLite) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.uuid, f.name, f.saved_at, COUNT(o.id)
		FROM facilities f LEFT JOIN objects o ON o.facility_uuid = f.uuid
		GROUP BY f.uuid
		ORDER BY f.saved_at DESC, f.uuid`)
	if err != nil {
		return nil, errors.New("listing facilities failed").Wrap(err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var s Summary
		var savedAt int64
		if err := rows.Scan(&s.FacilityUUID, &s.Name, &savedAt, &s.ObjectCount); err != nil {
			return nil, errors.New("reading facility failed").Wrap(err)
		}
		s.SavedAt = time.UnixMilli(savedAt)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New("listing facilities failed").Wrap(err)
	}
	return summaries, nil
}

// Delete removes the persisted layout of the given facility.
func (s *SQLite) Delete(ctx context.Context, facilityUUID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facilities WHERE uuid = ?`, facilityUUID)
	if err != nil {
		return errors.New("deleting facility failed").
			WithTag("facility_uuid", facilityUUID).
			Wrap(err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("facility not found").
			WithTag("facility_uuid", facilityUUID).
			WithType(ErrTypeNotFound)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
