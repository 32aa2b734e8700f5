package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/imamik/vpcmesh/internal/topology"
)

//go:embed schema.sql
var schema string

// SQLiteStore keeps records in a local SQLite file. Several topologies may
// share one file; every query is scoped to the store's topology.
type SQLiteStore struct {
	db       *sql.DB
	topology string
	now      func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path. The special path
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path, topologyName string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating state directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to state database: %w", err)
	}

	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state schema: %w", err)
	}

	return &SQLiteStore{db: db, topology: topologyName, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, unit string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT unit, status, outputs, inputs_hash, network_hash, revision,
		       applied_at, updated_at, error, error_kind
		FROM unit_records WHERE topology = ? AND unit = ?`, s.topology, unit)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, unit)
	}
	if err != nil {
		return nil, fmt.Errorf("reading state of %s: %w", unit, err)
	}
	return rec, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	stamp(rec, s.now())

	outputs, err := json.Marshal(rec.Outputs)
	if err != nil {
		return fmt.Errorf("encoding outputs of %s: %w", rec.Unit, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO unit_records (topology, unit, status, outputs, inputs_hash, network_hash,
		                          revision, applied_at, updated_at, error, error_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(topology, unit) DO UPDATE SET
			status = excluded.status,
			outputs = excluded.outputs,
			inputs_hash = excluded.inputs_hash,
			network_hash = excluded.network_hash,
			revision = excluded.revision,
			applied_at = excluded.applied_at,
			updated_at = excluded.updated_at,
			error = excluded.error,
			error_kind = excluded.error_kind`,
		s.topology, rec.Unit, string(rec.Status), string(outputs), rec.InputsHash, rec.NetworkHash,
		rec.Revision, formatTime(rec.AppliedAt), formatTime(rec.UpdatedAt), rec.Error, string(rec.ErrorKind))
	if err != nil {
		return fmt.Errorf("writing state of %s: %w", rec.Unit, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, unit string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM unit_records WHERE topology = ? AND unit = ?`, s.topology, unit); err != nil {
		return fmt.Errorf("deleting state of %s: %w", unit, err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit, status, outputs, inputs_hash, network_hash, revision,
		       applied_at, updated_at, error, error_kind
		FROM unit_records WHERE topology = ? ORDER BY unit`, s.topology)
	if err != nil {
		return nil, fmt.Errorf("listing state: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec                  Record
		status, kind         string
		outputs              string
		appliedAt, updatedAt string
	)
	if err := sc.Scan(&rec.Unit, &status, &outputs, &rec.InputsHash, &rec.NetworkHash, &rec.Revision,
		&appliedAt, &updatedAt, &rec.Error, &kind); err != nil {
		return nil, err
	}
	rec.Status = topology.UnitStatus(status)
	rec.ErrorKind = topology.Kind(kind)
	if err := json.Unmarshal([]byte(outputs), &rec.Outputs); err != nil {
		return nil, fmt.Errorf("decoding outputs of %s: %w", rec.Unit, err)
	}
	var err error
	if rec.AppliedAt, err = parseTime(appliedAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
