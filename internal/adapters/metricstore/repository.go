package metricstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const selectColumns = `SELECT id, kind, device_id, granularity, created, samples, payload, counts FROM metric_records`

// SQLiteRepository implements ports.MetricStore on its own SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the metrics database.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Record appends a record and returns its id.
func (r *SQLiteRepository) Record(ctx context.Context, rec domain.MetricRecord) (int64, error) {
	return insertRecord(ctx, r.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec domain.MetricRecord) (int64, error) {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}
	counts := rec.Counts
	if counts == nil {
		counts = map[string]int64{}
	}
	encodedCounts, err := json.Marshal(counts)
	if err != nil {
		return 0, fmt.Errorf("failed to encode field counts: %w", err)
	}
	samples := rec.Samples
	if samples < 1 {
		samples = 1
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO metric_records (kind, device_id, granularity, created, samples, payload, counts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Kind), rec.DeviceID, int(rec.Granularity), rec.Created.UnixNano(), samples, string(payload), string(encodedCounts))
	if err != nil {
		return 0, fmt.Errorf("insert failed: %w", err)
	}
	return res.LastInsertId()
}

// Partition returns every record of one (kind, granularity) ordered by device and time.
func (r *SQLiteRepository) Partition(ctx context.Context, kind domain.MetricKind, g domain.Granularity) ([]domain.MetricRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		selectColumns+` WHERE kind = ? AND granularity = ? ORDER BY device_id, created, id`,
		string(kind), int(g))
	if err != nil {
		return nil, fmt.Errorf("partition query failed: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Query returns records matching q ordered by created.
func (r *SQLiteRepository) Query(ctx context.Context, q domain.MetricQuery) ([]domain.MetricRecord, error) {
	var (
		conditions []string
		args       []any
	)
	if q.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if len(q.DeviceIDs) > 0 {
		conditions = append(conditions, "device_id IN ("+placeholders(len(q.DeviceIDs))+")")
		for _, id := range q.DeviceIDs {
			args = append(args, id)
		}
	}
	if q.Granularity != nil {
		conditions = append(conditions, "granularity = ?")
		args = append(args, int(*q.Granularity))
	}
	if !q.From.IsZero() {
		conditions = append(conditions, "created >= ?")
		args = append(args, q.From.UnixNano())
	}
	if !q.To.IsZero() {
		conditions = append(conditions, "created < ?")
		args = append(args, q.To.UnixNano())
	}

	query := selectColumns
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metric query failed: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Latest returns the newest record of a device holding every required field.
func (r *SQLiteRepository) Latest(ctx context.Context, kind domain.MetricKind, deviceID string, requiredFields ...string) (*domain.MetricRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		selectColumns+` WHERE kind = ? AND device_id = ? ORDER BY created DESC, id DESC`,
		string(kind), deviceID)
	if err != nil {
		return nil, fmt.Errorf("latest query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if hasFields(rec, requiredFields) {
			return &rec, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, domain.ErrNotFound
}

func hasFields(rec domain.MetricRecord, fields []string) bool {
	for _, f := range fields {
		if _, ok := rec.Value(f); !ok {
			return false
		}
	}
	return true
}

// FindBucketRecord returns the record of a device stored at exactly created.
func (r *SQLiteRepository) FindBucketRecord(ctx context.Context, kind domain.MetricKind, deviceID string, g domain.Granularity, created time.Time) (*domain.MetricRecord, error) {
	row := r.db.QueryRowContext(ctx,
		selectColumns+` WHERE kind = ? AND device_id = ? AND granularity = ? AND created = ? ORDER BY id LIMIT 1`,
		string(kind), deviceID, int(g), created.UnixNano())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CommitBucket replaces the source rows of one bucket by their merged record.
func (r *SQLiteRepository) CommitBucket(ctx context.Context, commit ports.BucketCommit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bucket transaction: %w", err)
	}
	defer tx.Rollback()

	ids := commit.SourceIDs
	if commit.ReplaceID != 0 {
		ids = append(append([]int64(nil), ids...), commit.ReplaceID)
	}
	if len(ids) > 0 {
		args := make([]any, 0, len(ids)+1)
		args = append(args, string(commit.Merged.Kind))
		for _, id := range ids {
			args = append(args, id)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM metric_records WHERE kind = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
		if err != nil {
			return fmt.Errorf("delete merged records: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("%w: deleted %d of %d rows", domain.ErrAggregationConsistency, n, len(ids))
		}
	}

	if _, err := insertRecord(ctx, tx, commit.Merged); err != nil {
		return err
	}
	return tx.Commit()
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.MetricRecord, error) {
	var (
		rec     domain.MetricRecord
		kind    string
		gran    int
		created int64
		payload string
		counts  string
	)
	if err := s.Scan(&rec.ID, &kind, &rec.DeviceID, &gran, &created, &rec.Samples, &payload, &counts); err != nil {
		return rec, err
	}
	rec.Kind = domain.MetricKind(kind)
	rec.Granularity = domain.Granularity(gran)
	rec.Created = time.Unix(0, created).UTC()
	rec.Fields = make(map[string]*float64)
	if err := json.Unmarshal([]byte(payload), &rec.Fields); err != nil {
		return rec, fmt.Errorf("decode payload of record %d: %w", rec.ID, err)
	}
	rec.Counts = make(map[string]int64)
	if err := json.Unmarshal([]byte(counts), &rec.Counts); err != nil {
		return rec, fmt.Errorf("decode field counts of record %d: %w", rec.ID, err)
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]domain.MetricRecord, error) {
	var records []domain.MetricRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var _ ports.MetricStore = (*SQLiteRepository)(nil)
