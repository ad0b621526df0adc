// Package store persists genomes, events and analyses. SQLiteStore is the
// production store; MemoryStore backs tests and --in-memory runs. Both
// satisfy ports.Store with identical ordering semantics.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// SQLiteStore implements ports.Store on a SQLite file. Every method is
// safe for concurrent use; writes are serialized on a single connection.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ ports.Store = (*SQLiteStore)(nil)

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithLogger sets the logger used for migrations and slow paths.
func WithLogger(logger *zap.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.logger = logger }
}

// OpenSQLite opens path, applies the pragmas and migrates the schema to
// SchemaVersion.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s, err := OpenSQLiteNoMigrate(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLiteNoMigrate opens path without touching the schema. The migrate
// CLI command uses it to move between versions explicitly.
func OpenSQLiteNoMigrate(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", domain.ErrInvalidConfiguration)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// A single connection keeps :memory: databases alive and avoids
	// SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if path == MemoryDSN && pragma == "PRAGMA journal_mode=WAL" {
			continue
		}
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

const genomeColumns = `id, lab_name, version, parent_version, genome_data, change_description, is_active, created_at`

// ActiveGenome returns the newest active row of lab. Rows created at the
// same instant are ordered by insertion.
func (s *SQLiteStore) ActiveGenome(ctx context.Context, lab string) (domain.Genome, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+genomeColumns+` FROM genomes
		WHERE lab_name = ? AND is_active = 1
		ORDER BY created_at DESC, seq DESC LIMIT 1`, lab)
	g, err := scanGenome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Genome{}, ports.NewStoreError("genome", "active", fmt.Errorf("%s: %w", lab, domain.ErrGenomeNotFound))
	}
	if err != nil {
		return domain.Genome{}, ports.NewStoreError("genome", "active", err)
	}
	return g, nil
}

// Lineage returns every row of lab, oldest first.
func (s *SQLiteStore) Lineage(ctx context.Context, lab string) ([]domain.Genome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+genomeColumns+` FROM genomes
		WHERE lab_name = ? ORDER BY created_at ASC, seq ASC`, lab)
	if err != nil {
		return nil, ports.NewStoreError("genome", "lineage", err)
	}
	defer rows.Close()

	lineage := make([]domain.Genome, 0)
	for rows.Next() {
		g, err := scanGenome(rows)
		if err != nil {
			return nil, ports.NewStoreError("genome", "lineage", err)
		}
		lineage = append(lineage, g)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("genome", "lineage", err)
	}
	return lineage, nil
}

// InsertGenome appends one genome row.
func (s *SQLiteStore) InsertGenome(ctx context.Context, genome domain.Genome) error {
	if err := insertGenome(ctx, s.db, genome); err != nil {
		return ports.NewStoreError("genome", "insert", err)
	}
	return nil
}

// execer is the part of *sql.DB and *sql.Tx the insert helpers need.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertGenome(ctx context.Context, db execer, g domain.Genome) error {
	if !domain.IsKnownLab(g.LabName) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownLab, g.LabName)
	}
	data, err := json.Marshal(g.Data)
	if err != nil {
		return fmt.Errorf("failed to encode genome data: %w", err)
	}
	var parent sql.NullString
	if g.ParentVersion != nil {
		parent = sql.NullString{String: *g.ParentVersion, Valid: true}
	}
	_, err = db.ExecContext(ctx, `INSERT INTO genomes (`+genomeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.LabName, g.Version, parent, string(data), g.ChangeDescription, g.IsActive, g.CreatedAt.UnixNano())
	return translate(err)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanGenome(sc scanner) (domain.Genome, error) {
	var (
		g         domain.Genome
		parent    sql.NullString
		data      string
		createdAt int64
	)
	if err := sc.Scan(&g.ID, &g.LabName, &g.Version, &parent, &data, &g.ChangeDescription, &g.IsActive, &createdAt); err != nil {
		return domain.Genome{}, err
	}
	if parent.Valid {
		p := parent.String
		g.ParentVersion = &p
	}
	if err := json.Unmarshal([]byte(data), &g.Data); err != nil {
		return domain.Genome{}, fmt.Errorf("failed to decode genome %s: %w", g.ID, err)
	}
	g.CreatedAt = time.Unix(0, createdAt).UTC()
	return g, nil
}

// CommitAnalysis writes result and genomes in one transaction.
func (s *SQLiteStore) CommitAnalysis(ctx context.Context, result domain.AnalysisResult, genomes []domain.Genome) (err error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return ports.NewStoreError("analysis", "commit", fmt.Errorf("failed to encode analysis: %w", err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.NewStoreError("analysis", "commit", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO analyses (id, event_id, winner, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		result.ID, result.EventID, string(result.Decision.Winner), string(payload), result.CreatedAt.UnixNano(),
	); err != nil {
		return ports.NewStoreError("analysis", "commit", translate(err))
	}
	for _, g := range genomes {
		if err = insertGenome(ctx, tx, g); err != nil {
			return ports.NewStoreError("genome", "commit", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return ports.NewStoreError("analysis", "commit", err)
	}
	return nil
}

// GetAnalysis returns the analysis with id.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (domain.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM analyses WHERE id = ?`, id)
	return scanAnalysis(row, "get", id)
}

// LatestAnalysisForEvent returns the newest analysis of eventID.
func (s *SQLiteStore) LatestAnalysisForEvent(ctx context.Context, eventID string) (domain.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM analyses WHERE event_id = ?
		ORDER BY created_at DESC, seq DESC LIMIT 1`, eventID)
	return scanAnalysis(row, "latest", eventID)
}

func scanAnalysis(row *sql.Row, op, key string) (domain.AnalysisResult, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%s: %w", key, domain.ErrAnalysisNotFound)
		}
		return domain.AnalysisResult{}, ports.NewStoreError("analysis", op, err)
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return domain.AnalysisResult{}, ports.NewStoreError("analysis", op, err)
	}
	return result, nil
}

// ListAnalyses returns up to limit analyses, newest first.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, limit int) ([]domain.AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM analyses
		ORDER BY created_at DESC, seq DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, ports.NewStoreError("analysis", "list", err)
	}
	defer rows.Close()

	out := make([]domain.AnalysisResult, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, ports.NewStoreError("analysis", "list", err)
		}
		var result domain.AnalysisResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, ports.NewStoreError("analysis", "list", err)
		}
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("analysis", "list", err)
	}
	return out, nil
}

// SaveEvent stores event. Its id must be unique.
func (s *SQLiteStore) SaveEvent(ctx context.Context, event domain.Event) error {
	if event.ID == "" {
		return ports.NewStoreError("event", "save", fmt.Errorf("%w: event id is required", domain.ErrInvalidState))
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return ports.NewStoreError("event", "save", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, event_type, severity, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.ID, string(event.Type), string(event.EffectiveSeverity()), string(payload), event.CreatedAt.UnixNano(),
	)
	if err != nil {
		return ports.NewStoreError("event", "save", translate(err))
	}
	return nil
}

// GetEvent returns the event with id.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM events WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, ports.NewStoreError("event", "get", fmt.Errorf("%s: %w", id, domain.ErrEventNotFound))
	}
	if err != nil {
		return domain.Event{}, ports.NewStoreError("event", "get", err)
	}
	return decodeEvent(payload)
}

// ListEvents returns up to limit events, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM events
		ORDER BY created_at DESC, seq DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, ports.NewStoreError("event", "list", err)
	}
	defer rows.Close()

	out := make([]domain.Event, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, ports.NewStoreError("event", "list", err)
		}
		event, err := decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("event", "list", err)
	}
	return out, nil
}

func decodeEvent(payload string) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return domain.Event{}, ports.NewStoreError("event", "decode", err)
	}
	return event, nil
}

// sqlLimit maps "no limit" onto SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// translate maps unique-constraint violations onto ports.ErrConflict.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var serr *sqlitedriver.Error
	if errors.As(err, &serr) && serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %w", ports.ErrConflict, err)
	}
	return err
}
