package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soundprediction/kgroute/pkg/types"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name     string
	driver   string
	jsonType string
	timeType string
	numbered bool // $1 placeholders instead of ?
	maxOpen  int
}

var (
	postgresDialect = dialect{
		name:     TypePostgres,
		driver:   "postgres",
		jsonType: "JSONB",
		timeType: "TIMESTAMPTZ",
		numbered: true,
		maxOpen:  25,
	}
	doltDialect = dialect{
		name:     TypeDolt,
		driver:   "dolt",
		jsonType: "JSON",
		timeType: "DATETIME(6)",
		// the embedded engine is single process
		maxOpen: 1,
	}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR(64) PRIMARY KEY,
			question TEXT NOT NULL,
			query_time ` + d.timeType + `,
			answer TEXT,
			decision VARCHAR(32),
			direct_answer TEXT,
			direct_rationale TEXT,
			created_at ` + d.timeType + `
		)`,
		`CREATE TABLE IF NOT EXISTS route_results (
			run_id VARCHAR(64) NOT NULL,
			route_index INT NOT NULL,
			sub_objectives ` + d.jsonType + `,
			state VARCHAR(32),
			depth INT,
			answer TEXT,
			rationale TEXT,
			duration_ms BIGINT,
			evidence ` + d.jsonType + `,
			error TEXT,
			PRIMARY KEY (run_id, route_index),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX ` + d.ifNotExists() + `runs_created_at ON runs (created_at)`,
	}
}

func (d dialect) ifNotExists() string {
	if d.numbered {
		return "IF NOT EXISTS "
	}
	return ""
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

func openSQL(d dialect, dsn string, setup ...string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.name, err)
	}
	db.SetMaxOpenConns(d.maxOpen)
	db.SetMaxIdleConns(min(d.maxOpen, 5))
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.name, err)
	}
	for _, stmt := range setup {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to prepare %s database: %w", d.name, err)
		}
	}
	return &SQLStore{db: db, dialect: d, now: time.Now}, nil
}

// Initialize implements Store.
func (s *SQLStore) Initialize(ctx context.Context) error {
	for i, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			// MySQL-family engines have no CREATE INDEX IF NOT EXISTS
			if i == 2 && !s.dialect.numbered && isDuplicate(err) {
				continue
			}
			return fmt.Errorf("failed to execute init query: %w", err)
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "already exists")
}

// SaveRun implements Store.
func (s *SQLStore) SaveRun(ctx context.Context, result *types.AnswerResult) error {
	if result == nil || result.RunID == "" {
		return errors.New("a result with a run id is required")
	}
	run := NewRun(result, s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO runs
		(run_id, question, query_time, answer, decision, direct_answer, direct_rationale, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		run.RunID, run.Question, run.QueryTime, run.Answer, string(run.Decision),
		run.DirectAnswer, run.DirectRationale, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`INSERT INTO route_results
		(run_id, route_index, sub_objectives, state, depth, answer, rationale, duration_ms, evidence, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare route statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range run.Routes {
		objectives, err := json.Marshal(nonNil(r.SubObjectives))
		if err != nil {
			return fmt.Errorf("failed to marshal sub-objectives for route %d: %w", r.Index, err)
		}
		evidence, err := json.Marshal(nonNil(r.Evidence))
		if err != nil {
			return fmt.Errorf("failed to marshal evidence for route %d: %w", r.Index, err)
		}
		if _, err := stmt.ExecContext(ctx, run.RunID, r.Index, string(objectives), string(r.State),
			r.Depth, r.Answer, r.Rationale, r.DurationMS, string(evidence), r.Error); err != nil {
			return fmt.Errorf("failed to insert route %d: %w", r.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.RunID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const runColumns = `run_id, question, query_time, answer, decision, direct_answer, direct_rationale, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                                   Run
		decision                              string
		answer, directAnswer, directRationale sql.NullString
		queryTime, createdAt                  sql.NullTime
	)
	if err := row.Scan(&run.RunID, &run.Question, &queryTime, &answer, &decision,
		&directAnswer, &directRationale, &createdAt); err != nil {
		return nil, err
	}
	run.Answer = answer.String
	run.Decision = types.Decision(decision)
	run.DirectAnswer = directAnswer.String
	run.DirectRationale = directRationale.String
	run.QueryTime = queryTime.Time.UTC()
	run.CreatedAt = createdAt.Time.UTC()
	return &run, nil
}

// GetRun implements Store.
func (s *SQLStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`), runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT route_index, sub_objectives, state, depth,
		answer, rationale, duration_ms, evidence, error
		FROM route_results WHERE run_id = ? ORDER BY route_index`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes of %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec                           RouteRecord
			state                         string
			objectives, evidence          []byte
			answer, rationale, routeError sql.NullString
		)
		if err := rows.Scan(&rec.Index, &objectives, &state, &rec.Depth, &answer, &rationale,
			&rec.DurationMS, &evidence, &routeError); err != nil {
			return nil, fmt.Errorf("failed to scan route of %s: %w", runID, err)
		}
		if err := unmarshalList(objectives, &rec.SubObjectives); err != nil {
			return nil, fmt.Errorf("failed to decode sub-objectives of %s: %w", runID, err)
		}
		if err := unmarshalList(evidence, &rec.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode evidence of %s: %w", runID, err)
		}
		rec.State = types.RouteState(state)
		rec.Answer = answer.String
		rec.Rationale = rationale.String
		rec.Error = routeError.String
		run.Routes = append(run.Routes, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read routes of %s: %w", runID, err)
	}
	return run, nil
}

func unmarshalList(data []byte, out *[]string) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// ListRuns implements Store.
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT `+runColumns+` FROM runs
		ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
