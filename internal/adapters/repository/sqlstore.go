package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/internal/domain/motion"
	"github.com/okian/humancheck/internal/domain/types"
	"github.com/okian/humancheck/pkg/logger"
	"github.com/okian/humancheck/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const verdictColumns = `session_id, source, prediction, confidence, human_probability,
	bot_probability, features, samples, fallback, reason, analyzed_at`

// SQLStore keeps verdict history and labeled examples in SQLite.
type SQLStore struct {
	db           *sql.DB
	log          logger.Logger
	maxOpenConns int
}

// NewSQLStore opens the database at path and migrates it to the latest schema.
func NewSQLStore(ctx context.Context, path string, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{maxOpenConns: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("sql_store")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	s.db = db

	version, err := s.migrateUp()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info(ctx, "sqlite store ready",
		logger.String("path", path),
		logger.Int("schema_version", int(version)))
	return s, nil
}

// migrateUp applies pending migrations and returns the resulting schema version.
func (s *SQLStore) migrateUp() (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("%w: source: %w", ErrMigrate, err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("%w: driver: %w", ErrMigrate, err)
	}
	// m is not closed: closing it would close the shared *sql.DB.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	m.Log = &migrateLogger{log: s.log}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("%w: up: %w", ErrMigrate, err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("%w: version: %w", ErrMigrate, err)
	}
	if dirty {
		return 0, fmt.Errorf("%w: schema version %d is dirty", ErrMigrate, version)
	}
	return version, nil
}

type migrateLogger struct {
	log logger.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(context.Background(), "migrate", logger.String("message", fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool { return false }

// Record upserts the verdict of a session.
func (s *SQLStore) Record(ctx context.Context, v model.Verdict) error {
	if v.SessionID == "" {
		return ErrInvalidVerdict
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	var fv sql.NullString
	if v.Features != nil {
		raw, err := json.Marshal(v.Features)
		if err != nil {
			return fmt.Errorf("encode features: %w", err)
		}
		fv = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verdicts (`+verdictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			source = excluded.source,
			prediction = excluded.prediction,
			confidence = excluded.confidence,
			human_probability = excluded.human_probability,
			bot_probability = excluded.bot_probability,
			features = excluded.features,
			samples = excluded.samples,
			fallback = excluded.fallback,
			reason = excluded.reason,
			analyzed_at = excluded.analyzed_at`,
		v.SessionID, string(v.Source), string(v.Verdict), v.Confidence, v.HumanProbability,
		v.BotProbability, fv, v.Samples, v.Fallback, v.Reason, v.AnalyzedAt.UnixNano())
	if err != nil {
		metrics.RecordErrorByComponent("repository", "sql_write")
		return fmt.Errorf("record verdict %s: %w", v.SessionID, err)
	}
	return nil
}

// Get returns the stored verdict of a session.
func (s *SQLStore) Get(ctx context.Context, sessionID string) (model.Verdict, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	row := s.db.QueryRowContext(ctx, `SELECT `+verdictColumns+` FROM verdicts WHERE session_id = ?`, sessionID)
	v, err := scanVerdict(row)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Verdict{}, ErrNotFound
	}
	if err != nil {
		return model.Verdict{}, fmt.Errorf("get verdict %s: %w", sessionID, err)
	}
	return v, nil
}

// Rank returns the ranking row of one session.
func (s *SQLStore) Rank(ctx context.Context, sessionID string) (types.Suspect, error) {
	v, err := s.Get(ctx, sessionID)
	if err != nil {
		return types.Suspect{}, err
	}
	var ahead int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verdicts
		WHERE bot_probability > ? OR (bot_probability = ? AND session_id < ?)`,
		v.BotProbability, v.BotProbability, v.SessionID).Scan(&ahead)
	if err != nil {
		return types.Suspect{}, fmt.Errorf("rank %s: %w", sessionID, err)
	}
	return suspect(ahead+1, v), nil
}

// TopSuspects returns the n most bot-like sessions.
func (s *SQLStore) TopSuspects(ctx context.Context, n int) ([]types.Suspect, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+verdictColumns+` FROM verdicts
		ORDER BY bot_probability DESC, session_id ASC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("top suspects: %w", err)
	}
	defer rows.Close()

	var out []types.Suspect
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("top suspects: %w", err)
		}
		out = append(out, suspect(len(out)+1, v))
	}
	return out, rows.Err()
}

// Summary returns verdict counts.
func (s *SQLStore) Summary(ctx context.Context) (types.Summary, error) {
	var sum types.Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(prediction = 'human'), 0),
			COALESCE(SUM(prediction = 'bot'), 0),
			COALESCE(SUM(fallback), 0)
		FROM verdicts`).Scan(&sum.Total, &sum.Human, &sum.Bot, &sum.Fallbacks)
	if err != nil {
		return types.Summary{}, fmt.Errorf("summary: %w", err)
	}
	return sum, nil
}

// Count returns the number of stored verdicts, or 0 if the query fails.
func (s *SQLStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verdicts`).Scan(&n); err != nil {
		s.log.Warn(ctx, "count verdicts", logger.Error(err))
		return 0
	}
	metrics.UpdateStoreVerdicts(n)
	return n
}

// AddExamples appends labeled training rows in one transaction.
func (s *SQLStore) AddExamples(ctx context.Context, examples []classifier.LabeledExample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add examples: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO labeled_examples (label, features, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("add examples: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for i, ex := range examples {
		if !ex.Label.Valid() {
			return fmt.Errorf("example %d: %w", i, classifier.ErrUnknownLabel)
		}
		raw, err := json.Marshal(ex.Features)
		if err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, string(ex.Label), string(raw), now); err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Examples returns every stored training row in insertion order.
func (s *SQLStore) Examples(ctx context.Context) ([]classifier.LabeledExample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, features FROM labeled_examples ORDER BY example_id`)
	if err != nil {
		return nil, fmt.Errorf("examples: %w", err)
	}
	defer rows.Close()

	var out []classifier.LabeledExample
	for rows.Next() {
		var label, raw string
		if err := rows.Scan(&label, &raw); err != nil {
			return nil, fmt.Errorf("examples: %w", err)
		}
		l, err := classifier.ParseLabel(label)
		if err != nil {
			return nil, err
		}
		var fv features.Vector
		if err := json.Unmarshal([]byte(raw), &fv); err != nil {
			return nil, fmt.Errorf("examples: decode features: %w", err)
		}
		out = append(out, classifier.LabeledExample{Features: fv, Label: l})
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVerdict(sc scanner) (model.Verdict, error) {
	var (
		v          model.Verdict
		source     string
		prediction string
		fv         sql.NullString
		analyzedAt int64
	)
	err := sc.Scan(&v.SessionID, &source, &prediction, &v.Confidence, &v.HumanProbability,
		&v.BotProbability, &fv, &v.Samples, &v.Fallback, &v.Reason, &analyzedAt)
	if err != nil {
		return model.Verdict{}, err
	}
	v.Source = motion.Source(source)
	v.Verdict = classifier.Label(prediction)
	v.AnalyzedAt = time.Unix(0, analyzedAt).UTC()
	if fv.Valid {
		var vec features.Vector
		if err := json.Unmarshal([]byte(fv.String), &vec); err != nil {
			return model.Verdict{}, fmt.Errorf("decode features: %w", err)
		}
		v.Features = &vec
	}
	return v, nil
}
