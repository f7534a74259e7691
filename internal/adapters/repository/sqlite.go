package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/pkg/metrics"
)

// SQLiteStore persists the fact log in a single SQLite file with WAL enabled.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the store at dir/<file>.
func OpenSQLite(dir string, opts ...Option) (*SQLiteStore, error) {
	o := sqliteOptions{fileName: "tally.db", busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		filepath.Join(dir, o.fileName), o.busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS facts (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			kind            TEXT NOT NULL,
			nominee_id      TEXT NOT NULL,
			subcategory_id  TEXT NOT NULL,
			role            TEXT NOT NULL,
			txn_id          TEXT UNIQUE,
			agc_backed      BOOLEAN NOT NULL DEFAULT 0,
			weight_eligible BOOLEAN NOT NULL DEFAULT 0,
			delta           INTEGER NOT NULL,
			retracts_id     TEXT UNIQUE,
			recorded_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_nominee ON facts(nominee_id)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_subcategory ON facts(subcategory_id)`,

		`CREATE TABLE IF NOT EXISTS nominees (
			id             TEXT PRIMARY KEY,
			subcategory_id TEXT NOT NULL,
			name           TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS closures (
			subcategory_id TEXT PRIMARY KEY,
			winners        TEXT NOT NULL,
			closed_at      INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

const factColumns = `seq, id, kind, nominee_id, subcategory_id, role, txn_id, agc_backed, weight_eligible, delta, retracts_id, recorded_at`

func (s *SQLiteStore) Append(ctx context.Context, f *model.Fact) error {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("append", sinceMs(start)) }()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (id, kind, nominee_id, subcategory_id, role, txn_id, agc_backed, weight_eligible, delta, retracts_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, string(f.Kind), f.NomineeID, f.SubcategoryID, string(f.Role),
		nullable(f.TxnID), f.AGCBacked, f.WeightEligible, f.Delta,
		nullable(f.RetractsID), f.RecordedAt.UnixNano(),
	)
	if err != nil {
		return classifyConstraint(err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read fact seq: %w", err)
	}
	f.Seq = seq
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, factID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, factID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Fact(ctx context.Context, id string) (model.Fact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts WHERE id = ?`, id)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Fact{}, ErrNotFound
	}
	return f, err
}

func (s *SQLiteStore) FactByTxn(ctx context.Context, txnID string) (model.Fact, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts WHERE txn_id = ?`, txnID)
	return optionalFact(scanFact(row))
}

func (s *SQLiteStore) RetractionOf(ctx context.Context, factID string) (model.Fact, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts WHERE retracts_id = ?`, factID)
	return optionalFact(scanFact(row))
}

func (s *SQLiteStore) Facts(ctx context.Context, afterSeq int64) ([]model.Fact, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("scan", sinceMs(start)) }()

	rows, err := s.db.QueryContext(ctx, `SELECT `+factColumns+` FROM facts WHERE seq > ? ORDER BY seq`, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) SaveNominee(ctx context.Context, n model.Nominee) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nominees (id, subcategory_id, name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name`,
		n.ID, n.SubcategoryID, n.Name, n.CreatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) Nominees(ctx context.Context) ([]model.Nominee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subcategory_id, name, created_at FROM nominees ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Nominee
	for rows.Next() {
		var n model.Nominee
		var created int64
		if err := rows.Scan(&n.ID, &n.SubcategoryID, &n.Name, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveClosure(ctx context.Context, c model.Closure) error {
	winners, err := json.Marshal(c.Winners)
	if err != nil {
		return fmt.Errorf("encode winners: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO closures (subcategory_id, winners, closed_at) VALUES (?, ?, ?)`,
		c.SubcategoryID, string(winners), c.ClosedAt.UnixNano(),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrClosureExists
	}
	return err
}

func (s *SQLiteStore) Closure(ctx context.Context, subcategoryID string) (model.Closure, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subcategory_id, winners, closed_at FROM closures WHERE subcategory_id = ?`, subcategoryID)
	c, err := scanClosure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Closure{}, false, nil
	}
	if err != nil {
		return model.Closure{}, false, err
	}
	return c, true, nil
}

func (s *SQLiteStore) Closures(ctx context.Context) ([]model.Closure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subcategory_id, winners, closed_at FROM closures ORDER BY subcategory_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Closure
	for rows.Next() {
		c, err := scanClosure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close cleanly shuts down the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFact(sc scanner) (model.Fact, error) {
	var f model.Fact
	var kind, role string
	var txn, retracts sql.NullString
	var recorded int64
	err := sc.Scan(&f.Seq, &f.ID, &kind, &f.NomineeID, &f.SubcategoryID, &role,
		&txn, &f.AGCBacked, &f.WeightEligible, &f.Delta, &retracts, &recorded)
	if err != nil {
		return model.Fact{}, err
	}
	f.Kind = model.FactKind(kind)
	f.Role = model.VoterRole(role)
	f.TxnID = txn.String
	f.RetractsID = retracts.String
	f.RecordedAt = time.Unix(0, recorded).UTC()
	return f, nil
}

func scanClosure(sc scanner) (model.Closure, error) {
	var c model.Closure
	var winners string
	var closed int64
	if err := sc.Scan(&c.SubcategoryID, &winners, &closed); err != nil {
		return model.Closure{}, err
	}
	if err := json.Unmarshal([]byte(winners), &c.Winners); err != nil {
		return model.Closure{}, fmt.Errorf("decode winners: %w", err)
	}
	c.ClosedAt = time.Unix(0, closed).UTC()
	return c, nil
}

func optionalFact(f model.Fact, err error) (model.Fact, bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return model.Fact{}, false, nil
	}
	if err != nil {
		return model.Fact{}, false, err
	}
	return f, true, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// classifyConstraint maps unique index violations on the fact table to store sentinels.
func classifyConstraint(err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "facts.txn_id"):
		return ErrDuplicateTxn
	case strings.Contains(msg, "facts.retracts_id"):
		return ErrAlreadyRetracted
	case strings.Contains(msg, "facts.id"):
		return ErrDuplicateFact
	}
	return err
}
