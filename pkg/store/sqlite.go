package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/yurifrl/mizan/pkg/models"
)

// DefaultTimeout bounds each store call when none is configured.
const DefaultTimeout = 5 * time.Second

var tableNames = map[models.Kind]string{
	models.BalanceSheet:    "balance_sheet",
	models.IncomeStatement: "income_statement",
	models.CashFlow:        "cash_flow",
}

const schema = `
CREATE TABLE IF NOT EXISTS companies (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);
CREATE TABLE IF NOT EXISTS comparisons (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id      INTEGER NOT NULL REFERENCES companies(id),
	base_year       INTEGER NOT NULL,
	comparison_year INTEGER NOT NULL,
	UNIQUE (company_id, base_year, comparison_year)
);`

const statementSchema = `
CREATE TABLE IF NOT EXISTS %s (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER NOT NULL REFERENCES companies(id),
	year       INTEGER NOT NULL,
	data       TEXT    NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (company_id, year)
);`

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db      *sqlx.DB
	timeout time.Duration
	logger  *log.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. A zero timeout uses DefaultTimeout.
func OpenSQLite(ctx context.Context, path string, timeout time.Duration, logger *log.Logger) (*SQLite, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", path, timeout.Milliseconds())
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps saves ordered.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, timeout: timeout, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("opened statement store", "path", path)
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stmts := []string{schema}
	for _, kind := range models.Kinds {
		stmts = append(stmts, fmt.Sprintf(statementSchema, tableNames[kind]))
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func tableFor(kind models.Kind) (string, error) {
	table, ok := tableNames[kind]
	if !ok {
		return "", fmt.Errorf("%w: %d", models.ErrUnknownKind, int(kind))
	}
	return table, nil
}

func (s *SQLite) Fetch(ctx context.Context, kind models.Kind, company string, year int) (models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	table, err := tableFor(kind)
	if err != nil {
		return models.Snapshot{}, err
	}

	query := fmt.Sprintf(`
		SELECT t.data
		FROM %s t
		JOIN companies c ON c.id = t.company_id
		WHERE c.name = ? AND t.year = ?`, table)

	var data string
	if err := s.db.GetContext(ctx, &data, query, strings.TrimSpace(company), year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Snapshot{}, fmt.Errorf("%w: %s %s %d", ErrNotFound, kind, company, year)
		}
		return models.Snapshot{}, fmt.Errorf("failed to fetch %s: %w", kind, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	if snap.Static == nil {
		snap.Static = models.Fields{}
	}
	if snap.Custom == nil {
		snap.Custom = []models.CustomField{}
	}
	return snap, nil
}

func (s *SQLite) Save(ctx context.Context, kind models.Kind, company string, year int, snap models.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	company, err = normalizeCompany(company)
	if err != nil {
		return err
	}
	if snap.Custom == nil {
		snap.Custom = []models.CustomField{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	companyID, err := upsertCompany(ctx, tx, company)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (company_id, year, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (company_id, year) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`, table)
	if _, err := tx.ExecContext(ctx, query, companyID, year, string(data)); err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", kind, err)
	}

	s.logger.Debug("saved statement", "kind", kind, "company", company, "year", year)
	return nil
}

func (s *SQLite) Reset(ctx context.Context, kind models.Kind, company string, year int) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE company_id = (SELECT id FROM companies WHERE name = ?)
		  AND year = ?`, table)
	if _, err := s.db.ExecContext(ctx, query, strings.TrimSpace(company), year); err != nil {
		return fmt.Errorf("failed to reset %s: %w", kind, err)
	}
	return nil
}

func (s *SQLite) Companies(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var names []string
	if err := s.db.SelectContext(ctx, &names, `SELECT name FROM companies ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return names, nil
}

// SaveComparison records c as the company's most recent comparison.
func (s *SQLite) SaveComparison(ctx context.Context, c models.Comparison) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := c.Validate(); err != nil {
		return err
	}
	company, _ := normalizeCompany(c.Company)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	companyID, err := upsertCompany(ctx, tx, company)
	if err != nil {
		return err
	}
	// Re-inserting moves the comparison to the front of the list.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM comparisons
		WHERE company_id = ? AND base_year = ? AND comparison_year = ?`,
		companyID, c.BaseYear, c.ComparisonYear); err != nil {
		return fmt.Errorf("failed to save comparison: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comparisons (company_id, base_year, comparison_year)
		VALUES (?, ?, ?)`,
		companyID, c.BaseYear, c.ComparisonYear); err != nil {
		return fmt.Errorf("failed to save comparison: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit comparison: %w", err)
	}
	return nil
}

func (s *SQLite) Comparisons(ctx context.Context, company string) ([]models.Comparison, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []struct {
		Company        string `db:"company"`
		BaseYear       int    `db:"base_year"`
		ComparisonYear int    `db:"comparison_year"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT co.name AS company, c.base_year, c.comparison_year
		FROM comparisons c
		JOIN companies co ON co.id = c.company_id
		WHERE co.name = ?
		ORDER BY c.id DESC`, strings.TrimSpace(company))
	if err != nil {
		return nil, fmt.Errorf("failed to list comparisons: %w", err)
	}

	out := make([]models.Comparison, len(rows))
	for i, r := range rows {
		out[i] = models.Comparison{Company: r.Company, BaseYear: r.BaseYear, ComparisonYear: r.ComparisonYear}
	}
	return out, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func upsertCompany(ctx context.Context, tx *sqlx.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO companies (name) VALUES (?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert company: %w", err)
	}
	return id, nil
}

// Open returns the SQLite store at path, or an in-memory store when path is
// empty or ":memory:".
func Open(ctx context.Context, path string, timeout time.Duration, logger *log.Logger) (Store, error) {
	if path == "" || path == ":memory:" {
		logger.Debug("using in-memory statement store")
		return NewMemory(), nil
	}
	return OpenSQLite(ctx, path, timeout, logger)
}
