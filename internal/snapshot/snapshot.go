package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"referral-process-measures/internal/measures"
)

// Source is the read side of a built measure store.
type Source interface {
	AsOf() time.Time
	Months() []time.Time
	Table(month time.Time) *measures.Table
	Distribution(month time.Time) *measures.Distribution
	UsageResults(month time.Time, clinic string) []measures.UsageTestResult
}

type Config struct {
	URL     string
	Schema  string
	Tag     string
	Timeout time.Duration
}

// MeasureRow is one flattened month-table cell.
type MeasureRow struct {
	Month   time.Time
	Clinic  string
	Measure string
	Kind    string
	Number  sql.NullFloat64
	Label   sql.NullString
}

// Rows flattens every month table into cells, ordered by month, clinic and measure.
func Rows(src Source) []MeasureRow {
	rows := make([]MeasureRow, 0)
	for _, month := range src.Months() {
		table := src.Table(month)
		if table == nil {
			continue
		}
		columns := table.Columns()
		for _, clinic := range table.Keys() {
			row := table.Row(clinic)
			for _, name := range columns {
				v, ok := row[name]
				if !ok {
					continue
				}
				entry := MeasureRow{Month: month, Clinic: clinic, Measure: name}
				switch v.Kind {
				case measures.KindCount:
					entry.Kind = "count"
				case measures.KindRate:
					entry.Kind = "rate"
				default:
					entry.Kind = "label"
				}
				if f, ok := v.Float(); ok {
					entry.Number = sql.NullFloat64{Float64: f, Valid: true}
				} else {
					entry.Label = nullString(v.Label)
				}
				rows = append(rows, entry)
			}
		}
	}
	return rows
}

// Save writes the store as one run and returns the run id.
func Save(ctx context.Context, src Source, cfg Config) (string, error) {
	schema, err := sanitizeSchema(cfg.Schema)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return "", errors.New("database URL missing; set DATABASE_URL")
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return "", err
	}
	defer db.Close()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return "", err
	}

	if err := ensureSchema(ctx, db, schema); err != nil {
		return "", err
	}

	return storeTx(ctx, db, src, schema, cfg.Tag)
}

func storeTx(ctx context.Context, db *sql.DB, src Source, schema string, tag string) (string, error) {
	runID := uuid.New()
	months := src.Months()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.measure_runs (id, as_of, months, run_tag)
		VALUES ($1,$2,$3,$4)`, schema),
		runID,
		src.AsOf(),
		len(months),
		nullString(tag),
	)
	if err != nil {
		return "", err
	}

	insertMeasureSQL := fmt.Sprintf(`
		INSERT INTO %s.clinic_measures (
			id, run_id, month, clinic, measure, kind, number_value, label_value
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8
		)`, schema)
	for _, row := range Rows(src) {
		_, err = tx.ExecContext(ctx, insertMeasureSQL,
			uuid.New(),
			runID,
			row.Month,
			row.Clinic,
			row.Measure,
			row.Kind,
			row.Number,
			row.Label,
		)
		if err != nil {
			return "", err
		}
	}

	insertDistributionSQL := fmt.Sprintf(`
		INSERT INTO %s.clinic_distributions (
			id, run_id, month, clinic, dimension, category, priority, referral_count
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8
		)`, schema)
	for _, month := range months {
		for _, entry := range src.Distribution(month).Entries() {
			_, err = tx.ExecContext(ctx, insertDistributionSQL,
				uuid.New(),
				runID,
				month,
				entry.Clinic,
				entry.Dimension,
				entry.Category,
				nullString(entry.Priority),
				entry.Count,
			)
			if err != nil {
				return "", err
			}
		}
	}

	insertUsageSQL := fmt.Sprintf(`
		INSERT INTO %s.usage_results (
			id, run_id, month, clinic, milestone, title, points, result, score
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9
		)`, schema)
	for _, month := range months {
		table := src.Table(month)
		if table == nil {
			continue
		}
		for _, clinic := range table.Keys() {
			for _, r := range src.UsageResults(month, clinic) {
				_, err = tx.ExecContext(ctx, insertUsageSQL,
					uuid.New(),
					runID,
					month,
					clinic,
					r.Milestone,
					r.Title,
					r.Points,
					r.Result,
					r.Score,
				)
				if err != nil {
					return "", err
				}
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return runID.String(), nil
}

func ensureSchema(ctx context.Context, db *sql.DB, schema string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
		return err
	}

	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.measure_runs (
			id uuid PRIMARY KEY,
			as_of date NOT NULL,
			months integer NOT NULL,
			run_tag text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.clinic_measures (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.measure_runs(id) ON DELETE CASCADE,
			month date NOT NULL,
			clinic text NOT NULL,
			measure text NOT NULL,
			kind text NOT NULL,
			number_value double precision,
			label_value text
		)`, schema, schema),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.clinic_distributions (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.measure_runs(id) ON DELETE CASCADE,
			month date NOT NULL,
			clinic text NOT NULL,
			dimension text NOT NULL,
			category text NOT NULL,
			priority text,
			referral_count integer NOT NULL
		)`, schema, schema),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.usage_results (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.measure_runs(id) ON DELETE CASCADE,
			month date NOT NULL,
			clinic text NOT NULL,
			milestone text NOT NULL,
			title text NOT NULL,
			points integer NOT NULL,
			result integer NOT NULL,
			score numeric(8,2) NOT NULL
		)`, schema, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_clinic_measures_lookup_idx ON %s.clinic_measures (run_id, month, clinic)`, schema, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_clinic_distributions_run_idx ON %s.clinic_distributions (run_id)`, schema, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_usage_results_run_idx ON %s.usage_results (run_id)`, schema, schema),
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func sanitizeSchema(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("db schema is required")
	}
	if !schemaPattern.MatchString(value) {
		return "", fmt.Errorf("invalid schema name: %s", value)
	}
	return value, nil
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
