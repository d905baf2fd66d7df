package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `
CREATE TABLE IF NOT EXISTS quote_samples (
    observed_at TIMESTAMPTZ    NOT NULL,
    currency    TEXT           NOT NULL,
    bank        TEXT           NOT NULL,
    buy_rate    NUMERIC(18, 3) NOT NULL,
    sell_rate   NUMERIC(18, 3) NOT NULL,
    source      TEXT           NOT NULL,
    created_at  TIMESTAMPTZ    NOT NULL DEFAULT now(),
    PRIMARY KEY (currency, bank, observed_at)
);
CREATE INDEX IF NOT EXISTS quote_samples_currency_observed_idx
    ON quote_samples (currency, observed_at);
CREATE TABLE IF NOT EXISTS rate_alerts (
    id            BIGSERIAL PRIMARY KEY,
    currency      TEXT           NOT NULL,
    side          TEXT           NOT NULL,
    bank          TEXT           NOT NULL,
    previous_rate NUMERIC(18, 3) NOT NULL,
    current_rate  NUMERIC(18, 3) NOT NULL,
    change_pct    NUMERIC(12, 4) NOT NULL,
    threshold_pct NUMERIC(12, 4) NOT NULL,
    channels      TEXT[]         NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ    NOT NULL DEFAULT now()
);`

	upsertQuoteSampleSQL = `INSERT INTO quote_samples (
        observed_at,
        currency,
        bank,
        buy_rate,
        sell_rate,
        source
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (currency, bank, observed_at) DO UPDATE
    SET
        buy_rate  = EXCLUDED.buy_rate,
        sell_rate = EXCLUDED.sell_rate,
        source    = EXCLUDED.source;`

	listQuotesBetweenSQL = `SELECT
        observed_at,
        currency,
        bank,
        buy_rate::text,
        sell_rate::text,
        source,
        created_at
    FROM quote_samples
    WHERE currency = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at, bank;`

	listRecentQuotesSQL = `SELECT
        observed_at,
        currency,
        bank,
        buy_rate::text,
        sell_rate::text,
        source,
        created_at
    FROM quote_samples
    WHERE currency = $1
    ORDER BY observed_at DESC, bank
    LIMIT $2;`

	countQuotesSQL = `SELECT COUNT(*) FROM quote_samples;`

	insertAlertSQL = `INSERT INTO rate_alerts (
        currency,
        side,
        bank,
        previous_rate,
        current_rate,
        change_pct,
        threshold_pct,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        currency,
        side,
        bank,
        previous_rate::text,
        current_rate::text,
        change_pct::text,
        threshold_pct::text,
        channels,
        created_at
    FROM rate_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// QuoteArchive persists observed bank quotes.
type QuoteArchive interface {
	UpsertSamples(ctx context.Context, samples []QuoteSample) error
	ListQuotesBetween(ctx context.Context, currency string, from, to time.Time) ([]QuoteSample, error)
	ListRecent(ctx context.Context, currency string, limit int) ([]QuoteSample, error)
	CountQuotes(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to archived quotes and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the archive tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the lock dies with the session anyway if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertSamples writes samples in one batch. Re-archiving the same
// (currency, bank, instant) overwrites the rates.
func (s *Store) UpsertSamples(ctx context.Context, samples []QuoteSample) error {
	if len(samples) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, sample := range samples {
		batch.Queue(upsertQuoteSampleSQL,
			sample.ObservedAt,
			sample.Currency,
			sample.Bank,
			sample.Buy.String(),
			sample.Sell.String(),
			sample.Source,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range samples {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert quote sample %d/%d: %w", i+1, len(samples), err)
		}
	}
	return nil
}

// ListQuotesBetween lists samples of currency within [from, to) ordered by time.
func (s *Store) ListQuotesBetween(ctx context.Context, currency string, from, to time.Time) ([]QuoteSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listQuotesBetweenSQL, currency, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list quotes between: %w", queryErr)
	}
	return collectSamples(rows, 0)
}

// ListRecent lists the most recent samples of currency, newest first.
func (s *Store) ListRecent(ctx context.Context, currency string, limit int) ([]QuoteSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentQuotesSQL, currency, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent quotes: %w", queryErr)
	}
	return collectSamples(rows, limit)
}

// CountQuotes counts stored samples.
func (s *Store) CountQuotes(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countQuotesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count quotes: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Currency,
		alert.Side,
		alert.Bank,
		alert.Previous.String(),
		alert.Current.String(),
		alert.ChangePct.StringFixed(4),
		alert.ThresholdPct.StringFixed(4),
		channels,
	)
	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var previousStr, currentStr, changeStr, thresholdStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.Currency,
			&rec.Side,
			&rec.Bank,
			&previousStr,
			&currentStr,
			&changeStr,
			&thresholdStr,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		values, convErr := parseDecimals(previousStr, currentStr, changeStr, thresholdStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse alert %d: %w", rec.ID, convErr)
		}
		rec.Previous, rec.Current, rec.ChangePct, rec.ThresholdPct = values[0], values[1], values[2], values[3]
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectSamples(rows pgx.Rows, capacity int) ([]QuoteSample, error) {
	defer rows.Close()

	samples := make([]QuoteSample, 0, capacity)
	for rows.Next() {
		sample, scanErr := scanQuoteSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanQuoteSample(rows pgx.Rows) (QuoteSample, error) {
	var (
		sample          QuoteSample
		buyStr, sellStr string
	)
	if err := rows.Scan(
		&sample.ObservedAt,
		&sample.Currency,
		&sample.Bank,
		&buyStr,
		&sellStr,
		&sample.Source,
		&sample.CreatedAt,
	); err != nil {
		return QuoteSample{}, err
	}

	values, err := parseDecimals(buyStr, sellStr)
	if err != nil {
		return QuoteSample{}, fmt.Errorf("parse quote %s/%s: %w", sample.Currency, sample.Bank, err)
	}
	sample.Buy, sample.Sell = values[0], values[1]
	return sample, nil
}

func parseDecimals(raw ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(raw))
	for i, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
