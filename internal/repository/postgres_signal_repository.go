package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	pkgpg "SignalDesk/pkg/postgres"
)

const signalColumns = `id, symbol, pair, direction, timeframe, entry_price, sl, tp, tp1, tp2,
	confidence, sentiment, version, status, created_at, last_checked_at, expiry_time, metadata`

// PostgresSignalRepository stores signals in Postgres. Status changes are a
// single conditional UPDATE so concurrent writers cannot both apply.
type PostgresSignalRepository struct {
	db *sql.DB
}

func NewPostgresSignalRepository(pg *pkgpg.Client) *PostgresSignalRepository {
	return &PostgresSignalRepository{db: pg.DB()}
}

// upsertSignalSQL inserts a new signal or refreshes the content of an
// existing one. status and last_checked_at are left to CompareAndSetStatus.
const upsertSignalSQL = `
	INSERT INTO signals (` + signalColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (id) DO UPDATE SET
		symbol = EXCLUDED.symbol,
		pair = EXCLUDED.pair,
		direction = EXCLUDED.direction,
		timeframe = EXCLUDED.timeframe,
		entry_price = EXCLUDED.entry_price,
		sl = EXCLUDED.sl,
		tp = EXCLUDED.tp,
		tp1 = EXCLUDED.tp1,
		tp2 = EXCLUDED.tp2,
		confidence = EXCLUDED.confidence,
		sentiment = EXCLUDED.sentiment,
		version = EXCLUDED.version,
		expiry_time = EXCLUDED.expiry_time,
		metadata = signals.metadata || EXCLUDED.metadata`

func (r *PostgresSignalRepository) Upsert(ctx context.Context, s *models.Signal) error {
	meta, err := encodeMeta(s.Metadata)
	if err != nil {
		return err
	}
	var expiry sql.NullTime
	if s.ExpiryTime != nil {
		expiry = sql.NullTime{Time: *s.ExpiryTime, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, upsertSignalSQL,
		s.ID, s.Symbol, s.Pair, string(s.Direction), s.Timeframe, s.EntryPrice, s.StopLoss, s.TakeProfit,
		s.TP1, s.TP2, s.Confidence, s.Sentiment, s.Version, string(s.Status), s.CreatedAt.UTC(),
		s.LastCheckedAt.UTC(), expiry, meta,
	)
	if err != nil {
		return fmt.Errorf("upsert signal %s: %w", s.ID, err)
	}
	return nil
}

func (r *PostgresSignalRepository) Get(ctx context.Context, id string) (*models.Signal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = $1`, id)
	s, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrSignalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", id, err)
	}
	return s, nil
}

func (r *PostgresSignalRepository) ListByStatus(ctx context.Context, statuses []models.Status, createdBefore time.Time) ([]*models.Signal, error) {
	q := `SELECT ` + signalColumns + ` FROM signals WHERE status = ANY($1)`
	args := []interface{}{pq.Array(statusStrings(statuses))}
	if !createdBefore.IsZero() {
		q += ` AND created_at < $2`
		args = append(args, createdBefore.UTC())
	}
	q += ` ORDER BY created_at ASC`
	return r.query(ctx, q, args...)
}

func (r *PostgresSignalRepository) ListActive(ctx context.Context, symbol string) ([]*models.Signal, error) {
	active := pq.Array(statusStrings([]models.Status{models.StatusWaiting, models.StatusActive, models.StatusEntryHit}))
	if symbol == "" {
		return r.query(ctx, `SELECT `+signalColumns+` FROM signals WHERE status = ANY($1) ORDER BY created_at ASC`, active)
	}
	return r.query(ctx, `SELECT `+signalColumns+` FROM signals WHERE status = ANY($1) AND symbol = $2 ORDER BY created_at ASC`, active, symbol)
}

func (r *PostgresSignalRepository) CompareAndSetStatus(ctx context.Context, id string, from []models.Status, to models.Status, at time.Time, meta map[string]interface{}) (bool, error) {
	patch, err := encodeMeta(meta)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE signals
		SET status = $2, last_checked_at = $3, metadata = metadata || $4::jsonb
		WHERE id = $1 AND status = ANY($5)`,
		id, string(to), at.UTC(), patch, pq.Array(statusStrings(from)),
	)
	if err != nil {
		return false, fmt.Errorf("update status %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status %s: %w", id, err)
	}
	if n > 0 {
		return true, nil
	}
	if err := r.exists(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PostgresSignalRepository) MergeMetadata(ctx context.Context, id string, meta map[string]interface{}) error {
	patch, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE signals SET metadata = metadata || $2::jsonb WHERE id = $1`, id, patch)
	if err != nil {
		return fmt.Errorf("merge metadata %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domrepo.ErrSignalNotFound
	}
	return nil
}

func (r *PostgresSignalRepository) Health(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresSignalRepository) exists(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM signals WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domrepo.ErrSignalNotFound
	}
	return err
}

func (r *PostgresSignalRepository) query(ctx context.Context, q string, args ...interface{}) ([]*models.Signal, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []*models.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*models.Signal, error) {
	var (
		s         models.Signal
		direction string
		status    string
		expiry    sql.NullTime
		meta      []byte
	)
	err := row.Scan(&s.ID, &s.Symbol, &s.Pair, &direction, &s.Timeframe, &s.EntryPrice, &s.StopLoss,
		&s.TakeProfit, &s.TP1, &s.TP2, &s.Confidence, &s.Sentiment, &s.Version, &status,
		&s.CreatedAt, &s.LastCheckedAt, &expiry, &meta)
	if err != nil {
		return nil, err
	}
	s.Direction = models.Direction(direction)
	s.Status = models.Status(status)
	if expiry.Valid {
		t := expiry.Time
		s.ExpiryTime = &t
	}
	s.Metadata = map[string]interface{}{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &s, nil
}

func encodeMeta(meta map[string]interface{}) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func statusStrings(ss []models.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

var _ domrepo.SignalRepository = (*PostgresSignalRepository)(nil)
