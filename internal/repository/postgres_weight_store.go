package repository

import (
	"context"
	"database/sql"
	"fmt"

	domrepo "SignalDesk/internal/domain/repository"
	pkgpg "SignalDesk/pkg/postgres"
)

// PostgresWeightStore reads tunable agent parameters from dynamic_weights.
type PostgresWeightStore struct {
	db *sql.DB
}

func NewPostgresWeightStore(pg *pkgpg.Client) *PostgresWeightStore {
	return &PostgresWeightStore{db: pg.DB()}
}

func (s *PostgresWeightStore) LoadWeights(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM dynamic_weights`)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var v float64
		if err := rows.Scan(&name, &v); err != nil {
			return nil, fmt.Errorf("scan weight: %w", err)
		}
		out[name] = v
	}
	return out, rows.Err()
}

// StaticWeightStore serves a fixed set of weights, typically from config.
type StaticWeightStore map[string]float64

func (s StaticWeightStore) LoadWeights(context.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

var (
	_ domrepo.WeightStore = (*PostgresWeightStore)(nil)
	_ domrepo.WeightStore = StaticWeightStore{}
)
