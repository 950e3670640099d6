package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	pkgch "SignalDesk/pkg/clickhouse"
)

// CHDecisionJournal appends every pipeline outcome to ClickHouse. Ghost
// decisions are kept so the shadow threshold can be calibrated later.
type CHDecisionJournal struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

func NewCHDecisionJournal(ch *pkgch.Client) *CHDecisionJournal {
	return &CHDecisionJournal{
		db:    ch.DB(),
		table: ch.Database() + "." + pkgch.TableDecisions,
		now:   time.Now,
	}
}

func (j *CHDecisionJournal) Record(ctx context.Context, r *models.PipelineResult) error {
	args, err := journalRow(r, j.now())
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s
        (ts, symbol, action, decision, confidence, should_emit, ghost, sniper_reason, signal_id, reasoning, votes)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, j.table)
	if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("journal decision: %w", err)
	}
	return nil
}

func journalRow(r *models.PipelineResult, fallback time.Time) ([]interface{}, error) {
	votes, err := json.Marshal(r.Votes)
	if err != nil {
		return nil, fmt.Errorf("marshal votes: %w", err)
	}
	ts := r.Consensus.DecidedAt
	if ts.IsZero() {
		ts = fallback
	}
	var sniperReason, signalID string
	if r.Sniper != nil {
		sniperReason = r.Sniper.Reason
	}
	if r.Signal != nil {
		signalID = r.Signal.ID
	}
	return []interface{}{
		ts.UTC(),
		r.Symbol,
		string(r.Action),
		string(r.Consensus.Decision),
		uint8(r.Confidence),
		boolByte(r.ShouldEmitSignal),
		boolByte(r.IsGhostSignal),
		sniperReason,
		signalID,
		r.Reasoning,
		string(votes),
	}, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// NopDecisionJournal drops every record. Used when ClickHouse is not configured.
type NopDecisionJournal struct{}

func (NopDecisionJournal) Record(context.Context, *models.PipelineResult) error { return nil }

var (
	_ domrepo.DecisionJournal = (*CHDecisionJournal)(nil)
	_ domrepo.DecisionJournal = NopDecisionJournal{}
)
