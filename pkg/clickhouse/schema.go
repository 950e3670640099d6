package clickhouse

import "fmt"

// Table names inside the configured database.
const (
	TableCandles1m  = "candles_1m"
	TableCandles5m  = "candles_5m"
	TableCandles15m = "candles_15m"
	TableCandles1h  = "candles_1h"
	TableDecisions  = "decisions"
)

// Schema returns the DDL for the candle tables the scanner reads and the
// decision journal.
func Schema(database string) []string {
	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)}
	for _, t := range []string{TableCandles1m, TableCandles5m, TableCandles15m, TableCandles1h} {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    bucket DateTime64(3, 'UTC'),
    symbol LowCardinality(String),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    vol Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, bucket)`, database, t))
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    ts DateTime64(3, 'UTC'),
    symbol LowCardinality(String),
    action LowCardinality(String),
    decision LowCardinality(String),
    confidence UInt8,
    should_emit UInt8,
    ghost UInt8,
    sniper_reason LowCardinality(String),
    signal_id String,
    reasoning String,
    votes String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, ts)
TTL toDateTime(ts) + INTERVAL 180 DAY`, database, TableDecisions))
	return stmts
}
