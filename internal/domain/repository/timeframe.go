package repository

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF5m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// WireLabel maps a candle timeframe to the signal wire schema label.
func (tf Timeframe) WireLabel() string {
	switch tf {
	case TF1m:
		return "M1"
	case TF5m:
		return "M5"
	case TF15m:
		return "M15"
	case TF1h:
		return "H1"
	default:
		return "H1"
	}
}
