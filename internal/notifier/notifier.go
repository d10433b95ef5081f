// Package notifier defines the outbound alert sink (C12, spec.md §6) and
// a log-based reference implementation. The spec requires only that the
// core deliver an alert synchronously from the evaluator; formatting and
// transport beyond that are external.
package notifier

import (
	"log"

	"github.com/dexsentinel/dexsentinel/internal/market"
)

// Level grades how urgent an alert is.
type Level string

const (
	LevelStrong Level = "strong"
	LevelNormal Level = "normal"
)

// Alert is the opaque record the evaluator hands to a Notifier (spec.md
// §6: "a single (level, chain, market_type, address, token0, token1,
// target_side, headline, body) record").
type Alert struct {
	ID         string
	Level      Level
	Chain      market.Chain
	MarketType market.Type
	Address    string
	Token0     string
	Token1     string
	TargetSide string
	Headline   string
	Body       string
}

// Notifier delivers an Alert. Implementations must be safe to call
// synchronously from the evaluator's hot path.
type Notifier interface {
	Notify(a Alert) error
}

// LogNotifier writes alerts through the standard logger, prefixed per the
// chain's convention (spec.md §2.2/ambient logging style).
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier builds a LogNotifier using logger, or the default
// package logger with an "[alert]" prefix if logger is nil.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(log.Writer(), "[alert] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(a Alert) error {
	n.logger.Printf("%s %s/%s %s %s | %s | %s", a.Level, a.Chain, a.MarketType, a.Address, a.TargetSide, a.Headline, a.Body)
	return nil
}
