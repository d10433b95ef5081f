// Package alert implements AlertEvaluator (C11, spec.md §4.7): combines
// WindowStore and FdvTracker signals into a graded verdict
// and dispatches the result to a Notifier.
package alert

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dexsentinel/dexsentinel/internal/fdv"
	"github.com/dexsentinel/dexsentinel/internal/market"
	"github.com/dexsentinel/dexsentinel/internal/notifier"
	"github.com/dexsentinel/dexsentinel/internal/window"
)

// Thresholds are the tunable inputs to the evaluator (spec.md §6 env
// vars BUY_VOL_1M_USD, BUY_TXS_1M, VOLUME_MULTIPLIER, FDV_MULTIPLIER,
// WHALE_SINGLE_BUY_USD, WHALE_LIQUIDITY_RATIO).
type Thresholds struct {
	BuyVol1mUsd         float64
	BuyTxs1m            int
	VolumeMultiplier    float64
	FdvMultiplier       float64
	WhaleSingleBuyUsd   float64
	WhaleLiquidityRatio float64
	MinLiqUsd           float64
}

// DefaultThresholds mirrors the spec's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BuyVol1mUsd:         1000,
		BuyTxs1m:            3,
		VolumeMultiplier:    3,
		FdvMultiplier:       1.5,
		WhaleSingleBuyUsd:   5000,
		WhaleLiquidityRatio: 0.03,
		MinLiqUsd:           5000,
	}
}

// Verdict is the evaluator's output grade.
type Verdict string

const (
	VerdictStrong Verdict = "strong"
	VerdictNormal Verdict = "normal"
	VerdictNone   Verdict = "none"
)

// TradeInput is the per-trade-event input described in spec.md §4.7.
type TradeInput struct {
	Key            market.Key
	Token0, Token1 string
	TargetSide     string // "token0" or "token1"
	LastTradeUsd   float64
	IsBuy          bool
	LastMintUsd    float64 // 0 if none this event
	LiquidityUsd   float64
	TotalSupply    float64 // decimal-normalized
	PriceUsd       float64 // current target-token USD price, 0 if unknown
}

// Evaluation is the full derived-signal breakdown, useful for logging
// and tests independent of the formatted message.
type Evaluation struct {
	BuyMeetsVolume bool
	VolumeBurst    bool
	VolumeRatio    float64
	FdvBurst       bool
	FdvRatio       float64
	Whale          bool
	Score          int
	Verdict        Verdict
}

// Evaluator combines WindowStore, FdvTracker, and Thresholds into a
// verdict and dispatches to a Notifier (spec.md §9: explicit
// collaborators constructed at the composition root).
type Evaluator struct {
	windows *window.Store
	fdv     *fdv.Tracker
	notify  notifier.Notifier
	th      Thresholds
}

// New builds an Evaluator.
func New(windows *window.Store, fdvTracker *fdv.Tracker, notify notifier.Notifier, th Thresholds) *Evaluator {
	return &Evaluator{windows: windows, fdv: fdvTracker, notify: notify, th: th}
}

// Evaluate computes the full signal breakdown for in, per spec.md §4.7.
func (e *Evaluator) Evaluate(in TradeInput) Evaluation {
	stats := e.windows.OneMinute(in.Key)
	baseline := e.windows.BaselineAvgPerMin(in.Key)

	eval := Evaluation{}
	eval.BuyMeetsVolume = stats.BuyUsd >= e.th.BuyVol1mUsd && stats.BuyTxs >= e.th.BuyTxs1m

	if baseline == 0 {
		eval.VolumeRatio = posInf
		eval.VolumeBurst = stats.TotalUsd > 0
	} else {
		eval.VolumeRatio = stats.TotalUsd / baseline
		eval.VolumeBurst = eval.VolumeRatio >= e.th.VolumeMultiplier
	}

	if in.TotalSupply > 0 && in.PriceUsd > 0 {
		currentFdv := in.TotalSupply * in.PriceUsd
		ratio, ok := e.fdv.Push(in.Key, currentFdv)
		if ok {
			eval.FdvRatio = ratio
			eval.FdvBurst = ratio >= e.th.FdvMultiplier
		}
	}

	if in.IsBuy {
		ratioToLiq := 0.0
		if in.LiquidityUsd > 0 {
			ratioToLiq = in.LastTradeUsd / in.LiquidityUsd
		}
		eval.Whale = ratioToLiq >= e.th.WhaleLiquidityRatio || in.LastTradeUsd >= e.th.WhaleSingleBuyUsd
	}

	score := 0
	if in.IsBuy {
		score += 2
	}
	if eval.VolumeBurst {
		score += 2
	}
	if eval.FdvBurst {
		score += 2
	}
	if eval.Whale {
		score += 3
	}
	if in.LastMintUsd >= 1.2*e.th.MinLiqUsd {
		score++
	}
	eval.Score = score

	switch {
	case score >= 6 && (eval.Whale || (eval.VolumeBurst && eval.FdvBurst)):
		eval.Verdict = VerdictStrong
	case score >= 3:
		eval.Verdict = VerdictNormal
	default:
		eval.Verdict = VerdictNone
	}

	return eval
}

const posInf = 1e18 // treated as +infinity for comparison purposes (spec.md §4.7)

// Process evaluates in and, if the verdict is strong or normal,
// dispatches a formatted Alert to the Notifier. Returns the evaluation
// for callers that want the raw signals (metrics, tests).
func (e *Evaluator) Process(in TradeInput) (Evaluation, error) {
	eval := e.Evaluate(in)
	if eval.Verdict == VerdictNone {
		return eval, nil
	}

	level := notifier.LevelNormal
	if eval.Verdict == VerdictStrong {
		level = notifier.LevelStrong
	}

	a := notifier.Alert{
		ID:         uuid.NewString(),
		Level:      level,
		Chain:      in.Key.Chain,
		MarketType: in.Key.Type,
		Address:    in.Key.Address,
		Token0:     in.Token0,
		Token1:     in.Token1,
		TargetSide: in.TargetSide,
		Headline:   headline(eval),
		Body:       body(in, eval),
	}
	if err := e.notify.Notify(a); err != nil {
		return eval, fmt.Errorf("alert: notify: %w", err)
	}
	return eval, nil
}

func headline(eval Evaluation) string {
	factors := make([]string, 0, 4)
	if eval.BuyMeetsVolume {
		factors = append(factors, "buy-volume")
	}
	if eval.VolumeBurst {
		factors = append(factors, "volume-burst")
	}
	if eval.FdvBurst {
		factors = append(factors, "fdv-burst")
	}
	if eval.Whale {
		factors = append(factors, "whale")
	}
	if len(factors) == 0 {
		return fmt.Sprintf("%s signal (score %d)", eval.Verdict, eval.Score)
	}
	return fmt.Sprintf("%s: %v (score %d)", eval.Verdict, factors, eval.Score)
}

func body(in TradeInput, eval Evaluation) string {
	liqPct := 0.0
	if in.LiquidityUsd > 0 {
		liqPct = 100 * in.LastTradeUsd / in.LiquidityUsd
	}
	return fmt.Sprintf(
		"lastTrade=$%.2f volRatio=%.2f fdvRatio=%.2f whaleLiqPct=%.2f%%",
		in.LastTradeUsd, eval.VolumeRatio, eval.FdvRatio, liqPct,
	)
}
