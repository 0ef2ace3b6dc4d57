package units

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"agentarena/internal/types"
	"agentarena/internal/unit"

	"go.uber.org/zap"
)

const (
	tradingPeriodsPerYear = 252
	daysPerYear           = 365.25
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// TradingKPIs computes backtest KPIs from a per-trade P&L CSV held in the
// "dataString" key. The CSV needs a "pnl" column; an optional "timestamp"
// column enables the CAGR approximation.
//
// KPIs that cannot be computed (a single trade for Sharpe, an unparsable
// timestamp for CAGR) are reported as nil rather than failing the run.
type TradingKPIs struct {
	unit.Base
	logger *zap.Logger
}

// NewTradingKPIs creates the trading-kpis runner.
func NewTradingKPIs() *TradingKPIs {
	return &TradingKPIs{Base: unit.MustBase(NameTradingKPIs), logger: zap.NewNop()}
}

type trade struct {
	pnl       float64
	timestamp string
}

func (t *TradingKPIs) Run(_ context.Context, tc types.Context) (types.Metrics, error) {
	raw, present := tc["dataString"]
	if !present {
		return nil, &MissingInputError{Unit: t.Name(), Key: "dataString"}
	}
	data, ok := raw.(string)
	if !ok {
		return nil, &InvalidInputError{Unit: t.Name(), Key: "dataString", Reason: "must be a CSV string"}
	}

	trades, hasTimestamps, err := t.parse(data)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("Parsed trades", zap.Int("trades", len(trades)), zap.Bool("timestamps", hasTimestamps))
	if len(trades) == 0 {
		return types.Metrics{}, nil
	}

	pnl := make([]float64, len(trades))
	var total float64
	wins := 0
	for i, tr := range trades {
		pnl[i] = tr.pnl
		total += tr.pnl
		if tr.pnl > 0 {
			wins++
		}
	}

	m := types.Metrics{
		"num_trades":   len(trades),
		"total_pnl":    total,
		"win_rate":     float64(wins) / float64(len(trades)),
		"sharpe_est":   finiteOrNil(sharpe(pnl, tradingPeriodsPerYear)),
		"max_drawdown": finiteOrNil(maxDrawdown(pnl)),
	}
	if hasTimestamps {
		m["cagr_approx"] = finiteOrNil(cagr(trades[0].timestamp, trades[len(trades)-1].timestamp, total))
	}
	return m, nil
}

func (t *TradingKPIs) parse(data string) ([]trade, bool, error) {
	reader := csv.NewReader(strings.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &InvalidInputError{Unit: t.Name(), Key: "dataString", Reason: fmt.Sprintf("read csv header: %v", err)}
	}

	pnlCol, tsCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "pnl":
			pnlCol = i
		case "timestamp":
			tsCol = i
		}
	}
	if pnlCol < 0 {
		return nil, false, &InvalidInputError{Unit: t.Name(), Key: "dataString", Reason: "csv has no pnl column"}
	}

	var trades []trade
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, &InvalidInputError{Unit: t.Name(), Key: "dataString", Reason: fmt.Sprintf("read csv row %d: %v", row, err)}
		}
		if blankRecord(record) {
			continue
		}
		if pnlCol >= len(record) {
			return nil, false, &InvalidInputError{Unit: t.Name(), Key: "dataString", Reason: fmt.Sprintf("row %d has no pnl value", row)}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[pnlCol]), 64)
		if err != nil {
			return nil, false, &InvalidInputError{Unit: t.Name(), Key: "dataString", Reason: fmt.Sprintf("row %d: pnl %q is not numeric", row, record[pnlCol])}
		}
		tr := trade{pnl: v}
		if tsCol >= 0 && tsCol < len(record) {
			tr.timestamp = strings.TrimSpace(record[tsCol])
		}
		trades = append(trades, tr)
	}
	return trades, tsCol >= 0, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// sharpe annualises mean/stddev of per-trade returns. Fewer than two trades
// or zero variance gives NaN.
func sharpe(returns []float64, periodsPerYear float64) float64 {
	n := len(returns)
	if n < 2 {
		return math.NaN()
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	sigma := math.Sqrt(ss / float64(n-1))
	if sigma == 0 {
		return math.NaN()
	}
	return mean / sigma * math.Sqrt(periodsPerYear)
}

// maxDrawdown is the most negative relative drop of cumulative P&L from its
// running peak. Points whose peak is not positive have no relative drawdown
// and are skipped; NaN when no point qualifies.
func maxDrawdown(pnl []float64) float64 {
	var cum float64
	peak := math.Inf(-1)
	worst := math.NaN()
	for _, p := range pnl {
		cum += p
		if cum > peak {
			peak = cum
		}
		if peak <= 0 {
			continue
		}
		dd := (cum - peak) / peak
		if math.IsNaN(worst) || dd < worst {
			worst = dd
		}
	}
	return worst
}

// cagr treats total P&L as a fractional return over the span between the
// first and last timestamps.
func cagr(first, last string, total float64) float64 {
	t0, ok0 := parseTimestamp(first)
	t1, ok1 := parseTimestamp(last)
	if !ok0 || !ok1 || total <= -0.999 {
		return math.NaN()
	}
	days := math.Floor(t1.Sub(t0).Hours() / 24)
	years := math.Max(days/daysPerYear, 1e-9)
	return math.Pow(1+total, 1/years) - 1
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// finiteOrNil maps NaN and ±Inf to nil so metrics stay JSON-encodable.
func finiteOrNil(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
