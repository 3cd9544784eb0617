package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSVEquityLog appends equity snapshots to a CSV file alongside the
// SQLite store, for quick plotting without a DB client.
type CSVEquityLog struct {
	w *csv.Writer
	f *os.File
}

func NewCSVEquityLog(path string) (*CSVEquityLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "balance", "equity", "margin_used", "unrealized_pnl", "margin_ratio", "drawdown_pct"}); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return &CSVEquityLog{w: w, f: f}, nil
}

func (l *CSVEquityLog) RecordEquity(e EquitySnapshot) error {
	err := l.w.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.MarginUsed),
		f(e.UnrealizedPnL),
		f(e.MarginRatio),
		f(e.DrawdownPct),
	})
	if err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *CSVEquityLog) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	return l.f.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

// TeeEquity forwards every Store operation to the primary store and
// additionally appends equity snapshots to a CSV log.
type TeeEquity struct {
	Store
	CSV *CSVEquityLog
}

func (t TeeEquity) RecordEquity(e EquitySnapshot) error {
	if err := t.CSV.RecordEquity(e); err != nil {
		return err
	}
	return t.Store.RecordEquity(e)
}

func (t TeeEquity) Close() error {
	csvErr := t.CSV.Close()
	if err := t.Store.Close(); err != nil {
		return err
	}
	return csvErr
}
