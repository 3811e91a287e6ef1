package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"aitrader/internal/decision"
	"aitrader/pkg/types"
)

// Trade is one completed round trip.
type Trade struct {
	Symbol      string
	Direction   types.Direction
	EntryPrice  float64
	ExitPrice   float64
	Volume      float64
	RealizedPnL float64
	Reason      string
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// Journal records completed trades for the session. It feeds the
// recent-trades digest of the decision context and exports the full
// history to Excel at shutdown.
type Journal struct {
	mu     sync.Mutex
	dir    string
	trades []Trade
}

func New(dir string) *Journal {
	return &Journal{dir: dir}
}

// Record appends a completed trade.
func (j *Journal) Record(t Trade) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
}

// Recent returns digests of the last n trades for a symbol, newest
// last.
func (j *Journal) Recent(symbol string, n int) []decision.TradeDigest {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []decision.TradeDigest
	for _, t := range j.trades {
		if t.Symbol != symbol {
			continue
		}
		out = append(out, decision.TradeDigest{
			Direction:   t.Direction,
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			Volume:      t.Volume,
			RealizedPnL: t.RealizedPnL,
			ClosedAt:    t.ClosedAt,
		})
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// TradeCount returns the number of recorded trades.
func (j *Journal) TradeCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.trades)
}

// PrintSummary renders the session's trades as a console table.
func (j *Journal) PrintSummary() {
	j.mu.Lock()
	defer j.mu.Unlock()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION TRADES")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"#", "Symbol", "Side", "Entry", "Exit", "Lots", "PnL", "Reason", "Closed"})

	var totalPnL float64
	wins := 0
	for i, tr := range j.trades {
		totalPnL += tr.RealizedPnL
		if tr.RealizedPnL > 0 {
			wins++
		}
		t.AppendRow(table.Row{
			i + 1,
			tr.Symbol,
			string(tr.Direction),
			fmt.Sprintf("%.2f", tr.EntryPrice),
			fmt.Sprintf("%.2f", tr.ExitPrice),
			fmt.Sprintf("%.0f", tr.Volume),
			fmt.Sprintf("%+.2f", tr.RealizedPnL),
			tr.Reason,
			tr.ClosedAt.Format("15:04:05"),
		})
	}

	t.AppendSeparator()
	winRate := 0.0
	if len(j.trades) > 0 {
		winRate = float64(wins) / float64(len(j.trades)) * 100
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%+.2f", totalPnL),
		fmt.Sprintf("win %.0f%%", winRate), ""})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, Align: text.AlignRight},
	})

	t.Render()
	fmt.Println()
}

// ExportXLSX writes the session's trades to an Excel workbook under
// the journal directory. The filename carries the date so repeated
// sessions on the same day land in the same file.
func (j *Journal) ExportXLSX() (string, error) {
	j.mu.Lock()
	trades := make([]Trade, len(j.trades))
	copy(trades, j.trades)
	j.mu.Unlock()

	if len(trades) == 0 {
		return "", nil
	}

	path := filepath.Join(j.dir, fmt.Sprintf("trades_%s.xlsx", time.Now().Format("2006-01-02")))
	if err := writeTradesXLSX(trades, path); err != nil {
		return "", err
	}
	return path, nil
}
