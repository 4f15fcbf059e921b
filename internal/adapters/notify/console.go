package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Console implementa ports.Notifier: una línea por evento de trade y una
// tabla de resumen al cerrar la sesión.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// TradeOpened anuncia una entrada admitida.
func (c *Console) TradeOpened(_ context.Context, p domain.OpenPosition) error {
	fmt.Fprintf(c.out, "[%s] OPEN  %-9s %-4s %4d sh @ %.3f  cost $%.2f  tp %.3f  sl %.3f\n",
		p.OpenedAt.Format("15:04:05"),
		p.Strategy, p.Side, p.Shares, p.EntryPrice, p.EntryCost,
		p.TargetPrice, p.StopPrice,
	)
	return nil
}

// TradeClosed anuncia un ciclo de vida completado.
func (c *Console) TradeClosed(_ context.Context, t domain.TradeRecord) error {
	sign := "+"
	if t.PnL < 0 {
		sign = "-"
	}
	fmt.Fprintf(c.out, "[%s] CLOSE %-9s %-4s %4d sh @ %.3f→%.3f  %s$%.2f (%.1f%%)  %s\n",
		t.ClosedAt.Format("15:04:05"),
		t.Strategy, t.Side, t.Shares, t.EntryPrice, t.ExitPrice,
		sign, abs(t.PnL), t.ROI*100, t.Reason,
	)
	return nil
}

// Summary imprime la tabla de la sesión a partir del ledger.
func (c *Console) Summary(_ context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		fmt.Fprintf(c.out, "\n[%s] no trades this session\n", time.Now().Format("15:04:05"))
		return nil
	}

	fmt.Fprintf(c.out, "\n=== SESSION SUMMARY — %d trades ===\n", len(trades))

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Strategy", "Side", "Shares", "Entry", "Exit", "Fees", "PnL", "ROI", "Reason")

	var totPnL, totFees float64
	wins := 0
	byStrategy := make(map[string]*strategyTally)

	for _, t := range trades {
		fees := t.EntryFee + t.ExitFee + t.GasUSD
		totPnL += t.PnL
		totFees += fees
		if t.PnL > 0 {
			wins++
		}

		tally := byStrategy[t.Strategy]
		if tally == nil {
			tally = &strategyTally{}
			byStrategy[t.Strategy] = tally
		}
		tally.trades++
		tally.pnl += t.PnL
		if t.PnL > 0 {
			tally.wins++
		}

		table.Append(
			t.ClosedAt.Format("15:04:05"),
			t.Strategy,
			string(t.Side),
			fmt.Sprintf("%d", t.Shares),
			fmt.Sprintf("%.3f", t.EntryPrice),
			fmt.Sprintf("%.3f", t.ExitPrice),
			fmt.Sprintf("$%.2f", fees),
			fmt.Sprintf("$%+.2f", t.PnL),
			fmt.Sprintf("%+.1f%%", t.ROI*100),
			t.Reason,
		)
	}

	table.Render()

	fmt.Fprintf(c.out, "\n  Por estrategia:\n")
	for name, tally := range byStrategy {
		fmt.Fprintf(c.out, "    %-10s %d trades  win %d/%d  pnl $%+.2f\n",
			name, tally.trades, tally.wins, tally.trades, tally.pnl)
	}

	fmt.Fprintf(c.out, "\n  Total: pnl $%+.2f  fees $%.2f  win rate %.0f%%\n\n",
		totPnL, totFees, 100*float64(wins)/float64(len(trades)))

	if first, last := trades[0], trades[len(trades)-1]; last.CapitalBefore > 0 {
		growth := (last.CapitalAfter - first.CapitalBefore) / first.CapitalBefore * 100
		fmt.Fprintf(c.out, "  Capital: $%.2f → $%.2f (%s%.1f%%)\n\n",
			first.CapitalBefore, last.CapitalAfter, plusIf(growth >= 0), abs(growth))
	}

	return nil
}

type strategyTally struct {
	trades int
	wins   int
	pnl    float64
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func plusIf(pos bool) string {
	if pos {
		return "+"
	}
	return "-"
}
