package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"perpsim/journal"
)

var (
	statsDBPath string
	statsLimit  int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print recent trades and a performance summary from the journal",
	Long: `Read the SQLite journal and print the most recent trades together
with win rate, net PnL and fee totals. Safe to run while the
simulator is live.

Example:
  perpsim stats --db perpsim.db --limit 20`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsDBPath, "db", "./perpsim.db", "journal database path")
	statsCmd.Flags().IntVar(&statsLimit, "limit", 20, "number of trades to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := journal.NewSQLite(statsDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	trades, err := store.RecentTrades(statsLimit)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Println("No trades recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OPENED\tPAIR\tDIR\tENTRY\tEXIT\tPNL\tPNL%\tSTATUS\tREASON")
	for _, t := range trades {
		exit, pnl, pnlPct, reason := "-", "-", "-", t.EntryReasoning
		if t.Status == "closed" {
			exit = fmt.Sprintf("%.4f", t.ExitPrice)
			pnl = fmt.Sprintf("%+.2f", t.PnL)
			pnlPct = fmt.Sprintf("%+.2f%%", t.PnLPct*100)
			reason = t.ExitReasoning
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\t%s\t%s\t%s\t%s\n",
			t.OpenedAt.Format("01-02 15:04"), t.Pair, t.Direction,
			t.EntryPrice, exit, pnl, pnlPct, t.Status, reason)
	}
	w.Flush()

	var wins, losses int
	var netPnL, fees float64
	for _, t := range trades {
		if t.Status != "closed" {
			continue
		}
		if t.PnL > 0 {
			wins++
		} else {
			losses++
		}
		netPnL += t.PnL
		fees += t.EntryFee + t.ExitFee
	}
	closed := wins + losses
	if closed > 0 {
		fmt.Printf("\nClosed: %d  Win rate: %.1f%%  Net PnL: %+.2f  Fees: %.2f\n",
			closed, 100*float64(wins)/float64(closed), netPnL, fees)
	}
	return nil
}
