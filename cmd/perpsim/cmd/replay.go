package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"perpsim/feed"
)

var (
	replayConfigPath string
	replayCSVPath    string
	replayDelay      time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay historical candles through the simulator",
	Long: `Run the full decision and ledger pipeline over a CSV candle file
instead of the live feed. The run ends when the file is exhausted.

The CSV format is: pair,time,open,high,low,close,volume with an
RFC 3339 time column.

Example:
  perpsim replay --csv btc_1m.csv --delay 10ms`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayConfigPath, "config", "c", "", "config file (YAML or JSON); built-in defaults apply when omitted")
	replayCmd.Flags().StringVar(&replayCSVPath, "csv", "", "candle CSV file (required)")
	replayCmd.Flags().DurationVar(&replayDelay, "delay", 0, "pause between candles, 0 for full speed")
	replayCmd.MarkFlagRequired("csv")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(replayConfigPath)
	if err != nil {
		return err
	}

	candles, err := feed.LoadCandlesCSV(replayCSVPath)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles in %s", replayCSVPath)
	}

	fmt.Printf("Replaying %d candles from %s\n", len(candles), replayCSVPath)
	return runSimulator(cfg, feed.NewReplay(candles, replayDelay), false)
}
