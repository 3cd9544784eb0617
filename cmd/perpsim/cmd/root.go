package cmd

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "perpsim",
	Short: "An autonomous crypto perpetual-futures paper-trading simulator",
	Long: `Perpsim simulates a USDT-margined perpetual futures account driven by
an external decision oracle, with no real funds at risk.

It provides:
  - A position ledger with leverage, isolated margin, liquidation,
    funding, taker fees and slippage
  - Hard risk limits the oracle cannot override
  - A drawdown circuit breaker with pause, daily stop and full stop
  - Live Binance market data or CSV candle replay
  - A SQLite trade journal with daily performance stats
  - An HTTP monitoring API with Prometheus metrics`,
}

var logFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated at 50 MB")
}

// setupLogging routes the standard logger to stderr, plus a rotating
// file when --log-file is set.
func setupLogging() {
	log.SetFlags(log.LstdFlags | log.LUTC)
	if logFile == "" {
		return
	}
	rot := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rot))
}
