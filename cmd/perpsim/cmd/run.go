package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"perpsim/api"
	"perpsim/config"
	"perpsim/engine"
	"perpsim/feed"
	"perpsim/internal/metrics"
	"perpsim/journal"
	"perpsim/ledger"
	"perpsim/oracle"
	"perpsim/portfolio"
	"perpsim/risk"
	"perpsim/sentiment"
)

var (
	runConfigPath string
	runStreamBase string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulator against live Binance market data",
	Long: `Start the simulator: it subscribes to Binance futures 1m klines and
mark-price funding streams for the configured pairs, asks the decision
oracle on each analysis cycle, and manages positions on the paper
ledger. State is journaled to SQLite so a restart resumes open
positions.

Secrets are read from the environment; a .env file in the working
directory is loaded if present.

Example:
  perpsim run --config perpsim.yaml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file (YAML or JSON); built-in defaults apply when omitted")
	runCmd.Flags().StringVar(&runStreamBase, "stream-base", "", "override the Binance futures websocket base URL")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}

	bf := feed.NewBinance(runStreamBase, cfg.Trading.Pairs)
	return runSimulator(cfg, bf, true)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

// runSimulator wires the components and blocks until SIGINT/SIGTERM or,
// for finite feeds, until the feed is exhausted.
func runSimulator(cfg *config.Config, fd feed.Feed, withAPI bool) error {
	setupLogging()

	store, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	var js journal.Store = store
	if cfg.Journal.EquityFile != "" {
		csvLog, err := journal.NewCSVEquityLog(cfg.Journal.EquityFile)
		if err != nil {
			store.Close()
			return fmt.Errorf("open equity log: %w", err)
		}
		js = journal.TeeEquity{Store: store, CSV: csvLog}
	}
	defer js.Close()

	ecfg := cfg.EngineConfigResolved()

	led := ledger.New(cfg.LedgerConfig(), cfg.Account.InitialBalance, js)
	breaker := risk.NewCircuitBreaker(cfg.RiskLimits())
	sup := portfolio.NewSupervisor(led, js)
	orc := oracle.NewHTTP(cfg.Oracle.Endpoint, cfg.OracleAPIKey(), ecfg.OracleTimeout, js)
	fg := sentiment.NewPoller("")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if bf, ok := fd.(*feed.BinanceFeed); ok {
		bf.OnReconnect = m.FeedReconnect.Inc
	}

	eng := engine.New(ecfg, engine.Deps{
		Ledger:     led,
		Supervisor: sup,
		Breaker:    breaker,
		Limits:     cfg.RiskLimits(),
		Oracle:     orc,
		Feed:       fd,
		Store:      js,
		FearGreed:  fg,
		Metrics:    m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if withAPI {
		srv := api.NewServer(cfg.API.Addr, eng, store, reg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				log.Printf("api server: %v", err)
			}
		}()
		log.Printf("monitoring api listening on %s", cfg.API.Addr)
	}

	err = eng.Run(ctx)
	stop()
	wg.Wait()
	return err
}
