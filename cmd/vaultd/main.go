package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SIR-trading/Core-sub003/internal/chain"
	"github.com/SIR-trading/Core-sub003/internal/config"
	"github.com/SIR-trading/Core-sub003/internal/events"
	"github.com/SIR-trading/Core-sub003/internal/fees"
	"github.com/SIR-trading/Core-sub003/internal/keeper"
	"github.com/SIR-trading/Core-sub003/internal/ledger"
	"github.com/SIR-trading/Core-sub003/internal/oracle"
	"github.com/SIR-trading/Core-sub003/internal/storage/postgres"
	"github.com/SIR-trading/Core-sub003/internal/univ3"
	"github.com/SIR-trading/Core-sub003/internal/vault"
	"github.com/SIR-trading/Core-sub003/internal/web"
)

func main() {
	root := &cobra.Command{
		Use:          "vaultd",
		Short:        "Leveraged vault protocol daemon",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the vault daemon",
		RunE:  runDaemon,
	}
	addCommonFlags(runCmd)
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for state snapshots")
	runCmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	runCmd.Flags().StringSlice("pair", nil, "pairs to pre-initialize, collateral:debt (comma-separated)")
	runCmd.Flags().Duration("keeper-interval", 12*time.Second, "keeper cycle interval")
	runCmd.Flags().Uint32("base-fee-bps", 100, "base fee for leveraged deposits, in basis points")
	runCmd.Flags().Uint32("lp-fee-bps", 50, "flat fee for liquidity deposits, in basis points")
	runCmd.Flags().Uint64("min-liquidity", 1000, "minimum liquidity floor per reserve side")
	runCmd.Flags().String("journal", "./data/events.jsonl", "event journal JSONL path")
	root.AddCommand(runCmd)

	initDBCmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the snapshot tables",
		RunE:  runInitDB,
	}
	initDBCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	initDBCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(initDBCmd)

	priceCmd := &cobra.Command{
		Use:   "price <collateral> <debt>",
		Short: "Query the oracle price for a pair once and exit",
		Args:  cobra.ExactArgs(2),
		RunE:  runPrice,
	}
	addCommonFlags(priceCmd)
	root.AddCommand(priceCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "Ethereum RPC URL")
	cmd.Flags().String("factory", "", "Uniswap v3 factory address")
	cmd.Flags().Duration("twap-window", 30*time.Minute, "TWAP window")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Factory) {
		return fmt.Errorf("factory address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	sink := events.MultiSink{
		events.NewLogSink(logger),
		events.NewJournal(cfg.Journal, logger),
	}

	source := univ3.NewChainSource(chainClient, common.HexToAddress(cfg.Factory), logger)
	o := oracle.New(source, sink, logger, oracle.Config{
		Window: uint32(cfg.TWAPWindow / time.Second),
	})

	calc, err := fees.NewCalculator(cfg.BaseFeeBps, cfg.LPFeeBps)
	if err != nil {
		return err
	}
	claims := ledger.NewInMemory()
	staking := ledger.NewFeeAccumulator()
	engine := vault.NewEngine(o, claims, staking, calc, sink, logger, cfg.MinLiquidity)

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if err := restoreState(ctx, store, engine, o, logger); err != nil {
			return err
		}
	}

	head := keeper.ChainHead{Client: chainClient}

	if len(cfg.Pairs) > 0 {
		now, err := head.HeadTimestamp(ctx)
		if err != nil {
			return fmt.Errorf("head timestamp: %w", err)
		}
		for _, pair := range cfg.Pairs {
			collateral, debt, err := parsePair(pair)
			if err != nil {
				return err
			}
			if err := o.Initialize(ctx, collateral, debt, now); err != nil {
				return fmt.Errorf("initialize pair %s: %w", pair, err)
			}
		}
	}

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: web.NewServer(engine, o, head, logger),
	}
	go func() {
		logger.Info("http listen", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	var snapshots keeper.SnapshotStore
	if store != nil {
		snapshots = store
	}
	runner := keeper.NewRunner(keeper.RunConfig{
		Interval:     cfg.KeeperInterval,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, head, o, engine, snapshots, logger)

	logger.Info("vaultd start",
		zap.String("chain_id", chainID.String()),
		zap.String("rpc", cfg.RPCURL),
		zap.String("factory", cfg.Factory),
		zap.Duration("keeper_interval", cfg.KeeperInterval),
		zap.Duration("twap_window", cfg.TWAPWindow),
		zap.Int("pairs", len(cfg.Pairs)),
		zap.Bool("persistence", store != nil),
	)

	err = runner.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func runInitDB(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	return store.EnsureSchema(ctx)
}

func runPrice(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Factory) {
		return fmt.Errorf("factory address is required")
	}
	if !common.IsHexAddress(args[0]) || !common.IsHexAddress(args[1]) {
		return fmt.Errorf("collateral and debt must be hex addresses")
	}
	collateral := common.HexToAddress(args[0])
	debt := common.HexToAddress(args[1])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	source := univ3.NewChainSource(chainClient, common.HexToAddress(cfg.Factory), logger)
	o := oracle.New(source, events.NopSink{}, logger, oracle.Config{
		Window: uint32(cfg.TWAPWindow / time.Second),
	})

	head := keeper.ChainHead{Client: chainClient}
	now, err := head.HeadTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("head timestamp: %w", err)
	}
	if err := o.Initialize(ctx, collateral, debt, now); err != nil {
		return err
	}
	tick, err := o.Price(ctx, collateral, debt, now)
	if err != nil {
		return err
	}

	fmt.Printf("tick_price_x42=%d at=%d\n", tick, now)
	return nil
}

func parsePair(raw string) (collateral, debt common.Address, err error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
		return common.Address{}, common.Address{}, fmt.Errorf("pair %q must be collateral:debt hex addresses", raw)
	}
	return common.HexToAddress(parts[0]), common.HexToAddress(parts[1]), nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func restoreState(ctx context.Context, store *postgres.Store, engine *vault.Engine, o *oracle.Oracle, logger *zap.Logger) error {
	infos, err := store.LoadVaults(ctx)
	if err != nil {
		return fmt.Errorf("load vaults: %w", err)
	}
	if len(infos) > 0 {
		if err := engine.Restore(infos); err != nil {
			return fmt.Errorf("restore vaults: %w", err)
		}
	}

	pairs, err := store.LoadOraclePairs(ctx)
	if err != nil {
		return fmt.Errorf("load oracle pairs: %w", err)
	}
	for key, state := range pairs {
		o.Restore(key, state)
	}

	logger.Info("state restored", zap.Int("vaults", len(infos)), zap.Int("pairs", len(pairs)))
	return nil
}
