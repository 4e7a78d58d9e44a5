package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"prism/config"
	"prism/core/events"
	"prism/crypto"
	nativecommon "prism/native/common"
	"prism/native/market"
	"prism/native/oracle"
	"prism/native/token"
	"prism/native/treasury"
	"prism/observability"
	"prism/observability/logging"
	"prism/observability/otel"
	"prism/rpc"
	"prism/storage"
)

const (
	metricsInterval = 15 * time.Second
	shutdownGrace   = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(os.Getenv("PRISM_ENV"))
	if env == "" {
		env = cfg.Node.LogEnv
	}
	logger := logging.Setup("prismd", env, cfg.Node.LogLevel)

	db, err := storage.NewLevelDB(filepath.Join(cfg.Node.DataDir, "state"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	if cfg.Telemetry.Enabled() {
		shutdownTelemetry, err := otel.Init(context.Background(), "prismd", env, otel.Config{
			Endpoint: cfg.Telemetry.Endpoint,
			Insecure: cfg.Telemetry.Insecure,
			Traces:   cfg.Telemetry.Traces,
			Metrics:  cfg.Telemetry.Metrics,
			Headers:  cfg.Telemetry.Headers,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry exporters", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := shutdownTelemetry(flushCtx); err != nil {
				logger.Error("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	node, err := buildNode(cfg, storage.NewStore(db), logger)
	if err != nil {
		logger.Error("Failed to assemble protocol engines", slog.Any("error", err))
		os.Exit(1)
	}

	stopWatch := observability.WatchJournal(node.journal)
	defer stopWatch()

	secret := cfg.ResolveJWTSecret()
	if secret == "" {
		logger.Warn("No JWT secret configured; authenticated RPC methods are disabled")
	}
	server, err := rpc.NewServer(node.services(), rpc.ServerConfig{
		JWTSecret:         secret,
		RequestsPerMinute: float64(cfg.RPC.RequestsPerMinute),
		Burst:             int(cfg.RPC.Burst),
		Quota:             cfg.Quota(),
		Admins:            node.admins,
	})
	if err != nil {
		logger.Error("Failed to initialise RPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var handler http.Handler = server.Router()
	if cfg.Telemetry.Enabled() {
		handler = otelhttp.NewHandler(handler, "prismd")
	}
	httpServer := &http.Server{
		Addr:              cfg.Node.RPCAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeoutSecs) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeoutSecs) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go node.refreshMetrics(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	logger.Info("Prism node initialised and running",
		slog.String("network", cfg.Node.NetworkName),
		slog.String("rpc", cfg.Node.RPCAddress))

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", slog.Any("error", err))
	}
}

// protocolNode bundles the wired engines for the metrics loop and the RPC
// service surface.
type protocolNode struct {
	admins     []crypto.Address
	market     *market.Engine
	treasury   *treasury.Engine
	base       *token.Ledger
	fractional *token.Ledger
	leveraged  *token.Ledger
	manual     *oracle.ManualOracle
	aggregator *oracle.Aggregator
	journal    *events.Journal
	pauses     *nativecommon.Pauses
	logger     *slog.Logger
}

func buildNode(cfg *config.Config, store *storage.Store, logger *slog.Logger) (*protocolNode, error) {
	base, err := token.NewLedger(store, cfg.Tokens.Base)
	if err != nil {
		return nil, err
	}
	fractional, err := token.NewLedger(store, cfg.Tokens.Fractional)
	if err != nil {
		return nil, err
	}
	leveraged, err := token.NewLedger(store, cfg.Tokens.Leveraged)
	if err != nil {
		return nil, err
	}

	journal, err := events.NewJournal(store)
	if err != nil {
		return nil, err
	}
	journal.SetErrorHandler(func(err error) {
		logger.Error("Journal append failed", slog.Any("error", err))
	})

	manual := oracle.NewManualOracle()
	aggregator := oracle.NewAggregator(cfg.Oracle.Priority, time.Duration(cfg.Oracle.MaxQuoteAgeSecs)*time.Second)
	aggregator.SetMaxDeviationBps(cfg.Oracle.MaxDeviationBps)
	aggregator.Register("manual", manual)

	admins, err := cfg.Admins()
	if err != nil {
		return nil, err
	}

	settings, err := cfg.TreasurySettings()
	if err != nil {
		return nil, err
	}
	marketCfg, err := cfg.MarketConfig()
	if err != nil {
		return nil, err
	}

	pauses := nativecommon.NewPauses()
	mkt := market.NewEngine(admins)
	tre := treasury.NewEngine(admins, mkt.ModuleAddress())

	tre.SetState(store)
	tre.SetTokens(base, fractional, leveraged)
	tre.SetPriceOracle(aggregator)
	tre.SetEmitter(journal)
	tre.SetPauses(pauses)
	if err := tre.SetInitialMintRatio(settings.InitialMintRatio); err != nil {
		return nil, err
	}
	tre.SetDefaultBaseTokenCap(settings.BaseTokenCap)
	tre.SetDefaultBeta(settings.Beta)
	tre.SetDefaultSampleInterval(settings.EMASampleIntervalSecs)

	mkt.SetState(store)
	mkt.SetTreasury(tre)
	mkt.SetTokens(base, fractional, leveraged)
	mkt.SetEmitter(journal)
	mkt.SetPauses(pauses)
	if err := mkt.SetDefaultConfig(marketCfg); err != nil {
		return nil, err
	}

	return &protocolNode{
		admins:     admins,
		market:     mkt,
		treasury:   tre,
		base:       base,
		fractional: fractional,
		leveraged:  leveraged,
		manual:     manual,
		aggregator: aggregator,
		journal:    journal,
		pauses:     pauses,
		logger:     logger,
	}, nil
}

func (n *protocolNode) services() rpc.Services {
	return rpc.Services{
		Market:   n.market,
		Treasury: n.treasury,
		Tokens:   rpc.TokenSet{Base: n.base, Fractional: n.fractional, Leveraged: n.leveraged},
		Oracle:   n.aggregator,
		Manual:   n.manual,
		Journal:  n.journal,
		Pauses:   n.pauses,
	}
}

// refreshMetrics keeps the treasury and oracle gauges current. Probe failures
// are expected while the book is empty or no price has been submitted yet, so
// they land at debug level.
func (n *protocolNode) refreshMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.collectMetrics()
		}
	}
}

func (n *protocolNode) collectMetrics() {
	oracleMetrics := observability.Oracle()
	if quote, err := n.aggregator.Accept(); err != nil {
		oracleMetrics.RecordRejection("aggregate", rejectionReason(err))
	} else {
		oracleMetrics.RecordAccepted(quote.Source, quote.Price, time.Since(quote.Timestamp))
	}

	treasuryMetrics := observability.Treasury()
	if ratio, err := n.treasury.CollateralRatio(); err == nil {
		treasuryMetrics.SetCollateralRatio(ratio)
	} else {
		n.logger.Debug("Collateral ratio probe failed", slog.Any("error", err))
	}
	if leverage, err := n.treasury.LeverageEMA(); err == nil {
		treasuryMetrics.SetLeverage(leverage)
	}
	if current, err := n.treasury.CurrentNav(); err == nil {
		treasuryMetrics.SetNav(n.base.Symbol(), current.Base)
		treasuryMetrics.SetNav(n.fractional.Symbol(), current.Fractional)
		treasuryMetrics.SetNav(n.leveraged.Symbol(), current.Leveraged)
	}
	for _, ledger := range []*token.Ledger{n.base, n.fractional, n.leveraged} {
		if supply, err := ledger.TotalSupply(); err == nil {
			treasuryMetrics.SetSupply(ledger.Symbol(), supply)
		}
	}
	if regime, _, err := n.market.Regime(); err == nil {
		treasuryMetrics.SetRegime(uint8(regime))
	}
}

func rejectionReason(err error) string {
	if errors.Is(err, oracle.ErrNoFreshQuote) {
		return "stale"
	}
	return "invalid"
}
