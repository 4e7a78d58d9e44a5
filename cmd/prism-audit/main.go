package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"prism/config"
	"prism/core/events"
	"prism/native/market"
	"prism/native/oracle"
	"prism/native/token"
	"prism/native/treasury"
	"prism/storage"
)

// prism-audit renders an offline snapshot of the protocol book: regime,
// collateral ratio, navs, supplies, parameter set and the accounting
// invariant check. It opens the state database directly, so run it against a
// stopped node or a copy of the data directory.

type feePair struct {
	Default string `json:"default" yaml:"default"`
	Extra   string `json:"extra" yaml:"extra"`
}

type auditReport struct {
	Network         string `json:"network" yaml:"network"`
	GeneratedAt     string `json:"generatedAt" yaml:"generatedAt"`
	Regime          string `json:"regime,omitempty" yaml:"regime,omitempty"`
	CollateralRatio string `json:"collateralRatio,omitempty" yaml:"collateralRatio,omitempty"`
	Nav             struct {
		Base       string `json:"base,omitempty" yaml:"base,omitempty"`
		Fractional string `json:"fractional,omitempty" yaml:"fractional,omitempty"`
		Leveraged  string `json:"leveraged,omitempty" yaml:"leveraged,omitempty"`
	} `json:"nav" yaml:"nav"`
	Supply map[string]string `json:"supply" yaml:"supply"`
	Book   struct {
		TotalBaseToken        string `json:"totalBaseToken" yaml:"totalBaseToken"`
		BaseTokenCap          string `json:"baseTokenCap" yaml:"baseTokenCap"`
		Beta                  string `json:"beta" yaml:"beta"`
		LastPermissionedPrice string `json:"lastPermissionedPrice" yaml:"lastPermissionedPrice"`
	} `json:"book" yaml:"book"`
	Params struct {
		StabilityRatio       string  `json:"stabilityRatio" yaml:"stabilityRatio"`
		LiquidationRatio     string  `json:"liquidationRatio" yaml:"liquidationRatio"`
		SelfLiquidationRatio string  `json:"selfLiquidationRatio" yaml:"selfLiquidationRatio"`
		RecapRatio           string  `json:"recapRatio" yaml:"recapRatio"`
		LiquidationIncentive string  `json:"liquidationIncentive" yaml:"liquidationIncentive"`
		MintFractionalFee    feePair `json:"mintFractionalFee" yaml:"mintFractionalFee"`
		MintLeveragedFee     feePair `json:"mintLeveragedFee" yaml:"mintLeveragedFee"`
		RedeemFractionalFee  feePair `json:"redeemFractionalFee" yaml:"redeemFractionalFee"`
		RedeemLeveragedFee   feePair `json:"redeemLeveragedFee" yaml:"redeemLeveragedFee"`
	} `json:"params" yaml:"params"`
	SettleWhitelist []string `json:"settleWhitelist" yaml:"settleWhitelist"`
	EventSeq        uint64   `json:"eventSeq" yaml:"eventSeq"`
	Invariants      string   `json:"invariants" yaml:"invariants"`
}

func main() {
	configPath := flag.String("config", "./config.toml", "Path to node configuration file")
	format := flag.String("format", "json", "Report format: json or yaml")
	flag.Parse()

	if *format != "json" && *format != "yaml" {
		fmt.Fprintf(os.Stderr, "unknown format %q, expected json or yaml\n", *format)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	statePath := filepath.Join(cfg.Node.DataDir, "state")
	if _, err := os.Stat(statePath); err != nil {
		fmt.Fprintf(os.Stderr, "state database not found at %s: %v\n", statePath, err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open state database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	report, err := buildReport(cfg, storage.NewStore(db))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build report: %v\n", err)
		os.Exit(1)
	}

	var output []byte
	if *format == "yaml" {
		output, err = yaml.Marshal(report)
	} else {
		output, err = json.MarshalIndent(report, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}

func buildReport(cfg *config.Config, store *storage.Store) (*auditReport, error) {
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

	mkt := market.NewEngine(admins)
	tre := treasury.NewEngine(admins, mkt.ModuleAddress())
	tre.SetState(store)
	tre.SetTokens(base, fractional, leveraged)
	tre.SetDefaultBaseTokenCap(settings.BaseTokenCap)
	tre.SetDefaultBeta(settings.Beta)
	tre.SetDefaultSampleInterval(settings.EMASampleIntervalSecs)
	mkt.SetState(store)
	mkt.SetTreasury(tre)
	mkt.SetTokens(base, fractional, leveraged)
	if err := mkt.SetDefaultConfig(marketCfg); err != nil {
		return nil, err
	}

	report := &auditReport{
		Network:     cfg.Node.NetworkName,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Supply:      make(map[string]string),
	}

	snap, err := tre.Snapshot()
	if err != nil {
		return nil, err
	}
	report.Book.TotalBaseToken = snap.TotalBaseToken.String()
	report.Book.BaseTokenCap = snap.BaseTokenCap.String()
	report.Book.Beta = snap.Beta.String()
	report.Book.LastPermissionedPrice = snap.LastPermissionedPrice.String()

	for _, ledger := range []*token.Ledger{base, fractional, leveraged} {
		supply, err := ledger.TotalSupply()
		if err != nil {
			return nil, err
		}
		report.Supply[ledger.Symbol()] = supply.String()
	}

	liveCfg, err := mkt.Config()
	if err != nil {
		return nil, err
	}
	report.Params.StabilityRatio = liveCfg.StabilityRatio.String()
	report.Params.LiquidationRatio = liveCfg.LiquidationRatio.String()
	report.Params.SelfLiquidationRatio = liveCfg.SelfLiquidationRatio.String()
	report.Params.RecapRatio = liveCfg.RecapRatio.String()
	report.Params.LiquidationIncentive = liveCfg.LiquidationIncentive.String()
	report.Params.MintFractionalFee = formatFee(liveCfg.FractionalMintFee)
	report.Params.MintLeveragedFee = formatFee(liveCfg.LeveragedMintFee)
	report.Params.RedeemFractionalFee = formatFee(liveCfg.FractionalRedeemFee)
	report.Params.RedeemLeveragedFee = formatFee(liveCfg.LeveragedRedeemFee)

	whitelist, err := tre.SettleWhitelist()
	if err != nil {
		return nil, err
	}
	report.SettleWhitelist = make([]string, 0, len(whitelist))
	for _, member := range whitelist {
		report.SettleWhitelist = append(report.SettleWhitelist, member.String())
	}

	journal, err := events.NewJournal(store)
	if err != nil {
		return nil, err
	}
	seq, err := journal.Seq()
	if err != nil {
		return nil, err
	}
	report.EventSeq = seq

	// NAV views need a price. Replay the last permissioned one; a book with no
	// recorded price has nothing to value against.
	if snap.LastPermissionedPrice.IsZero() {
		report.Invariants = "skipped: no recorded oracle price"
		return report, nil
	}
	replay := oracle.NewManualOracle()
	if err := replay.Set(snap.LastPermissionedPrice, time.Now()); err != nil {
		return nil, err
	}
	tre.SetPriceOracle(replay)

	// Regime and nav views divide by outstanding supply, so a fully redeemed
	// book legitimately has neither.
	if regime, ratio, err := mkt.Regime(); err == nil {
		report.Regime = regime.String()
		if ratio != nil {
			report.CollateralRatio = ratio.String()
		}
	}
	if current, err := tre.CurrentNav(); err == nil {
		report.Nav.Base = current.Base.String()
		report.Nav.Fractional = current.Fractional.String()
		report.Nav.Leveraged = current.Leveraged.String()
	}

	if err := tre.VerifyInvariants(); err != nil {
		report.Invariants = err.Error()
	} else {
		report.Invariants = "ok"
	}
	return report, nil
}

func formatFee(fee market.FeeRatio) feePair {
	extra := fee.Extra.String()
	if fee.ExtraNeg {
		extra = "-" + extra
	}
	return feePair{Default: fee.Default.String(), Extra: extra}
}
