package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"prism/native/treasury"
)

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	regime, ratio, err := s.svc.Market.Regime()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	navs, err := s.svc.Treasury.CurrentNav()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	leverage, err := s.svc.Treasury.LeverageRatio()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	leverageEMA, err := s.svc.Treasury.LeverageEMA()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	snapshot, err := s.svc.Treasury.Snapshot()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	supplies, err := s.tokenSupplies()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}

	result := StatusResult{
		Regime:          regime.String(),
		CollateralRatio: formatAmount(ratio),
		Leverage:        formatAmount(leverage),
		LeverageEMA:     formatAmount(leverageEMA),
		Nav: TokenTriple{
			Base:       formatAmount(navs.Base),
			Fractional: formatAmount(navs.Fractional),
			Leveraged:  formatAmount(navs.Leveraged),
		},
		Supply:       supplies,
		TotalBase:    formatAmount(snapshot.TotalBaseToken),
		BaseTokenCap: formatAmount(snapshot.BaseTokenCap),
	}
	if s.svc.Oracle != nil {
		if price, at, ok := s.svc.Oracle.LastAccepted(); ok {
			result.Price = formatAmount(price)
			result.PriceUpdatedAt = at.Unix()
		}
	}
	if s.svc.Pauses != nil {
		result.HaltedModules = s.svc.Pauses.Halted()
	}
	if s.svc.Journal != nil {
		if seq, err := s.svc.Journal.Seq(); err == nil {
			result.EventSeq = seq
		}
	}
	writeResult(w, req.ID, result)
}

func (s *Server) tokenSupplies() (TokenTriple, error) {
	base, err := s.svc.Tokens.Base.TotalSupply()
	if err != nil {
		return TokenTriple{}, err
	}
	fractional, err := s.svc.Tokens.Fractional.TotalSupply()
	if err != nil {
		return TokenTriple{}, err
	}
	leveraged, err := s.svc.Tokens.Leveraged.TotalSupply()
	if err != nil {
		return TokenTriple{}, err
	}
	return TokenTriple{
		Base:       formatAmount(base),
		Fractional: formatAmount(fractional),
		Leveraged:  formatAmount(leveraged),
	}, nil
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	cfg, err := s.svc.Market.Config()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ConfigResult{
		StabilityRatio:       formatAmount(cfg.StabilityRatio),
		LiquidationRatio:     formatAmount(cfg.LiquidationRatio),
		SelfLiquidationRatio: formatAmount(cfg.SelfLiquidationRatio),
		RecapRatio:           formatAmount(cfg.RecapRatio),
		MintFractionalFee:    feeRatioResult(cfg.FractionalMintFee),
		MintLeveragedFee:     feeRatioResult(cfg.LeveragedMintFee),
		RedeemFractionalFee:  feeRatioResult(cfg.FractionalRedeemFee),
		RedeemLeveragedFee:   feeRatioResult(cfg.LeveragedRedeemFee),
		LiquidationIncentive: formatAmount(cfg.LiquidationIncentive),
		Platform:             cfg.Platform.String(),
		Pauses: PauseFlagsResult{
			Mint:                       cfg.Pauses.Mint,
			Redeem:                     cfg.Pauses.Redeem,
			FractionalMintInStability:  cfg.Pauses.FractionalMintInStability,
			LeveragedRedeemInStability: cfg.Pauses.LeveragedRedeemInStability,
		},
	})
}

func (s *Server) handleNav(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	navs, err := s.svc.Treasury.CurrentNav()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, TokenTriple{
		Base:       formatAmount(navs.Base),
		Fractional: formatAmount(navs.Fractional),
		Leveraged:  formatAmount(navs.Leveraged),
	})
}

func (s *Server) handleRegime(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	regime, ratio, err := s.svc.Market.Regime()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"regime":          regime.String(),
		"collateralRatio": formatAmount(ratio),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with address", nil)
		return
	}
	var payload struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	addr, err := parseAddressParam("address", payload.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	base, err := s.svc.Tokens.Base.BalanceOf(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	fractional, err := s.svc.Tokens.Fractional.BalanceOf(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	leveraged, err := s.svc.Tokens.Leveraged.BalanceOf(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{
		Address:    addr.String(),
		Base:       formatAmount(base),
		Fractional: formatAmount(fractional),
		Leveraged:  formatAmount(leveraged),
	})
}

func parseMintOption(value string) (treasury.MintOption, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "fractional":
		return treasury.MintFractional, nil
	case "leveraged":
		return treasury.MintLeveraged, nil
	case "both":
		return treasury.MintBoth, nil
	default:
		return 0, fmt.Errorf("invalid option: %s", value)
	}
}

func (s *Server) handleQuoteMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with option and baseIn", nil)
		return
	}
	var payload struct {
		Option string `json:"option"`
		BaseIn string `json:"baseIn"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	option, err := parseMintOption(payload.Option)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	baseIn, err := parseAmountParam("baseIn", payload.BaseIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	fractionalOut, leveragedOut, err := s.svc.Treasury.QuoteMint(baseIn, option)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	result := QuoteResult{BaseIn: formatAmount(baseIn)}
	if fractionalOut != nil && !fractionalOut.IsZero() {
		result.FractionalOut = formatAmount(fractionalOut)
	}
	if leveragedOut != nil && !leveragedOut.IsZero() {
		result.LeveragedOut = formatAmount(leveragedOut)
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleQuoteRedeem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with fractionalIn or leveragedIn", nil)
		return
	}
	var payload struct {
		FractionalIn string `json:"fractionalIn"`
		LeveragedIn  string `json:"leveragedIn"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	fractionalIn, err := parseOptionalAmount("fractionalIn", payload.FractionalIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	leveragedIn, err := parseOptionalAmount("leveragedIn", payload.LeveragedIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if fractionalIn == nil && leveragedIn == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "fractionalIn or leveragedIn required", nil)
		return
	}
	baseOut, err := s.svc.Treasury.QuoteRedeem(fractionalIn, leveragedIn)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, QuoteResult{BaseOut: formatAmount(baseOut)})
}

func (s *Server) handleHeadroom(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with operation", nil)
		return
	}
	var payload struct {
		Operation string `json:"operation"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	cfg, err := s.svc.Market.Config()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	target := cfg.StabilityRatio

	switch strings.TrimSpace(payload.Operation) {
	case "mintFractional":
		maxBaseIn, maxMint, err := s.svc.Treasury.MaxMintableFractional(target)
		if err != nil {
			writeEngineError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, HeadroomResult{MaxBaseIn: formatAmount(maxBaseIn), MaxMint: formatAmount(maxMint)})
	case "mintLeveraged":
		maxBaseIn, maxMint, err := s.svc.Treasury.MaxMintableLeveraged(target)
		if err != nil {
			writeEngineError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, HeadroomResult{MaxBaseIn: formatAmount(maxBaseIn), MaxMint: formatAmount(maxMint)})
	case "redeemLeveraged":
		maxBaseOut, maxRedeem, err := s.svc.Treasury.MaxRedeemableLeveraged(target)
		if err != nil {
			writeEngineError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, HeadroomResult{MaxBaseOut: formatAmount(maxBaseOut), MaxRedeem: formatAmount(maxRedeem)})
	case "restoreFractional":
		baseOut, fractionalIn, err := s.svc.Treasury.FractionalRedemptionToRatio(target)
		if err != nil {
			writeEngineError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, HeadroomResult{MaxBaseOut: formatAmount(baseOut), MaxRedeem: formatAmount(fractionalIn)})
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("invalid operation: %s", payload.Operation), nil)
	}
}

func (s *Server) handleLiquidationQuote(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	baseOut, fractionalIn, err := s.svc.Market.LiquidationQuote()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, LiquidationQuoteResult{
		BaseOut:      formatAmount(baseOut),
		FractionalIn: formatAmount(fractionalIn),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.svc.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "event journal not enabled", nil)
		return
	}
	limit := 0
	if len(req.Params) == 1 {
		var payload struct {
			Limit int `json:"limit"`
		}
		if err := json.Unmarshal(req.Params[0], &payload); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
			return
		}
		limit = payload.Limit
	}
	entries, err := s.svc.Journal.Recent(limit)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	results := make([]EventResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, EventResult{
			Sequence:   entry.Sequence,
			EmittedAt:  entry.EmittedAt,
			Type:       entry.Type,
			Attributes: entry.Attributes,
		})
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleOracleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.svc.Oracle == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "price oracle not enabled", nil)
		return
	}
	result := OracleStatusResult{}
	// The walk folds in any newly submitted quote before the snapshot is read.
	fresh, _ := s.svc.Oracle.Price()
	result.Fresh = fresh
	if price, at, ok := s.svc.Oracle.LastAccepted(); ok {
		result.Price = formatAmount(price)
		result.UpdatedAt = at.Unix()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleSettleWhitelist(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	members, err := s.svc.Treasury.SettleWhitelist()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	encoded := make([]string, 0, len(members))
	for _, member := range members {
		encoded = append(encoded, member.String())
	}
	writeResult(w, req.ID, encoded)
}
