package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"prism/core/events"
	"prism/crypto"
	"prism/native/fixedpoint"
	"prism/native/market"
)

// parseRatioParam parses a decimal ratio such as "1.3" or "0.0025" into 1e18
// fixed point. Zero is a valid ratio; the engines decide whether it is.
func parseRatioParam(field, value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	parsed, err := fixedpoint.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %s", field, trimmed)
	}
	return parsed, nil
}

type feePairPayload struct {
	Default string `json:"default"`
	Extra   string `json:"extra"`
}

func parseFeePair(field string, pair feePairPayload) (market.FeeRatio, error) {
	def := strings.TrimSpace(pair.Default)
	if def == "" {
		return market.FeeRatio{}, fmt.Errorf("%s.default required", field)
	}
	extra := strings.TrimSpace(pair.Extra)
	if extra == "" {
		extra = "0"
	}
	fee, err := market.NewFeeRatio(def, extra)
	if err != nil {
		return market.FeeRatio{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return fee, nil
}

func (s *Server) handleUpdateStabilityRatios(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with the four regime thresholds", nil)
		return
	}
	var payload struct {
		Stability       string `json:"stability"`
		Liquidation     string `json:"liquidation"`
		SelfLiquidation string `json:"selfLiquidation"`
		Recap           string `json:"recap"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	stability, err := parseRatioParam("stability", payload.Stability)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	liquidation, err := parseRatioParam("liquidation", payload.Liquidation)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	selfLiquidation, err := parseRatioParam("selfLiquidation", payload.SelfLiquidation)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recap, err := parseRatioParam("recap", payload.Recap)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.svc.Market.UpdateStabilityRatios(caller, stability, liquidation, selfLiquidation, recap); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"stability":       formatAmount(stability),
		"liquidation":     formatAmount(liquidation),
		"selfLiquidation": formatAmount(selfLiquidation),
		"recap":           formatAmount(recap),
	})
}

func (s *Server) handleUpdateMintFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with fractional and leveraged fee pairs", nil)
		return
	}
	var payload struct {
		Fractional feePairPayload `json:"fractional"`
		Leveraged  feePairPayload `json:"leveraged"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	fractional, err := parseFeePair("fractional", payload.Fractional)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	leveraged, err := parseFeePair("leveraged", payload.Leveraged)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.svc.Market.UpdateMintFees(caller, fractional, leveraged); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]FeeRatioResult{
		"fractional": feeRatioResult(fractional),
		"leveraged":  feeRatioResult(leveraged),
	})
}

func (s *Server) handleUpdateRedeemFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with fractional and leveraged fee pairs", nil)
		return
	}
	var payload struct {
		Fractional feePairPayload `json:"fractional"`
		Leveraged  feePairPayload `json:"leveraged"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	fractional, err := parseFeePair("fractional", payload.Fractional)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	leveraged, err := parseFeePair("leveraged", payload.Leveraged)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.svc.Market.UpdateRedeemFees(caller, fractional, leveraged); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]FeeRatioResult{
		"fractional": feeRatioResult(fractional),
		"leveraged":  feeRatioResult(leveraged),
	})
}

// handleUpdatePauseFlags replaces all four gates at once; omitted flags reset
// to false.
func (s *Server) handleUpdatePauseFlags(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with pause flags", nil)
		return
	}
	var payload struct {
		Mint                       bool `json:"mint"`
		Redeem                     bool `json:"redeem"`
		FractionalMintInStability  bool `json:"fractionalMintInStability"`
		LeveragedRedeemInStability bool `json:"leveragedRedeemInStability"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	flags := market.PauseFlags{
		Mint:                       payload.Mint,
		Redeem:                     payload.Redeem,
		FractionalMintInStability:  payload.FractionalMintInStability,
		LeveragedRedeemInStability: payload.LeveragedRedeemInStability,
	}
	if err := s.svc.Market.UpdatePauseFlags(caller, flags); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, PauseFlagsResult{
		Mint:                       flags.Mint,
		Redeem:                     flags.Redeem,
		FractionalMintInStability:  flags.FractionalMintInStability,
		LeveragedRedeemInStability: flags.LeveragedRedeemInStability,
	})
}

func (s *Server) handleUpdatePlatformAddress(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with platform", nil)
		return
	}
	var payload struct {
		Platform string `json:"platform"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	platform, err := parseAddressParam("platform", payload.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.svc.Market.UpdatePlatformAddress(caller, platform); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"platform": platform.String()})
}

func (s *Server) handleUpdateLiquidationIncentive(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with incentive", nil)
		return
	}
	var payload struct {
		Incentive string `json:"incentive"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	incentive, err := parseRatioParam("incentive", payload.Incentive)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.svc.Market.UpdateLiquidationIncentive(caller, incentive); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"incentive": formatAmount(incentive)})
}

func (s *Server) handleUpdateBeta(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with beta", nil)
		return
	}
	var payload struct {
		Beta string `json:"beta"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	beta, err := parseRatioParam("beta", payload.Beta)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.svc.Treasury.UpdateBeta(caller, beta); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"beta": formatAmount(beta)})
}

// handleUpdateBaseTokenCap takes the cap in raw base token units; zero blocks
// new deposits entirely.
func (s *Server) handleUpdateBaseTokenCap(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with cap", nil)
		return
	}
	var payload struct {
		Cap string `json:"cap"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	trimmed := strings.TrimSpace(payload.Cap)
	if trimmed == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "cap required", nil)
		return
	}
	cap, err := uint256.FromDecimal(trimmed)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("invalid cap: %s", trimmed), nil)
		return
	}
	if err := s.svc.Treasury.UpdateBaseTokenCap(caller, cap); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"cap": formatAmount(cap)})
}

func (s *Server) handleUpdateEmaSampleInterval(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with seconds", nil)
		return
	}
	var payload struct {
		Seconds uint64 `json:"seconds"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	if payload.Seconds == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "seconds must be positive", nil)
		return
	}
	if err := s.svc.Treasury.UpdateEMASampleInterval(caller, payload.Seconds); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"seconds": payload.Seconds})
}

func (s *Server) handleUpdateSettleWhitelist(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with member and allowed", nil)
		return
	}
	var payload struct {
		Member  string `json:"member"`
		Allowed bool   `json:"allowed"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	member, err := parseAddressParam("member", payload.Member)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.svc.Treasury.UpdateSettleWhitelist(caller, member, payload.Allowed); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"member":  member.String(),
		"allowed": payload.Allowed,
	})
}

func (s *Server) handleInitializePrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	price, err := s.svc.Treasury.InitializePrice(caller)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"price": formatAmount(price)})
}

// handleSubmitPrice pushes a quote onto the manual feed. The aggregator folds
// it in on the next read, subject to its freshness and deviation guards.
func (s *Server) handleSubmitPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if !s.isServerAdmin(caller) {
		writeError(w, http.StatusForbidden, req.ID, codeForbidden, "caller is not a server admin", nil)
		return
	}
	if s.svc.Manual == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "manual price feed not enabled", nil)
		return
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with price", nil)
		return
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	price, err := parseRatioParam("price", payload.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if price.IsZero() {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "price must be positive", nil)
		return
	}
	ts := s.clock()
	if payload.Timestamp > 0 {
		ts = time.Unix(payload.Timestamp, 0)
	}
	if err := s.svc.Manual.Set(price, ts); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.svc.Journal.Emit(events.PriceSubmitted{Caller: caller, Price: price})
	writeResult(w, req.ID, map[string]interface{}{
		"price":     formatAmount(price),
		"timestamp": ts.Unix(),
	})
}

func (s *Server) handlePauseModule(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	if !s.isServerAdmin(caller) {
		writeError(w, http.StatusForbidden, req.ID, codeForbidden, "caller is not a server admin", nil)
		return
	}
	if s.svc.Pauses == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "pause registry not enabled", nil)
		return
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with module and paused", nil)
		return
	}
	var payload struct {
		Module string `json:"module"`
		Paused bool   `json:"paused"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	module := strings.ToLower(strings.TrimSpace(payload.Module))
	if module == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "module required", nil)
		return
	}
	s.svc.Pauses.SetPaused(module, payload.Paused)
	s.svc.Journal.Emit(events.ModulePaused{Caller: caller, Module: module, Paused: payload.Paused})
	writeResult(w, req.ID, map[string]interface{}{
		"module": module,
		"paused": payload.Paused,
	})
}
