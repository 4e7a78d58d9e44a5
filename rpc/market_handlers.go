package rpc

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"prism/crypto"
	"prism/native/token"
	"prism/observability"
)

// observeMarket funnels the call outcome into the market metric family using
// the shared reason taxonomy.
func observeMarket(operation string, err error) {
	if err == nil {
		observability.Market().Observe(operation, "")
		return
	}
	_, _, reason := engineErrorClass(err)
	observability.Market().Observe(operation, reason)
}

// resolveRecipient decodes an optional recipient, defaulting to the caller.
func resolveRecipient(value string, caller crypto.Address) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return caller, nil
	}
	return parseAddressParam("recipient", value)
}

func isAllBalance(amount *uint256.Int) bool {
	return amount != nil && amount.Eq(new(uint256.Int).SetAllOne())
}

// resolveSpend materializes the full-balance sentinel against the owner's
// ledger so responses echo concrete amounts.
func (s *Server) resolveSpend(amount *uint256.Int, ledger token.Token, owner crypto.Address) (*uint256.Int, error) {
	if !isAllBalance(amount) {
		return amount, nil
	}
	balance, err := ledger.BalanceOf(owner)
	if err != nil {
		return nil, err
	}
	if balance.IsZero() {
		return nil, token.ErrInsufficientBalance
	}
	return balance, nil
}

func (s *Server) handleMintFractional(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	const operation = "mint_fractional"
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with baseIn", nil)
		return
	}
	var payload struct {
		Recipient        string `json:"recipient"`
		BaseIn           string `json:"baseIn"`
		MinFractionalOut string `json:"minFractionalOut"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	recipient, err := resolveRecipient(payload.Recipient, caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	baseIn, err := parseAmountParam("baseIn", payload.BaseIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minOut, err := parseOptionalAmount("minFractionalOut", payload.MinFractionalOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	baseIn, err = s.resolveSpend(baseIn, s.svc.Tokens.Base, caller)
	if err != nil {
		observeMarket(operation, err)
		writeEngineError(w, req.ID, err)
		return
	}
	minted, fee, err := s.svc.Market.MintFractional(caller, recipient, baseIn, minOut)
	observeMarket(operation, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.Market().RecordFee(operation, fee)
	writeResult(w, req.ID, MintResult{
		Caller:        caller.String(),
		Recipient:     recipient.String(),
		BaseIn:        formatAmount(baseIn),
		FractionalOut: formatAmount(minted),
		Fee:           formatAmount(fee),
	})
}

func (s *Server) handleMintLeveraged(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	const operation = "mint_leveraged"
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with baseIn", nil)
		return
	}
	var payload struct {
		Recipient       string `json:"recipient"`
		BaseIn          string `json:"baseIn"`
		MinLeveragedOut string `json:"minLeveragedOut"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	recipient, err := resolveRecipient(payload.Recipient, caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	baseIn, err := parseAmountParam("baseIn", payload.BaseIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minOut, err := parseOptionalAmount("minLeveragedOut", payload.MinLeveragedOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	baseIn, err = s.resolveSpend(baseIn, s.svc.Tokens.Base, caller)
	if err != nil {
		observeMarket(operation, err)
		writeEngineError(w, req.ID, err)
		return
	}
	minted, fee, err := s.svc.Market.MintLeveraged(caller, recipient, baseIn, minOut)
	observeMarket(operation, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.Market().RecordFee(operation, fee)
	writeResult(w, req.ID, MintResult{
		Caller:       caller.String(),
		Recipient:    recipient.String(),
		BaseIn:       formatAmount(baseIn),
		LeveragedOut: formatAmount(minted),
		Fee:          formatAmount(fee),
	})
}

func (s *Server) handleMintBoth(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	const operation = "mint_both"
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with baseIn", nil)
		return
	}
	var payload struct {
		Recipient        string `json:"recipient"`
		BaseIn           string `json:"baseIn"`
		MinFractionalOut string `json:"minFractionalOut"`
		MinLeveragedOut  string `json:"minLeveragedOut"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	recipient, err := resolveRecipient(payload.Recipient, caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	baseIn, err := parseAmountParam("baseIn", payload.BaseIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minFractionalOut, err := parseOptionalAmount("minFractionalOut", payload.MinFractionalOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minLeveragedOut, err := parseOptionalAmount("minLeveragedOut", payload.MinLeveragedOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	baseIn, err = s.resolveSpend(baseIn, s.svc.Tokens.Base, caller)
	if err != nil {
		observeMarket(operation, err)
		writeEngineError(w, req.ID, err)
		return
	}
	fractionalOut, leveragedOut, err := s.svc.Market.MintBoth(caller, recipient, baseIn, minFractionalOut, minLeveragedOut)
	observeMarket(operation, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, MintResult{
		Caller:        caller.String(),
		Recipient:     recipient.String(),
		BaseIn:        formatAmount(baseIn),
		FractionalOut: formatAmount(fractionalOut),
		LeveragedOut:  formatAmount(leveragedOut),
		Fee:           "0",
	})
}

type redeemPayload struct {
	Recipient    string `json:"recipient"`
	FractionalIn string `json:"fractionalIn"`
	LeveragedIn  string `json:"leveragedIn"`
	MinBaseOut   string `json:"minBaseOut"`
}

func (s *Server) parseRedeem(w http.ResponseWriter, req *RPCRequest, caller crypto.Address) (crypto.Address, *uint256.Int, *uint256.Int, *uint256.Int, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with fractionalIn or leveragedIn", nil)
		return crypto.Address{}, nil, nil, nil, false
	}
	var payload redeemPayload
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return crypto.Address{}, nil, nil, nil, false
	}
	recipient, err := resolveRecipient(payload.Recipient, caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return crypto.Address{}, nil, nil, nil, false
	}
	fractionalIn, err := parseOptionalAmount("fractionalIn", payload.FractionalIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return crypto.Address{}, nil, nil, nil, false
	}
	leveragedIn, err := parseOptionalAmount("leveragedIn", payload.LeveragedIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return crypto.Address{}, nil, nil, nil, false
	}
	if (fractionalIn == nil) == (leveragedIn == nil) {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one of fractionalIn or leveragedIn required", nil)
		return crypto.Address{}, nil, nil, nil, false
	}
	minBaseOut, err := parseOptionalAmount("minBaseOut", payload.MinBaseOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return crypto.Address{}, nil, nil, nil, false
	}
	return recipient, fractionalIn, leveragedIn, minBaseOut, true
}

func (s *Server) handleRedeem(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	recipient, fractionalIn, leveragedIn, minBaseOut, ok := s.parseRedeem(w, req, caller)
	if !ok {
		return
	}
	operation := "redeem_fractional"
	if fractionalIn == nil {
		operation = "redeem_leveraged"
	}
	var err error
	if fractionalIn != nil {
		fractionalIn, err = s.resolveSpend(fractionalIn, s.svc.Tokens.Fractional, caller)
	} else {
		leveragedIn, err = s.resolveSpend(leveragedIn, s.svc.Tokens.Leveraged, caller)
	}
	if err != nil {
		observeMarket(operation, err)
		writeEngineError(w, req.ID, err)
		return
	}
	baseOut, fee, err := s.svc.Market.Redeem(caller, recipient, fractionalIn, leveragedIn, minBaseOut)
	observeMarket(operation, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.Market().RecordFee(operation, fee)
	result := RedeemResult{
		Caller:    caller.String(),
		Recipient: recipient.String(),
		BaseOut:   formatAmount(baseOut),
		Fee:       formatAmount(fee),
	}
	if fractionalIn != nil {
		result.FractionalIn = formatAmount(fractionalIn)
	}
	if leveragedIn != nil {
		result.LeveragedIn = formatAmount(leveragedIn)
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleRedeemFractional(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	const operation = "redeem_fractional"
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with fractionalIn", nil)
		return
	}
	var payload struct {
		Recipient    string `json:"recipient"`
		FractionalIn string `json:"fractionalIn"`
		MinBaseOut   string `json:"minBaseOut"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	recipient, err := resolveRecipient(payload.Recipient, caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	fractionalIn, err := parseAmountParam("fractionalIn", payload.FractionalIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minBaseOut, err := parseOptionalAmount("minBaseOut", payload.MinBaseOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	fractionalIn, err = s.resolveSpend(fractionalIn, s.svc.Tokens.Fractional, caller)
	if err != nil {
		observeMarket(operation, err)
		writeEngineError(w, req.ID, err)
		return
	}
	baseOut, fee, err := s.svc.Market.RedeemFractional(caller, recipient, fractionalIn, minBaseOut)
	observeMarket(operation, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.Market().RecordFee(operation, fee)
	writeResult(w, req.ID, RedeemResult{
		Caller:       caller.String(),
		Recipient:    recipient.String(),
		FractionalIn: formatAmount(fractionalIn),
		BaseOut:      formatAmount(baseOut),
		Fee:          formatAmount(fee),
	})
}

func (s *Server) handleRedeemLeveraged(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	const operation = "redeem_leveraged"
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with leveragedIn", nil)
		return
	}
	var payload struct {
		Recipient   string `json:"recipient"`
		LeveragedIn string `json:"leveragedIn"`
		MinBaseOut  string `json:"minBaseOut"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	recipient, err := resolveRecipient(payload.Recipient, caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	leveragedIn, err := parseAmountParam("leveragedIn", payload.LeveragedIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minBaseOut, err := parseOptionalAmount("minBaseOut", payload.MinBaseOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	leveragedIn, err = s.resolveSpend(leveragedIn, s.svc.Tokens.Leveraged, caller)
	if err != nil {
		observeMarket(operation, err)
		writeEngineError(w, req.ID, err)
		return
	}
	baseOut, fee, err := s.svc.Market.RedeemLeveraged(caller, recipient, leveragedIn, minBaseOut)
	observeMarket(operation, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.Market().RecordFee(operation, fee)
	writeResult(w, req.ID, RedeemResult{
		Caller:      caller.String(),
		Recipient:   recipient.String(),
		LeveragedIn: formatAmount(leveragedIn),
		BaseOut:     formatAmount(baseOut),
		Fee:         formatAmount(fee),
	})
}
