package treasury

import (
	"fmt"

	"github.com/holiman/uint256"

	"prism/crypto"
	"prism/native/ema"
	"prism/native/fixedpoint"
)

var (
	stateKey     = []byte("treasury/state")
	whitelistKey = []byte("treasury/whitelist")
)

// Stored EMA fields must fit the narrow column reserved for them. The 100x
// clamp keeps real values near 2^67; anything wider means corrupt state.
var maxStoredEMA = func() *uint256.Int {
	limit := new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	return limit.Sub(limit, uint256.NewInt(1))
}()

// State bundles the persistent treasury scalars together with the leverage
// EMA. It is loaded fresh per operation and written back only by mutating
// calls.
type State struct {
	TotalBaseToken        *uint256.Int
	LastPermissionedPrice *uint256.Int
	BaseTokenCap          *uint256.Int
	Beta                  *uint256.Int
	EMA                   *ema.Tracker
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		TotalBaseToken:        fixedpoint.Clone(s.TotalBaseToken),
		LastPermissionedPrice: fixedpoint.Clone(s.LastPermissionedPrice),
		BaseTokenCap:          fixedpoint.Clone(s.BaseTokenCap),
		Beta:                  fixedpoint.Clone(s.Beta),
		EMA:                   s.EMA.Clone(),
	}
}

type storedState struct {
	TotalBaseToken        string
	LastPermissionedPrice string
	BaseTokenCap          string
	Beta                  string
	EMALastTime           uint64
	EMASampleInterval     uint64
	EMALastValue          string
	EMALastEmaValue       string
}

type storedWhitelist struct {
	Members [][]byte
}

func parseAmount(field, value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("treasury: corrupt %s: %w", field, err)
	}
	return amount, nil
}

func (e *Engine) loadState() (*State, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var stored storedState
	ok, err := e.state.KVGet(stateKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return e.freshState()
	}
	total, err := parseAmount("totalBaseToken", stored.TotalBaseToken)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("lastPermissionedPrice", stored.LastPermissionedPrice)
	if err != nil {
		return nil, err
	}
	cap, err := parseAmount("baseTokenCap", stored.BaseTokenCap)
	if err != nil {
		return nil, err
	}
	beta, err := parseAmount("beta", stored.Beta)
	if err != nil {
		return nil, err
	}
	lastValue, err := parseAmount("emaLastValue", stored.EMALastValue)
	if err != nil {
		return nil, err
	}
	lastEma, err := parseAmount("emaLastEmaValue", stored.EMALastEmaValue)
	if err != nil {
		return nil, err
	}
	tracker := ema.NewTracker()
	tracker.LastTime = stored.EMALastTime
	tracker.SampleInterval = stored.EMASampleInterval
	tracker.LastValue = lastValue
	tracker.LastEmaValue = lastEma
	tracker.SetClock(e.clock)
	return &State{
		TotalBaseToken:        total,
		LastPermissionedPrice: price,
		BaseTokenCap:          cap,
		Beta:                  beta,
		EMA:                   tracker,
	}, nil
}

// freshState seeds a never-persisted treasury with the configured defaults.
// The EMA starts at one, matching a balanced system before the first deposit.
func (e *Engine) freshState() (*State, error) {
	tracker := ema.NewTracker()
	tracker.SetClock(e.clock)
	interval := e.defaultSampleInterval
	if interval == 0 {
		interval = defaultEMASampleInterval
	}
	if err := tracker.Initialize(interval); err != nil {
		return nil, err
	}
	return &State{
		TotalBaseToken:        new(uint256.Int),
		LastPermissionedPrice: new(uint256.Int),
		BaseTokenCap:          fixedpoint.Clone(e.defaultBaseTokenCap),
		Beta:                  fixedpoint.Clone(e.defaultBeta),
		EMA:                   tracker,
	}, nil
}

func (e *Engine) persistState(st *State) error {
	if e.state == nil {
		return errNilState
	}
	if st == nil || st.EMA == nil {
		return fmt.Errorf("treasury: state incomplete")
	}
	if st.EMA.LastValue.Gt(maxStoredEMA) || st.EMA.LastEmaValue.Gt(maxStoredEMA) {
		return ErrInvariantViolation
	}
	stored := storedState{
		TotalBaseToken:        st.TotalBaseToken.String(),
		LastPermissionedPrice: st.LastPermissionedPrice.String(),
		BaseTokenCap:          st.BaseTokenCap.String(),
		Beta:                  st.Beta.String(),
		EMALastTime:           st.EMA.LastTime,
		EMASampleInterval:     st.EMA.SampleInterval,
		EMALastValue:          st.EMA.LastValue.String(),
		EMALastEmaValue:       st.EMA.LastEmaValue.String(),
	}
	return e.state.KVPut(stateKey, stored)
}

func (e *Engine) loadWhitelist() ([]crypto.Address, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var stored storedWhitelist
	ok, err := e.state.KVGet(whitelistKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []crypto.Address{}, nil
	}
	members := make([]crypto.Address, 0, len(stored.Members))
	for _, raw := range stored.Members {
		addr, err := crypto.NewAddress(crypto.PrismPrefix, raw)
		if err != nil {
			return nil, fmt.Errorf("treasury: corrupt whitelist entry: %w", err)
		}
		members = append(members, addr)
	}
	return members, nil
}

func (e *Engine) persistWhitelist(members []crypto.Address) error {
	stored := storedWhitelist{Members: make([][]byte, 0, len(members))}
	for _, member := range members {
		stored.Members = append(stored.Members, member.Bytes())
	}
	return e.state.KVPut(whitelistKey, stored)
}
