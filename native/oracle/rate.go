package oracle

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"prism/native/fixedpoint"
)

// RateProvider reports the wrapped-to-underlying conversion rate in 1e18
// fixed point. A rate of 1e18 means one wrapped unit unwraps to exactly one
// underlying unit.
type RateProvider interface {
	Rate() (*uint256.Int, error)
}

// StaticRateProvider serves a fixed conversion rate that operators can adjust
// out of band. Deployments with a non rebasing collateral keep the rate at
// one.
type StaticRateProvider struct {
	mu   sync.RWMutex
	rate *uint256.Int
}

// NewStaticRateProvider constructs a provider with the supplied 1e18 rate.
func NewStaticRateProvider(rate *uint256.Int) (*StaticRateProvider, error) {
	provider := &StaticRateProvider{}
	if err := provider.Update(rate); err != nil {
		return nil, err
	}
	return provider, nil
}

// NewUnitRateProvider constructs a provider pinned to a rate of one.
func NewUnitRateProvider() *StaticRateProvider {
	return &StaticRateProvider{rate: fixedpoint.One()}
}

// Update replaces the served rate.
func (p *StaticRateProvider) Update(rate *uint256.Int) error {
	if p == nil {
		return fmt.Errorf("oracle: rate provider not configured")
	}
	if rate == nil || rate.IsZero() {
		return fmt.Errorf("oracle: rate must be positive")
	}
	p.mu.Lock()
	p.rate = new(uint256.Int).Set(rate)
	p.mu.Unlock()
	return nil
}

// UpdateDecimal parses a decimal rate such as "1.05" and replaces the served
// rate.
func (p *StaticRateProvider) UpdateDecimal(rate string) error {
	parsed, err := fixedpoint.FromDecimal(rate)
	if err != nil {
		return fmt.Errorf("oracle: invalid rate %q: %w", rate, err)
	}
	return p.Update(parsed)
}

// Rate returns a defensive copy of the served rate.
func (p *StaticRateProvider) Rate() (*uint256.Int, error) {
	if p == nil {
		return nil, fmt.Errorf("oracle: rate provider not configured")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.rate == nil || p.rate.IsZero() {
		return nil, fmt.Errorf("oracle: rate must be positive")
	}
	return new(uint256.Int).Set(p.rate), nil
}
