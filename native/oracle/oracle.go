package oracle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"prism/native/fixedpoint"
)

// ErrNoFreshQuote indicates that no registered feed produced a usable quote
// within the configured freshness window.
var ErrNoFreshQuote = errors.New("oracle: no fresh quote available")

const basisPoints = 10_000

// PriceOracle reports the collateral price in 1e18 fixed point. The boolean
// flag carries validity: callers must treat valid == false as a hard stop and
// leave state untouched.
type PriceOracle interface {
	Price() (bool, *uint256.Int)
}

// Quote is a single observation from an upstream feed.
type Quote struct {
	Price     *uint256.Int
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(uint256.Int).Set(q.Price)
	}
	return clone
}

// Feed is an upstream price source consulted by the Aggregator.
type Feed interface {
	Quote() (Quote, error)
}

// Aggregator consults registered feeds in priority order until a fresh quote
// inside the deviation bound is obtained. It exposes the accepted price
// through the PriceOracle interface consumed by the treasury.
type Aggregator struct {
	mu           sync.RWMutex
	priority     []string
	feeds        map[string]Feed
	maxAge       time.Duration
	maxDeviation uint64
	lastPrice    *uint256.Int
	lastAccepted time.Time
	now          func() time.Time
}

// NewAggregator constructs an aggregator with the provided priority ordering
// and freshness window. A zero maxAge disables the freshness check.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	return &Aggregator{
		priority: append([]string{}, priority...),
		feeds:    make(map[string]Feed),
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Passing nil restores the wall clock.
func (a *Aggregator) SetClock(clock func() time.Time) {
	if a == nil {
		return
	}
	a.mu.Lock()
	if clock == nil {
		a.now = time.Now
	} else {
		a.now = clock
	}
	a.mu.Unlock()
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// SetMaxDeviationBps bounds how far a candidate quote may move from the last
// accepted price, in basis points. Zero disables the guard.
func (a *Aggregator) SetMaxDeviationBps(bps uint64) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxDeviation = bps
	a.mu.Unlock()
}

// SetPriority replaces the priority ordering used when consulting feeds.
func (a *Aggregator) SetPriority(priority []string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.priority = append([]string{}, priority...)
	a.mu.Unlock()
}

// Register adds or replaces a feed under the supplied identifier. Identifiers
// are stored in lowercase so lookups stay consistent regardless of the
// configuration casing.
func (a *Aggregator) Register(name string, feed Feed) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feeds[trimmed] = feed
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// Price walks the priority list and returns the first quote that is positive,
// fresh and within the deviation bound. When every feed fails the previous
// accepted price is not reused: the caller sees an invalid reading.
func (a *Aggregator) Price() (bool, *uint256.Int) {
	quote, err := a.Accept()
	if err != nil {
		return false, nil
	}
	return true, quote.Price
}

// Accept performs the same walk as Price but surfaces the winning quote and
// the reason for rejection, which the status endpoints report verbatim.
func (a *Aggregator) Accept() (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("oracle: aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	maxDeviation := a.maxDeviation
	var last *uint256.Int
	if a.lastPrice != nil {
		last = new(uint256.Int).Set(a.lastPrice)
	}
	nowFn := a.now
	a.mu.RUnlock()

	now := nowFn()
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = now.Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		feed := a.feeds[strings.ToLower(name)]
		a.mu.RUnlock()
		if feed == nil {
			continue
		}
		quote, err := feed.Quote()
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == nil || quote.Price.IsZero() {
			lastErr = fmt.Errorf("oracle: feed %s returned invalid price", name)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		if maxDeviation > 0 && last != nil && !last.IsZero() {
			if exceedsDeviation(last, quote.Price, maxDeviation) {
				lastErr = fmt.Errorf("oracle: feed %s deviates beyond %d bps", name, maxDeviation)
				continue
			}
		}
		accepted := quote.Clone()
		if strings.TrimSpace(accepted.Source) == "" {
			accepted.Source = strings.ToLower(name)
		}
		a.mu.Lock()
		a.lastPrice = new(uint256.Int).Set(accepted.Price)
		a.lastAccepted = now
		a.mu.Unlock()
		return accepted, nil
	}

	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return Quote{}, lastErr
}

// LastAccepted reports the most recently accepted price and when the
// aggregator accepted it. ok is false before the first acceptance.
func (a *Aggregator) LastAccepted() (price *uint256.Int, at time.Time, ok bool) {
	if a == nil {
		return nil, time.Time{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastPrice == nil {
		return nil, time.Time{}, false
	}
	return new(uint256.Int).Set(a.lastPrice), a.lastAccepted, true
}

// exceedsDeviation reports whether candidate moved more than bound basis
// points away from reference.
func exceedsDeviation(reference, candidate *uint256.Int, bound uint64) bool {
	diff := new(uint256.Int)
	if candidate.Gt(reference) {
		diff.Sub(candidate, reference)
	} else {
		diff.Sub(reference, candidate)
	}
	scaled, overflow := new(uint256.Int).MulOverflow(diff, uint256.NewInt(basisPoints))
	if overflow {
		return true
	}
	limit, overflow := new(uint256.Int).MulOverflow(reference, uint256.NewInt(bound))
	if overflow {
		return false
	}
	return scaled.Gt(limit)
}

// ManualOracle provides an in-memory feed used for permissioned price pushes
// and manual overrides during incident response. It implements both Feed and
// PriceOracle so single-feed deployments can wire it directly.
type ManualOracle struct {
	mu    sync.RWMutex
	quote Quote
	set   bool
}

// NewManualOracle constructs an empty manual oracle instance.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{}
}

// Set stores the supplied 1e18 fixed point price with the provided timestamp.
func (m *ManualOracle) Set(price *uint256.Int, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("oracle: manual oracle not configured")
	}
	if price == nil || price.IsZero() {
		return fmt.Errorf("oracle: price must be positive")
	}
	m.mu.Lock()
	m.quote = Quote{Price: new(uint256.Int).Set(price), Timestamp: ts, Source: "manual"}
	m.set = true
	m.mu.Unlock()
	return nil
}

// SetDecimal parses a decimal price such as "1.25" into 1e18 fixed point and
// stores it with the provided timestamp.
func (m *ManualOracle) SetDecimal(price string, ts time.Time) error {
	parsed, err := fixedpoint.FromDecimal(price)
	if err != nil {
		return fmt.Errorf("oracle: invalid price %q: %w", price, err)
	}
	return m.Set(parsed, ts)
}

// Invalidate clears the stored quote so subsequent reads report invalid.
func (m *ManualOracle) Invalidate() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.quote = Quote{}
	m.set = false
	m.mu.Unlock()
}

// Quote returns the stored observation for aggregator consumption.
func (m *ManualOracle) Quote() (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("oracle: manual oracle not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return Quote{}, ErrNoFreshQuote
	}
	return m.quote.Clone(), nil
}

// Price implements PriceOracle for deployments that skip the aggregator.
func (m *ManualOracle) Price() (bool, *uint256.Int) {
	quote, err := m.Quote()
	if err != nil {
		return false, nil
	}
	return true, quote.Price
}
