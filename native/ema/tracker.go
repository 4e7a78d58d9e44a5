package ema

import (
	"errors"
	"time"

	"github.com/holiman/uint256"

	"prism/native/fixedpoint"
)

var (
	ErrAlreadyInitialized = errors.New("ema: tracker already initialized")
	ErrNotInitialized     = errors.New("ema: tracker not initialized")
	ErrInvalidInterval    = errors.New("ema: sample interval must be positive")
)

var (
	precision = fixedpoint.MustFromDecimal("1")
	// Tracked values are clamped to the 100x leverage sentinel before any
	// update, so every stored field fits comfortably inside 96 bits.
	maxTracked = fixedpoint.MustFromDecimal("100")
)

// Tracker maintains a time sampled exponential moving average. Writes between
// sample boundaries only stage the latest raw value; once one or more full
// intervals elapse the staged value is folded into the average with a weight
// that compounds per missed interval. The smoothing factor is 1/2 per
// interval, so k elapsed intervals fold with weight 1 - (1/2)^k.
type Tracker struct {
	LastTime       uint64
	SampleInterval uint64
	LastValue      *uint256.Int
	LastEmaValue   *uint256.Int

	clock func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		LastValue:    new(uint256.Int),
		LastEmaValue: new(uint256.Int),
	}
}

// SetClock overrides the time source. Passing nil restores the wall clock.
func (t *Tracker) SetClock(clock func() time.Time) {
	if t == nil {
		return
	}
	t.clock = clock
}

func (t *Tracker) now() uint64 {
	clock := time.Now
	if t.clock != nil {
		clock = t.clock
	}
	ts := clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// Initialized reports whether Initialize has run.
func (t *Tracker) Initialized() bool {
	return t != nil && t.LastTime != 0
}

// Initialize seeds the average at one unit and starts the sample clock. It
// can only run once.
func (t *Tracker) Initialize(sampleInterval uint64) error {
	if t.Initialized() {
		return ErrAlreadyInitialized
	}
	if sampleInterval == 0 {
		return ErrInvalidInterval
	}
	t.SampleInterval = sampleInterval
	t.LastValue = fixedpoint.One()
	t.LastEmaValue = fixedpoint.One()
	t.LastTime = t.now()
	return nil
}

// SaveValue records a new observation. Values beyond the tracked maximum are
// clamped first. Before the first full interval elapses only the staged raw
// value moves; the average itself is untouched.
func (t *Tracker) SaveValue(value *uint256.Int) error {
	if !t.Initialized() {
		return ErrNotInitialized
	}
	clamped := fixedpoint.Clone(value)
	if clamped.Gt(maxTracked) {
		clamped.Set(maxTracked)
	}
	now := t.now()
	if now < t.LastTime {
		// Clock read went backwards; keep lastTime monotone and only stage
		// the value.
		t.LastValue = clamped
		return nil
	}
	elapsed := now - t.LastTime
	if elapsed < t.SampleInterval {
		t.LastValue = clamped
		return nil
	}
	intervals := elapsed / t.SampleInterval
	folded, err := fold(t.LastEmaValue, t.LastValue, intervals)
	if err != nil {
		return err
	}
	t.LastTime += intervals * t.SampleInterval
	t.LastEmaValue = folded
	t.LastValue = clamped
	return nil
}

// Flush folds any pending full intervals using the currently staged value,
// without recording a new observation. The treasury flushes before changing
// the sample interval so a pending window is never silently dropped.
func (t *Tracker) Flush() error {
	if !t.Initialized() {
		return ErrNotInitialized
	}
	return t.SaveValue(t.LastValue)
}

// UpdateSampleInterval flushes at the old interval and then switches to the
// new one.
func (t *Tracker) UpdateSampleInterval(sampleInterval uint64) error {
	if sampleInterval == 0 {
		return ErrInvalidInterval
	}
	if err := t.Flush(); err != nil {
		return err
	}
	t.SampleInterval = sampleInterval
	return nil
}

// EmaValue returns the current average.
func (t *Tracker) EmaValue() *uint256.Int {
	if t == nil {
		return new(uint256.Int)
	}
	return fixedpoint.Clone(t.LastEmaValue)
}

// Clone returns a deep copy sharing the clock.
func (t *Tracker) Clone() *Tracker {
	if t == nil {
		return nil
	}
	return &Tracker{
		LastTime:       t.LastTime,
		SampleInterval: t.SampleInterval,
		LastValue:      fixedpoint.Clone(t.LastValue),
		LastEmaValue:   fixedpoint.Clone(t.LastEmaValue),
		clock:          t.clock,
	}
}

// fold moves the average toward the staged value with weight 1 - (1/2)^k.
// One elapsed interval averages the two, many elapsed intervals converge on
// the staged value; from 60 intervals the residual weight truncates to zero.
func fold(emaValue, staged *uint256.Int, intervals uint64) (*uint256.Int, error) {
	weight := decayWeight(intervals)
	if staged.Lt(emaValue) {
		gap, err := fixedpoint.Sub(emaValue, staged)
		if err != nil {
			return nil, err
		}
		step, err := fixedpoint.MulDiv(gap, weight, precision)
		if err != nil {
			return nil, err
		}
		return fixedpoint.Sub(emaValue, step)
	}
	gap, err := fixedpoint.Sub(staged, emaValue)
	if err != nil {
		return nil, err
	}
	step, err := fixedpoint.MulDiv(gap, weight, precision)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(emaValue, step)
}

func decayWeight(intervals uint64) *uint256.Int {
	if intervals >= 60 {
		return fixedpoint.One()
	}
	residual := new(uint256.Int).Rsh(precision, uint(intervals))
	weight := new(uint256.Int).Sub(precision, residual)
	return weight
}
