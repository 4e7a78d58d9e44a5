package ema

import (
	"errors"
	"testing"
	"time"

	"prism/native/fixedpoint"
)

func newTestTracker(t *testing.T, interval uint64) (*Tracker, *time.Time) {
	t.Helper()
	current := time.Unix(1_700_000_000, 0)
	tracker := NewTracker()
	tracker.SetClock(func() time.Time { return current })
	if err := tracker.Initialize(interval); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	return tracker, &current
}

func TestInitializeOnce(t *testing.T) {
	tracker, _ := newTestTracker(t, 60)
	if err := tracker.Initialize(60); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	fresh := NewTracker()
	if err := fresh.Initialize(0); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected invalid interval, got %v", err)
	}
}

func TestSaveBeforeInitialize(t *testing.T) {
	tracker := NewTracker()
	if err := tracker.SaveValue(fixedpoint.One()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestSaveWithinIntervalOnlyStages(t *testing.T) {
	tracker, current := newTestTracker(t, 60)
	before := tracker.EmaValue()

	*current = current.Add(30 * time.Second)
	if err := tracker.SaveValue(fixedpoint.MustFromDecimal("3")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !tracker.EmaValue().Eq(before) {
		t.Fatalf("average moved before the first interval elapsed")
	}
	if !tracker.LastValue.Eq(fixedpoint.MustFromDecimal("3")) {
		t.Fatalf("staged value not recorded")
	}
}

func TestSingleIntervalFoldsHalfway(t *testing.T) {
	tracker, current := newTestTracker(t, 60)

	*current = current.Add(10 * time.Second)
	if err := tracker.SaveValue(fixedpoint.MustFromDecimal("3")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	*current = current.Add(60 * time.Second)
	if err := tracker.SaveValue(fixedpoint.One()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	// Staged 3.0 folded into the 1.0 average with weight 1/2.
	if got := tracker.EmaValue(); !got.Eq(fixedpoint.MustFromDecimal("2")) {
		t.Fatalf("expected 2.0, got %s", got)
	}
}

func TestMissedIntervalsCompound(t *testing.T) {
	tracker, current := newTestTracker(t, 60)

	*current = current.Add(10 * time.Second)
	if err := tracker.SaveValue(fixedpoint.MustFromDecimal("3")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	// Two full intervals elapse before the next write, so the staged value
	// folds with weight 1 - (1/2)^2 = 3/4.
	*current = current.Add(125 * time.Second)
	if err := tracker.SaveValue(fixedpoint.One()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if got := tracker.EmaValue(); !got.Eq(fixedpoint.MustFromDecimal("2.5")) {
		t.Fatalf("expected 2.5, got %s", got)
	}
}

func TestValuesClampToSentinel(t *testing.T) {
	tracker, current := newTestTracker(t, 60)

	*current = current.Add(10 * time.Second)
	if err := tracker.SaveValue(fixedpoint.MustFromDecimal("500")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !tracker.LastValue.Eq(fixedpoint.MustFromDecimal("100")) {
		t.Fatalf("staged value not clamped: %s", tracker.LastValue)
	}
	*current = current.Add(20 * time.Minute)
	if err := tracker.SaveValue(fixedpoint.One()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if tracker.EmaValue().Gt(fixedpoint.MustFromDecimal("100")) {
		t.Fatalf("average escaped the sentinel: %s", tracker.EmaValue())
	}
}

func TestUpdateSampleIntervalFlushesPending(t *testing.T) {
	tracker, current := newTestTracker(t, 60)

	*current = current.Add(10 * time.Second)
	if err := tracker.SaveValue(fixedpoint.MustFromDecimal("3")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	*current = current.Add(70 * time.Second)
	if err := tracker.UpdateSampleInterval(600); err != nil {
		t.Fatalf("update interval failed: %v", err)
	}
	if tracker.SampleInterval != 600 {
		t.Fatalf("interval not updated")
	}
	// The pending window sampled at the old 60s interval before switching.
	if got := tracker.EmaValue(); !got.Eq(fixedpoint.MustFromDecimal("2")) {
		t.Fatalf("expected flush at old interval, got %s", got)
	}
}

func TestBackwardsClockOnlyStages(t *testing.T) {
	tracker, current := newTestTracker(t, 60)
	before := tracker.EmaValue()
	lastTime := tracker.LastTime

	*current = current.Add(-time.Hour)
	if err := tracker.SaveValue(fixedpoint.MustFromDecimal("4")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !tracker.EmaValue().Eq(before) || tracker.LastTime != lastTime {
		t.Fatalf("backwards clock must not fold or move the sample clock")
	}
	if !tracker.LastValue.Eq(fixedpoint.MustFromDecimal("4")) {
		t.Fatalf("staged value not recorded")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tracker, current := newTestTracker(t, 60)
	clone := tracker.Clone()

	*current = current.Add(2 * time.Minute)
	if err := tracker.SaveValue(fixedpoint.MustFromDecimal("5")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if clone.LastValue.Eq(tracker.LastValue) && clone.LastTime == tracker.LastTime {
		t.Fatalf("clone tracked the original")
	}
}
