package treasury

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"prism/native/fixedpoint"
)

func newStateEngine(t *testing.T) (*Engine, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	engine := NewEngine(nil, testAddr(0xBB))
	engine.SetState(store)
	engine.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return engine, store
}

func TestLoadStateFreshDefaults(t *testing.T) {
	engine, _ := newStateEngine(t)
	engine.SetDefaultBaseTokenCap(uint256.NewInt(77))
	engine.SetDefaultSampleInterval(120)
	st, err := engine.loadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !st.TotalBaseToken.IsZero() || !st.LastPermissionedPrice.IsZero() || !st.Beta.IsZero() {
		t.Fatalf("expected zero scalars, got %s/%s/%s", st.TotalBaseToken, st.LastPermissionedPrice, st.Beta)
	}
	if st.BaseTokenCap.Uint64() != 77 {
		t.Fatalf("expected default cap 77, got %s", st.BaseTokenCap)
	}
	if !st.EMA.Initialized() {
		t.Fatalf("expected initialized tracker")
	}
	if st.EMA.SampleInterval != 120 {
		t.Fatalf("expected interval 120, got %d", st.EMA.SampleInterval)
	}
	if st.EMA.LastTime != 1_700_000_000 {
		t.Fatalf("expected last time from clock, got %d", st.EMA.LastTime)
	}
	if !st.EMA.LastEmaValue.Eq(fixedpoint.One()) {
		t.Fatalf("expected average seeded at one, got %s", st.EMA.LastEmaValue)
	}
}

func TestStatePersistenceRoundTrip(t *testing.T) {
	engine, _ := newStateEngine(t)
	st, err := engine.loadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st.TotalBaseToken = uint256.NewInt(123_456)
	st.LastPermissionedPrice = fixedpoint.MustFromDecimal("1.5")
	st.BaseTokenCap = uint256.NewInt(999_999)
	st.Beta = fixedpoint.MustFromDecimal("0.25")
	st.EMA.LastTime = 1_700_000_111
	st.EMA.SampleInterval = 900
	st.EMA.LastValue = fixedpoint.MustFromDecimal("2.5")
	st.EMA.LastEmaValue = fixedpoint.MustFromDecimal("1.75")
	if err := engine.persistState(st); err != nil {
		t.Fatalf("persist: %v", err)
	}

	loaded, err := engine.loadState()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !loaded.TotalBaseToken.Eq(st.TotalBaseToken) {
		t.Fatalf("total mismatch: %s", loaded.TotalBaseToken)
	}
	if !loaded.LastPermissionedPrice.Eq(st.LastPermissionedPrice) {
		t.Fatalf("price mismatch: %s", loaded.LastPermissionedPrice)
	}
	if !loaded.BaseTokenCap.Eq(st.BaseTokenCap) {
		t.Fatalf("cap mismatch: %s", loaded.BaseTokenCap)
	}
	if !loaded.Beta.Eq(st.Beta) {
		t.Fatalf("beta mismatch: %s", loaded.Beta)
	}
	if loaded.EMA.LastTime != 1_700_000_111 || loaded.EMA.SampleInterval != 900 {
		t.Fatalf("tracker clock mismatch: %d/%d", loaded.EMA.LastTime, loaded.EMA.SampleInterval)
	}
	if !loaded.EMA.LastValue.Eq(st.EMA.LastValue) || !loaded.EMA.LastEmaValue.Eq(st.EMA.LastEmaValue) {
		t.Fatalf("tracker value mismatch: %s/%s", loaded.EMA.LastValue, loaded.EMA.LastEmaValue)
	}
}

func TestPersistStateRejectsOversizedTrackerValue(t *testing.T) {
	engine, _ := newStateEngine(t)
	st, err := engine.loadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st.EMA.LastValue = new(uint256.Int).Add(maxStoredEMA, uint256.NewInt(1))
	if err := engine.persistState(st); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestLoadStateCorruptAmount(t *testing.T) {
	engine, store := newStateEngine(t)
	if err := store.KVPut(stateKey, storedState{TotalBaseToken: "not a number"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := engine.loadState(); err == nil {
		t.Fatalf("expected corrupt state to fail")
	}
}
