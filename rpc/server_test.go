package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang-jwt/jwt/v5"
	"github.com/holiman/uint256"

	"prism/core/events"
	"prism/crypto"
	nativecommon "prism/native/common"
	"prism/native/fixedpoint"
	"prism/native/market"
	"prism/native/oracle"
	"prism/native/token"
	"prism/native/treasury"
)

const testSecret = "rpc-test-secret"

type memoryStore struct {
	entries map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string][]byte)}
}

func (m *memoryStore) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := m.entries[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	return true, rlp.DecodeBytes(raw, out)
}

func (m *memoryStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.entries[string(key)] = encoded
	return nil
}

func testAddr(b byte) crypto.Address {
	return crypto.MustNewAddress(crypto.PrismPrefix, bytes.Repeat([]byte{b}, 20))
}

func amt(decimal string) *uint256.Int {
	return fixedpoint.MustFromDecimal(decimal)
}

type serverFixture struct {
	server     *Server
	services   Services
	store      *memoryStore
	manual     *oracle.ManualOracle
	aggregator *oracle.Aggregator
	journal    *events.Journal
	pauses     *nativecommon.Pauses
	market     *market.Engine
	treasury   *treasury.Engine
	base       *token.Ledger
	fractional *token.Ledger
	leveraged  *token.Ledger
	admin      crypto.Address
	user       crypto.Address
	recipient  crypto.Address
	now        time.Time
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	return newServerFixtureWithConfig(t, ServerConfig{
		JWTSecret: testSecret,
		Admins:    []crypto.Address{testAddr(0xAA)},
	})
}

func newServerFixtureWithConfig(t *testing.T, cfg ServerConfig) *serverFixture {
	t.Helper()
	store := newMemoryStore()
	base, err := token.NewLedger(store, "BASE")
	if err != nil {
		t.Fatalf("base ledger: %v", err)
	}
	fractional, err := token.NewLedger(store, "prUSD")
	if err != nil {
		t.Fatalf("fractional ledger: %v", err)
	}
	leveraged, err := token.NewLedger(store, "prX")
	if err != nil {
		t.Fatalf("leveraged ledger: %v", err)
	}
	journal, err := events.NewJournal(store)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	manual := oracle.NewManualOracle()
	aggregator := oracle.NewAggregator([]string{"manual"}, 0)
	aggregator.Register("manual", manual)
	pauses := nativecommon.NewPauses()

	f := &serverFixture{
		store:      store,
		manual:     manual,
		aggregator: aggregator,
		journal:    journal,
		pauses:     pauses,
		base:       base,
		fractional: fractional,
		leveraged:  leveraged,
		admin:      testAddr(0xAA),
		user:       testAddr(0x01),
		recipient:  testAddr(0x02),
		now:        time.Unix(1_700_000_000, 0),
	}
	if err := manual.SetDecimal("1", f.now); err != nil {
		t.Fatalf("seed oracle: %v", err)
	}

	mkt := market.NewEngine([]crypto.Address{f.admin})
	tre := treasury.NewEngine([]crypto.Address{f.admin}, mkt.ModuleAddress())
	tre.SetState(store)
	tre.SetTokens(base, fractional, leveraged)
	tre.SetPriceOracle(aggregator)
	tre.SetEmitter(journal)
	tre.SetPauses(pauses)
	tre.SetClock(func() time.Time { return f.now })
	tre.SetDefaultBaseTokenCap(amt("1000000"))
	mkt.SetState(store)
	mkt.SetTreasury(tre)
	mkt.SetTokens(base, fractional, leveraged)
	mkt.SetEmitter(journal)
	mkt.SetPauses(pauses)
	f.market = mkt
	f.treasury = tre

	f.services = Services{
		Market:   mkt,
		Treasury: tre,
		Tokens:   TokenSet{Base: base, Fractional: fractional, Leveraged: leveraged},
		Oracle:   aggregator,
		Manual:   manual,
		Journal:  journal,
		Pauses:   pauses,
	}
	server, err := NewServer(f.services, cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	server.SetClock(func() time.Time { return f.now })
	f.server = server
	return f
}

func (f *serverFixture) fund(t *testing.T, addr crypto.Address, amount *uint256.Int) {
	t.Helper()
	if err := f.base.Mint(addr, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func (f *serverFixture) bootstrap(t *testing.T, amount, ratio string) {
	t.Helper()
	if err := f.treasury.SetInitialMintRatio(fixedpoint.MustFromDecimal(ratio)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	f.fund(t, f.user, amt(amount))
	if _, _, err := f.market.MintBoth(f.user, f.user, amt(amount), nil, nil); err != nil {
		t.Fatalf("bootstrap mint: %v", err)
	}
}

func (f *serverFixture) token(t *testing.T, subject crypto.Address) string {
	t.Helper()
	return signedToken(t, testSecret, subject)
}

func signedToken(t *testing.T, secret string, subject crypto.Address) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// call posts a single-param JSON-RPC request and decodes the response
// envelope. A nil params sends an empty params array; an empty bearer skips
// the Authorization header.
func (f *serverFixture) call(t *testing.T, method string, params interface{}, bearer string) (int, RPCResponse) {
	t.Helper()
	envelope := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		envelope["params"] = []interface{}{params}
	} else {
		envelope["params"] = []interface{}{}
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return f.post(t, body, bearer)
}

func (f *serverFixture) post(t *testing.T, body []byte, bearer string) (int, RPCResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	resp := RPCResponse{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return w.Code, resp
}

func decodeResult(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func assertRPCError(t *testing.T, status int, resp RPCResponse, wantStatus, wantCode int) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status = %d, want %d", status, wantStatus)
	}
	if resp.Error == nil {
		t.Fatalf("expected RPC error, got result %v", resp.Result)
	}
	if resp.Error.Code != wantCode {
		t.Fatalf("error code = %d, want %d", resp.Error.Code, wantCode)
	}
}

func TestHandleRejectsMalformedEnvelopes(t *testing.T) {
	f := newServerFixture(t)

	status, resp := f.post(t, []byte("   "), "")
	assertRPCError(t, status, resp, http.StatusBadRequest, codeInvalidRequest)

	status, resp = f.post(t, []byte("{not json"), "")
	assertRPCError(t, status, resp, http.StatusBadRequest, codeParseError)

	status, resp = f.post(t, []byte(`{"jsonrpc":"1.0","id":1,"method":"prism_status"}`), "")
	assertRPCError(t, status, resp, http.StatusBadRequest, codeInvalidRequest)

	status, resp = f.post(t, []byte(`{"jsonrpc":"2.0","id":1}`), "")
	assertRPCError(t, status, resp, http.StatusBadRequest, codeInvalidRequest)
}

func TestHandleUnknownMethod(t *testing.T) {
	f := newServerFixture(t)
	status, resp := f.call(t, "prism_missing", nil, "")
	assertRPCError(t, status, resp, http.StatusNotFound, codeMethodNotFound)
}

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	f := newServerFixture(t)
	f.bootstrap(t, "1000", "0.7")

	params := map[string]string{"baseIn": amt("10").String()}

	status, resp := f.call(t, "prism_mintFractional", params, "")
	assertRPCError(t, status, resp, http.StatusUnauthorized, codeUnauthorized)

	status, resp = f.call(t, "prism_mintFractional", params, "not-a-token")
	assertRPCError(t, status, resp, http.StatusUnauthorized, codeUnauthorized)

	wrongKey := signedToken(t, "some-other-secret", f.user)
	status, resp = f.call(t, "prism_mintFractional", params, wrongKey)
	assertRPCError(t, status, resp, http.StatusUnauthorized, codeUnauthorized)
}

func TestEmptySecretDisablesAuthenticatedMethods(t *testing.T) {
	f := newServerFixtureWithConfig(t, ServerConfig{})
	f.bootstrap(t, "1000", "0.7")

	bearer := signedToken(t, testSecret, f.user)
	status, resp := f.call(t, "prism_mintFractional", map[string]string{"baseIn": "1"}, bearer)
	assertRPCError(t, status, resp, http.StatusUnauthorized, codeUnauthorized)
}

func TestClientRateLimit(t *testing.T) {
	f := newServerFixtureWithConfig(t, ServerConfig{
		JWTSecret:         testSecret,
		RequestsPerMinute: 1,
		Burst:             1,
	})
	f.bootstrap(t, "1000", "0.7")

	status, resp := f.call(t, "prism_nav", nil, "")
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("first call: status %d error %v", status, resp.Error)
	}
	status, resp = f.call(t, "prism_nav", nil, "")
	assertRPCError(t, status, resp, http.StatusTooManyRequests, codeRateLimited)
}

func TestCallerQuota(t *testing.T) {
	f := newServerFixtureWithConfig(t, ServerConfig{
		JWTSecret: testSecret,
		Admins:    []crypto.Address{testAddr(0xAA)},
		Quota:     nativecommon.Quota{MaxRequestsPerMin: 1, EpochSeconds: 60},
	})
	f.bootstrap(t, "1000", "0.7")
	bearer := f.token(t, f.admin)

	params := map[string]string{"beta": "1.5"}
	status, resp := f.call(t, "prism_admin_updateBeta", params, bearer)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("first call: status %d error %v", status, resp.Error)
	}
	status, resp = f.call(t, "prism_admin_updateBeta", params, bearer)
	assertRPCError(t, status, resp, http.StatusTooManyRequests, codeQuotaExceeded)

	// The next epoch resets the window.
	f.now = f.now.Add(61 * time.Second)
	status, resp = f.call(t, "prism_admin_updateBeta", params, bearer)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("post-epoch call: status %d error %v", status, resp.Error)
	}
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("body = %q, want ok", w.Body.String())
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
