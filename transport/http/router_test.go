package http

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solquestio/solquestio-sub002/adapters/events"
	"github.com/solquestio/solquestio-sub002/adapters/metadata"
	"github.com/solquestio/solquestio-sub002/adapters/minter"
	"github.com/solquestio/solquestio-sub002/adapters/signature"
	"github.com/solquestio/solquestio-sub002/adapters/store"
	"github.com/solquestio/solquestio-sub002/adapters/tokenizer"
	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/internal/logger"
	"github.com/solquestio/solquestio-sub002/service"
)

const testSecret = "router-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type wallet struct {
	address string
	key     ed25519.PrivateKey
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return wallet{address: core.EncodeWalletAddress(pub), key: priv}
}

func (w wallet) sign(msg string) string {
	return base58.Encode(ed25519.Sign(w.key, []byte(msg)))
}

type testServer struct {
	router *gin.Engine
	health error
}

func newTestServer(t *testing.T, maxSupply int64, m *minter.SimulatedMinter) *testServer {
	t.Helper()
	log := logger.NewNoop()
	ledger := store.NewMemoryLedger(maxSupply)
	users := store.NewMemoryUserStore()
	pub := events.NopPublisher{}
	tpl, err := service.NewMetadataTemplate("SolQuest OG", "SQOG", "5")
	require.NoError(t, err)

	ts := &testServer{}
	s := Services{
		Auth: service.NewAuthService(
			service.NewChallengeIssuer("SolQuest", 5*time.Minute, 30*time.Second),
			signature.NewEd25519Verifier(),
			store.NewMemoryReplayGuard(),
			users,
			tokenizer.NewJWTTokenizer(testSecret, time.Hour),
			pub,
			log,
		),
		Claims: service.NewClaimService(ledger, users, m, metadata.NewStaticStore("https://solquest.io/og/"), tpl, pub, log, service.ClaimConfig{}),
		Users:  service.NewUserService(users, ledger, map[string]int64{"welcome": 50}, log),
		Health: func(context.Context) error { return ts.health },
	}
	ts.router = SetupRouter(s, log)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (ts *testServer) login(t *testing.T, w wallet) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/auth/challenge", "", gin.H{"walletAddress": w.address})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	msg := decode[challengeResponse](t, resp).Message

	resp = ts.do(t, http.MethodPost, "/auth/verify", "", gin.H{
		"walletAddress": w.address,
		"signature":     w.sign(msg),
		"message":       msg,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decode[verifyResponse](t, resp).Token
}

func TestClaimFlow(t *testing.T) {
	ts := newTestServer(t, 10, minter.NewSimulatedMinter())
	w := newWallet(t)

	resp := ts.do(t, http.MethodPost, "/auth/challenge", "", gin.H{"walletAddress": w.address})
	require.Equal(t, http.StatusOK, resp.Code)
	msg := decode[challengeResponse](t, resp).Message
	assert.Contains(t, msg, w.address)

	resp = ts.do(t, http.MethodPost, "/auth/verify", "", gin.H{
		"walletAddress": w.address,
		"signature":     w.sign(msg),
		"message":       msg,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	session := decode[verifyResponse](t, resp)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, w.address, session.User.WalletAddress)

	resp = ts.do(t, http.MethodPost, "/api/claim", session.Token, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	claim := decode[claimResponse](t, resp)
	assert.True(t, claim.Success)
	assert.Equal(t, int64(1), claim.TokenID)
	assert.NotEmpty(t, claim.Receipt.Signature)

	resp = ts.do(t, http.MethodPost, "/api/claim", session.Token, gin.H{"walletAddress": w.address})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "already_claimed", decode[errorResponse](t, resp).Code)

	resp = ts.do(t, http.MethodGet, "/api/me", session.Token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	profile := decode[service.Profile](t, resp)
	require.NotNil(t, profile.Claim)
	assert.Equal(t, core.ClaimMinted, profile.Claim.Status)
	assert.Equal(t, core.ClaimMinted, profile.User.ClaimState)
}

func TestVerify_ReplayAndBadSignature(t *testing.T) {
	ts := newTestServer(t, 10, minter.NewSimulatedMinter())
	w, other := newWallet(t), newWallet(t)

	resp := ts.do(t, http.MethodPost, "/auth/challenge", "", gin.H{"walletAddress": w.address})
	msg := decode[challengeResponse](t, resp).Message

	resp = ts.do(t, http.MethodPost, "/auth/verify", "", gin.H{"walletAddress": w.address, "signature": other.sign(msg), "message": msg})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, resp.Body.String())

	body := gin.H{"walletAddress": w.address, "signature": w.sign(msg), "message": msg}
	resp = ts.do(t, http.MethodPost, "/auth/verify", "", body)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(t, http.MethodPost, "/auth/verify", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, resp.Body.String())
}

func TestAuthMiddleware_UniformRejection(t *testing.T) {
	ts := newTestServer(t, 10, minter.NewSimulatedMinter())
	w := newWallet(t)

	past := time.Now().Add(-2 * time.Hour)
	expired, _, err := tokenizer.NewJWTTokenizer(testSecret, time.Hour, tokenizer.WithClock(func() time.Time { return past })).Issue("user", w.address)
	require.NoError(t, err)
	forged, _, err := tokenizer.NewJWTTokenizer("other-secret", time.Hour).Issue("user", w.address)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "Bearer not.a.jwt",
		"expired":   "Bearer " + expired,
		"forged":    "Bearer " + forged,
		"scheme":    "Basic abc",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp := httptest.NewRecorder()
			ts.router.ServeHTTP(resp, req)
			assert.Equal(t, http.StatusUnauthorized, resp.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, resp.Body.String())
		})
	}
}

func TestAuthMiddleware_SetsIdentity(t *testing.T) {
	w := newWallet(t)
	tok := tokenizer.NewJWTTokenizer(testSecret, time.Hour)
	token, _, err := tok.Issue("user-1", w.address)
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(validatorFunc(tok.Validate)))
	r.GET("/", func(c *gin.Context) {
		id, ok := IdentityFromContext(c.Request.Context())
		require.True(t, ok)
		fromGin, ok := identityFrom(c)
		require.True(t, ok)
		assert.Equal(t, id, fromGin)
		c.String(http.StatusOK, id.UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, "user-1", resp.Body.String())
}

type validatorFunc func(string) (core.Identity, error)

func (f validatorFunc) ValidateAccessToken(token string) (core.Identity, error) { return f(token) }

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t, 10, minter.NewSimulatedMinter())
	w := newWallet(t)

	resp := ts.do(t, http.MethodPost, "/auth/challenge", "", gin.H{"walletAddress": "0OIl"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_address", decode[errorResponse](t, resp).Code)

	resp = ts.do(t, http.MethodPost, "/auth/challenge", "", gin.H{"walletAddress": w.address, "nonce": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_request", decode[errorResponse](t, resp).Code)

	resp = ts.do(t, http.MethodPost, "/auth/verify", "", `{"walletAddress":`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.do(t, http.MethodGet, "/claim/eligibility", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	token := ts.login(t, w)
	resp = ts.do(t, http.MethodPost, "/api/claim", token, gin.H{"walletAddress": newWallet(t).address})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "wallet_mismatch", decode[errorResponse](t, resp).Code)
}

func TestEligibilityAndSupply(t *testing.T) {
	ts := newTestServer(t, 1, minter.NewSimulatedMinter())
	first, second := newWallet(t), newWallet(t)

	resp := ts.do(t, http.MethodGet, "/claim/eligibility?walletAddress="+first.address, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, core.Eligibility{Eligible: true, Reason: service.ReasonEligible, Remaining: 1, NextTokenID: 1}, decode[core.Eligibility](t, resp))

	resp = ts.do(t, http.MethodPost, "/api/claim", ts.login(t, first), nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(t, http.MethodPost, "/api/claim", ts.login(t, second), nil)
	assert.Equal(t, http.StatusGone, resp.Code)
	assert.Equal(t, "supply_exhausted", decode[errorResponse](t, resp).Code)

	resp = ts.do(t, http.MethodGet, "/claim/eligibility?walletAddress="+second.address, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, service.ReasonSoldOut, decode[core.Eligibility](t, resp).Reason)
}

func TestClaim_MintFailureThenRetry(t *testing.T) {
	ts := newTestServer(t, 10, minter.NewSimulatedMinter(minter.WithFailures(1, 1)))
	w := newWallet(t)
	token := ts.login(t, w)

	resp := ts.do(t, http.MethodPost, "/api/claim", token, nil)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Equal(t, "mint_failed", decode[errorResponse](t, resp).Code)

	resp = ts.do(t, http.MethodPost, "/api/claim", token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(1), decode[claimResponse](t, resp).TokenID)
}

func TestQuests(t *testing.T) {
	ts := newTestServer(t, 10, minter.NewSimulatedMinter())
	token := ts.login(t, newWallet(t))

	resp := ts.do(t, http.MethodGet, "/quests", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"quests":[{"id":"welcome","xp":50}]}`, resp.Body.String())

	resp = ts.do(t, http.MethodPost, "/api/quests/welcome/complete", token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(50), decode[userResponse](t, resp).User.XP)

	resp = ts.do(t, http.MethodPost, "/api/quests/nope/complete", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "quest_not_found", decode[errorResponse](t, resp).Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 10, minter.NewSimulatedMinter())

	resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	ts.health = errors.New("redis down")
	resp = ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{core.ErrInvalidAddress, http.StatusBadRequest, "invalid_address"},
		{core.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
		{core.ErrSupplyExhausted, http.StatusGone, "supply_exhausted"},
		{core.ErrNotEligible, http.StatusForbidden, "not_eligible"},
		{errors.Join(core.ErrStoreUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable, "store_unavailable"},
		{errors.Join(core.ErrExternalMintFailed, context.DeadlineExceeded), http.StatusBadGateway, "mint_failed"},
		{core.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			writeError(c, logger.NewNoop(), tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[errorResponse](t, w).Code)
		})
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(c, logger.NewNoop(), errors.Join(core.ErrAuthenticationFailed, core.ErrChallengeExpired))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
}
