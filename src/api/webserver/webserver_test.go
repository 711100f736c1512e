package webserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/moltlabs/moltwork/src/api/config"
	"github.com/moltlabs/moltwork/src/escrow"
	"github.com/moltlabs/moltwork/src/ledger"
	"github.com/moltlabs/moltwork/src/registry"
	"github.com/moltlabs/moltwork/src/types"
)

const mintAuthority = "test-mint-authority"

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	reg    *registry.Service
	esc    *escrow.Service
	cfg    config.Config
	mint   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&types.Agent{}, &types.ClientState{}, &types.Bounty{}, &types.Review{},
		&types.TokenMint{}, &types.TokenAccount{},
	))

	mint := types.TokenMint{
		Address:   testAddr(0xFE),
		Symbol:    "USDM",
		Decimals:  6,
		Authority: mintAuthority,
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(&mint).Error)

	cfg := config.Config{
		JWTSecret:   "test-secret",
		MintAddress: mint.Address,
		MintSymbol:  "USDM",
	}
	reg := registry.New(db, escrow.Authority())
	esc := escrow.New(db, reg, nil, mint.Address)
	router := New(cfg, db, nil, reg, esc, "")
	return &testEnv{router: router, db: db, reg: reg, esc: esc, cfg: cfg, mint: mint.Address}
}

func testAddr(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) token(t *testing.T, addr string) string {
	t.Helper()
	token, err := issueJWT(addr, []byte(e.cfg.JWTSecret))
	require.NoError(t, err)
	return token
}

func (e *testEnv) fund(t *testing.T, owner string, amount uint64) {
	t.Helper()
	require.NoError(t, ledger.MintTo(e.db, mintAuthority, e.mint, owner, amount))
}

func TestMutationsRequireJWT(t *testing.T) {
	e := newTestEnv(t)

	w := e.request(t, http.MethodPost, "/v1/agents", "", gin.H{"metadataUri": "uri", "hourlyRate": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.request(t, http.MethodPost, "/v1/bounties", "garbage-token", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRequiresAddressClaim(t *testing.T) {
	e := newTestEnv(t)
	secret := []byte(e.cfg.JWTSecret)

	// Validly signed token, but no caller identity.
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)

	w := e.request(t, http.MethodPost, "/v1/agents", signed,
		gin.H{"metadataUri": "uri", "hourlyRate": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Malformed address claim.
	tok = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"addr": "not-an-address",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err = tok.SignedString(secret)
	require.NoError(t, err)

	w = e.request(t, http.MethodPost, "/v1/agents", signed,
		gin.H{"metadataUri": "uri", "hourlyRate": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitKeyedByClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	g.GET("/ping", RateLimitMiddleware(NewRateLimiter(2, time.Minute)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRegisterAndFetchAgent(t *testing.T) {
	e := newTestEnv(t)
	owner := testAddr(0x01)

	w := e.request(t, http.MethodPost, "/v1/agents", e.token(t, owner),
		gin.H{"metadataUri": "ipfs://agent", "hourlyRate": 25_000000})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.request(t, http.MethodGet, "/v1/agents/"+owner, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view struct {
		Owner        string  `json:"owner"`
		Name         string  `json:"name"`
		HourlyRate   float64 `json:"hourlyRate"`
		Availability string  `json:"availability"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, owner, view.Owner)
	assert.Equal(t, "Unknown Agent", view.Name) // metadata unreachable in tests
	assert.Equal(t, 25.0, view.HourlyRate)
	assert.Equal(t, "available", view.Availability)

	// Duplicate registration conflicts.
	w = e.request(t, http.MethodPost, "/v1/agents", e.token(t, owner),
		gin.H{"metadataUri": "ipfs://agent", "hourlyRate": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAgentNotFound(t *testing.T) {
	e := newTestEnv(t)
	w := e.request(t, http.MethodGet, "/v1/agents/"+testAddr(0x02), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBountyLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	client, agent := testAddr(0x03), testAddr(0x04)
	e.fund(t, client, 100_000000)

	w := e.request(t, http.MethodPost, "/v1/agents", e.token(t, agent),
		gin.H{"metadataUri": "ipfs://agent", "hourlyRate": 1})
	require.Equal(t, http.StatusCreated, w.Code)

	deadline := time.Now().Add(7 * 24 * time.Hour).Unix()
	w = e.request(t, http.MethodPost, "/v1/bounties", e.token(t, client),
		gin.H{"metadataUri": "ipfs://bounty", "budget": 100_000000, "deadline": deadline})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "open", created.Status)

	w = e.request(t, http.MethodPost, "/v1/bounties/"+created.ID+"/claim", e.token(t, agent), gin.H{})
	require.Equal(t, http.StatusOK, w.Code)

	// Second claimant loses with the stable NotOpen code.
	w = e.request(t, http.MethodPost, "/v1/bounties/"+created.ID+"/claim", e.token(t, testAddr(0x05)), gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)
	var conflict struct {
		Code uint32 `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	assert.Equal(t, uint32(6003), conflict.Code)

	w = e.request(t, http.MethodPost, "/v1/bounties/"+created.ID+"/submit", e.token(t, agent),
		gin.H{"deliverableUri": "ipfs://x"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.request(t, http.MethodPost, "/v1/bounties/"+created.ID+"/approve", e.token(t, client), gin.H{})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.request(t, http.MethodPost, "/v1/bounties/"+created.ID+"/review", e.token(t, client),
		gin.H{"rating": 450})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.request(t, http.MethodGet, "/v1/agents/"+agent+"/reviews", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reviews struct {
		Reviews []struct {
			Rating float64 `json:"rating"`
		} `json:"reviews"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reviews))
	require.Len(t, reviews.Reviews, 1)
	assert.Equal(t, 4.5, reviews.Reviews[0].Rating)

	// Agent got paid.
	w = e.request(t, http.MethodGet, "/v1/balances/"+agent, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bal struct {
		Balance uint64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	assert.Equal(t, uint64(100_000000), bal.Balance)
}

func TestCreateBountyValidationCodes(t *testing.T) {
	e := newTestEnv(t)
	client := testAddr(0x06)
	e.fund(t, client, 100)

	deadline := time.Now().Add(-time.Hour).Unix()
	w := e.request(t, http.MethodPost, "/v1/bounties", e.token(t, client),
		gin.H{"metadataUri": "uri", "budget": 100, "deadline": deadline})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Code uint32 `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint32(6002), resp.Code)

	// Zero budget must surface the core's code, not die in binding.
	w = e.request(t, http.MethodPost, "/v1/bounties", e.token(t, client),
		gin.H{"metadataUri": "uri", "budget": 0, "deadline": time.Now().Add(time.Hour).Unix()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint32(6001), resp.Code)
}

func TestInsufficientFunds(t *testing.T) {
	e := newTestEnv(t)
	client := testAddr(0x07)
	e.fund(t, client, 1)

	deadline := time.Now().Add(time.Hour).Unix()
	w := e.request(t, http.MethodPost, "/v1/bounties", e.token(t, client),
		gin.H{"metadataUri": "uri", "budget": 100, "deadline": deadline})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestListBounties(t *testing.T) {
	e := newTestEnv(t)
	client := testAddr(0x08)
	e.fund(t, client, 200)

	deadline := time.Now().Add(time.Hour).Unix()
	for i := 0; i < 2; i++ {
		w := e.request(t, http.MethodPost, "/v1/bounties", e.token(t, client),
			gin.H{"metadataUri": "uri", "budget": 100, "deadline": deadline})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := e.request(t, http.MethodGet, "/v1/clients/"+client+"/bounties", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Bounties []struct {
			BountyID uint64 `json:"bountyId"`
		} `json:"bounties"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Bounties, 2)
	assert.Equal(t, uint64(0), resp.Bounties[0].BountyID)
	assert.Equal(t, uint64(1), resp.Bounties[1].BountyID)
}
