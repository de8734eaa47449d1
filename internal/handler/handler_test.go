package handler

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/crowdsale-system/internal/crowdsale"
	"github.com/mmeshcher/crowdsale-system/internal/middleware"
	"github.com/mmeshcher/crowdsale-system/internal/model"
	"github.com/mmeshcher/crowdsale-system/internal/service"
	"github.com/mmeshcher/crowdsale-system/internal/signature"
	"github.com/mmeshcher/crowdsale-system/internal/token"
)

var (
	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	aliceAddr = common.HexToAddress("0x00000000000000000000000000000000000000d4")
)

type stubService struct {
	status       model.Status
	whitelisted  map[common.Address]bool
	contribution model.Contribution

	purchasesResp []model.Purchase
	purchasesErr  error

	err    error
	amount *big.Int

	calls       []string
	lastCaller  common.Address
	lastAddrs   []common.Address
	lastAddress common.Address
	lastAmount  *big.Int
}

func (s *stubService) record(op string, caller common.Address) {
	s.calls = append(s.calls, op)
	s.lastCaller = caller
}

func (s *stubService) Status(context.Context) model.Status { return s.status }

func (s *stubService) IsWhitelisted(_ context.Context, addr common.Address) bool {
	return s.whitelisted[addr]
}

func (s *stubService) ContributionOf(context.Context, common.Address) model.Contribution {
	if s.contribution.Wei == nil {
		return model.Contribution{Wei: new(big.Int), Tokens: new(big.Int)}
	}
	return s.contribution
}

func (s *stubService) GetPurchases(context.Context, common.Address) ([]model.Purchase, error) {
	return s.purchasesResp, s.purchasesErr
}

func (s *stubService) Contribute(_ context.Context, purchaser common.Address, wei *big.Int) error {
	s.record("contribute", purchaser)
	s.lastAmount = wei
	return s.err
}

func (s *stubService) BuyTokens(_ context.Context, purchaser, beneficiary common.Address, wei *big.Int) error {
	s.record("buyTokens", purchaser)
	s.lastAddress = beneficiary
	s.lastAmount = wei
	return s.err
}

func (s *stubService) ClaimRefund(_ context.Context, investor common.Address) (*big.Int, error) {
	s.record("claimRefund", investor)
	return s.amount, s.err
}

func (s *stubService) AddToWhitelist(_ context.Context, caller common.Address, addrs []common.Address) error {
	s.record("addToWhitelist", caller)
	s.lastAddrs = addrs
	return s.err
}

func (s *stubService) RemoveFromWhitelist(_ context.Context, caller, addr common.Address) error {
	s.record("removeFromWhitelist", caller)
	s.lastAddress = addr
	return s.err
}

func (s *stubService) StartCrowdsale(_ context.Context, caller common.Address) error {
	s.record("startCrowdsale", caller)
	return s.err
}

func (s *stubService) StopCrowdsale(_ context.Context, caller common.Address) error {
	s.record("stopCrowdsale", caller)
	return s.err
}

func (s *stubService) ChangePrivateContribution(_ context.Context, caller common.Address, amount *big.Int) error {
	s.record("changePrivateContribution", caller)
	s.lastAmount = amount
	return s.err
}

func (s *stubService) EnableTokenRelease(_ context.Context, caller common.Address) error {
	s.record("enableTokenRelease", caller)
	return s.err
}

func (s *stubService) DisableTokenRelease(_ context.Context, caller common.Address) error {
	s.record("disableTokenRelease", caller)
	return s.err
}

func (s *stubService) ReleaseTokens(_ context.Context, caller common.Address, addrs []common.Address) (*big.Int, error) {
	s.record("releaseTokens", caller)
	s.lastAddrs = addrs
	return s.amount, s.err
}

func (s *stubService) CloseSale(_ context.Context, caller common.Address) (*big.Int, error) {
	s.record("close", caller)
	return s.amount, s.err
}

func (s *stubService) Finalize(_ context.Context, caller common.Address) error {
	s.record("finalize", caller)
	return s.err
}

func (s *stubService) TransferOwnership(_ context.Context, caller, newOwner common.Address) error {
	s.record("transferOwnership", caller)
	s.lastAddress = newOwner
	return s.err
}

func (s *stubService) EnableSettlement(_ context.Context, caller common.Address) error {
	s.record("enableSettlement", caller)
	return s.err
}

func (s *stubService) EnableRefunds(_ context.Context, caller common.Address) error {
	s.record("enableRefunds", caller)
	return s.err
}

func (s *stubService) FundInventory(_ context.Context, caller common.Address, amount *big.Int) error {
	s.record("fundInventory", caller)
	s.lastAmount = amount
	return s.err
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger, middleware.NewSignatureAuth(time.Minute))
}

func signedRequest(t *testing.T, method, path, body string) (*http.Request, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	return signWith(t, key, method, path, body, signature.NewNonce()), addr
}

func signWith(t *testing.T, key *ecdsa.PrivateKey, method, path, body, nonce string) *http.Request {
	t.Helper()

	ts := time.Now().Unix()
	sig, err := signature.Sign(key, signature.Message(method, path, ts, nonce, []byte(body)))
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(signature.HeaderAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(signature.HeaderNonce, nonce)
	req.Header.Set(signature.HeaderSignature, sig)
	return req
}

func httpBody(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func TestGetStatus(t *testing.T) {
	svc := &stubService{status: model.Status{
		Owner:     ownerAddr,
		Phase:     model.PhaseFunding,
		Rate:      11500,
		WeiRaised: "1000",
		Custody:   model.CustodyDirect,
	}}
	router := newTestHandler(t, svc).SetupRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sale", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "FUNDING", got["phase"])
	assert.Equal(t, float64(11500), got["rate"])
	assert.Equal(t, "1000", got["wei_raised"])
	assert.Equal(t, strings.ToLower(ownerAddr.Hex()), got["owner"])
}

func TestGetRateAndGoal(t *testing.T) {
	svc := &stubService{status: model.Status{
		Phase:              model.PhasePrefund,
		Rate:               12000,
		WeiRaised:          "10",
		FundingGoal:        "10",
		FundingGoalReached: true,
	}}
	router := newTestHandler(t, svc).SetupRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sale/rate", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"phase":"PREFUND","rate":12000}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sale/goal", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"funding_goal":"10","wei_raised":"10","reached":true}`, rr.Body.String())
}

func TestGetWhitelisted(t *testing.T) {
	svc := &stubService{whitelisted: map[common.Address]bool{aliceAddr: true}}
	router := newTestHandler(t, svc).SetupRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/whitelist/"+aliceAddr.Hex(), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got whitelistResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, aliceAddr, got.Address)
	assert.True(t, got.Whitelisted)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/whitelist/not-an-address", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/whitelist/0x0000000000000000000000000000000000000000", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetPurchases(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		wantStatus int
	}{
		{
			name:       "no purchases",
			svc:        &stubService{},
			wantStatus: http.StatusNoContent,
		},
		{
			name: "purchases",
			svc: &stubService{purchasesResp: []model.Purchase{{
				Purchaser:   aliceAddr,
				Beneficiary: aliceAddr,
				Value:       big.NewInt(1000),
				Tokens:      big.NewInt(11_500_000),
				At:          time.Date(2018, time.July, 22, 12, 0, 0, 0, time.UTC),
			}}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "storage error",
			svc:        &stubService{purchasesErr: errors.New("db down")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestHandler(t, tt.svc).SetupRouter()
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/purchases/"+aliceAddr.Hex(), nil))
			require.Equal(t, tt.wantStatus, rr.Code)

			if tt.wantStatus == http.StatusOK {
				var got []purchaseResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
				require.Len(t, got, 1)
				assert.Equal(t, "11500000", got[0].Tokens)
				assert.Equal(t, "2018-07-22T12:00:00Z", got[0].At)
			}
		})
	}
}

func TestContribute_Signed(t *testing.T) {
	svc := &stubService{}
	router := newTestHandler(t, svc).SetupRouter()

	req, addr := signedRequest(t, http.MethodPost, "/api/contributions", `{"amount":"100000000000000000"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []string{"contribute"}, svc.calls)
	assert.Equal(t, addr, svc.lastCaller)
	assert.Equal(t, "100000000000000000", svc.lastAmount.String())
}

func TestContribute_Unsigned(t *testing.T) {
	svc := &stubService{}
	router := newTestHandler(t, svc).SetupRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/contributions", bytes.NewBufferString(`{"amount":"1"}`)))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, svc.calls)
}

func TestContribute_TamperedBody(t *testing.T) {
	svc := &stubService{}
	router := newTestHandler(t, svc).SetupRouter()

	req, _ := signedRequest(t, http.MethodPost, "/api/contributions", `{"amount":"1"}`)
	req.Body = httpBody(`{"amount":"1000000"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, svc.calls)
}

func TestBuyTokens_Signed(t *testing.T) {
	svc := &stubService{}
	router := newTestHandler(t, svc).SetupRouter()

	req, addr := signedRequest(t, http.MethodPost, "/api/contributions/"+aliceAddr.Hex(), `{"amount":"5"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, addr, svc.lastCaller)
	assert.Equal(t, aliceAddr, svc.lastAddress)

	var got contributionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, aliceAddr, got.Address)
}

func TestContribute_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad json", body: `{"amount":`},
		{name: "zero", body: `{"amount":"0"}`},
		{name: "negative", body: `{"amount":"-5"}`},
		{name: "fraction", body: `{"amount":"1.5"}`},
		{name: "empty", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			h := newTestHandler(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/api/contributions", bytes.NewBufferString(tt.body))
			req = req.WithContext(middleware.WithCaller(req.Context(), aliceAddr))
			rr := httptest.NewRecorder()
			h.Contribute(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, svc.calls)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "authorization", err: &crowdsale.Error{Kind: crowdsale.KindAuthorization}, want: http.StatusForbidden},
		{name: "validation", err: &crowdsale.Error{Kind: crowdsale.KindValidation}, want: http.StatusBadRequest},
		{name: "state", err: &crowdsale.Error{Kind: crowdsale.KindState}, want: http.StatusConflict},
		{name: "capacity", err: &crowdsale.Error{Kind: crowdsale.KindCapacity}, want: http.StatusUnprocessableEntity},
		{name: "wrapped state", err: fmt.Errorf("op: %w", &crowdsale.Error{Kind: crowdsale.KindState}), want: http.StatusConflict},
		{name: "journal", err: fmt.Errorf("%w: disk full", service.ErrJournalUnavailable), want: http.StatusServiceUnavailable},
		{name: "insufficient balance", err: fmt.Errorf("fund: %w", token.ErrInsufficientBalance), want: http.StatusUnprocessableEntity},
		{name: "foreign sender", err: token.ErrForeignSender, want: http.StatusUnprocessableEntity},
		{name: "invalid transfer", err: token.ErrInvalidTransfer, want: http.StatusBadRequest},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestAdminActions(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
		op     string
	}{
		{http.MethodPost, "/api/admin/start", "", "startCrowdsale"},
		{http.MethodPost, "/api/admin/stop", "", "stopCrowdsale"},
		{http.MethodPost, "/api/admin/release/enable", "", "enableTokenRelease"},
		{http.MethodPost, "/api/admin/release/disable", "", "disableTokenRelease"},
		{http.MethodPost, "/api/admin/finalize", "", "finalize"},
		{http.MethodPost, "/api/admin/vault/settle", "", "enableSettlement"},
		{http.MethodPost, "/api/admin/vault/refunds", "", "enableRefunds"},
		{http.MethodPost, "/api/admin/whitelist", `{"addresses":["` + aliceAddr.Hex() + `"]}`, "addToWhitelist"},
		{http.MethodDelete, "/api/admin/whitelist/" + aliceAddr.Hex(), "", "removeFromWhitelist"},
		{http.MethodPost, "/api/admin/private-contribution", `{"amount":"0"}`, "changePrivateContribution"},
		{http.MethodPost, "/api/admin/ownership", `{"new_owner":"` + aliceAddr.Hex() + `"}`, "transferOwnership"},
		{http.MethodPost, "/api/admin/tokens", `{"amount":"1000"}`, "fundInventory"},
		{http.MethodPost, "/api/admin/release", `{"addresses":["` + aliceAddr.Hex() + `"]}`, "releaseTokens"},
		{http.MethodPost, "/api/admin/close", "", "close"},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			svc := &stubService{amount: big.NewInt(0)}
			router := newTestHandler(t, svc).SetupRouter()

			req, addr := signedRequest(t, tt.method, tt.path, tt.body)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, []string{tt.op}, svc.calls)
			assert.Equal(t, addr, svc.lastCaller)
		})
	}
}

func TestAdminAction_ReplayedRequestIsRejected(t *testing.T) {
	svc := &stubService{amount: big.NewInt(0)}
	router := newTestHandler(t, svc).SetupRouter()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	nonce := signature.NewNonce()

	codes := make([]int, 0, 3)
	for range 3 {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signWith(t, key, http.MethodPost, "/api/admin/tokens", `{"amount":"1000"}`, nonce))
		codes = append(codes, rr.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusUnauthorized, http.StatusUnauthorized}, codes)
	assert.Equal(t, []string{"fundInventory"}, svc.calls)
}

func TestAdminAction_NotOwner(t *testing.T) {
	svc := &stubService{err: &crowdsale.Error{Kind: crowdsale.KindAuthorization, Op: "startCrowdsale", Msg: "caller is not the owner"}}
	router := newTestHandler(t, svc).SetupRouter()

	req, _ := signedRequest(t, http.MethodPost, "/api/admin/start", "")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "caller is not the owner")
}

func TestAddToWhitelist_RejectsWholeBatch(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	body := `{"addresses":["` + aliceAddr.Hex() + `","0x0000000000000000000000000000000000000000"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/whitelist", bytes.NewBufferString(body))
	req = req.WithContext(middleware.WithCaller(req.Context(), ownerAddr))
	rr := httptest.NewRecorder()
	h.AddToWhitelist(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, svc.calls)
}

func TestReleaseTokens_ReturnsAmount(t *testing.T) {
	svc := &stubService{amount: big.NewInt(24000)}
	h := newTestHandler(t, svc)

	body := `{"addresses":["` + aliceAddr.Hex() + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/release", bytes.NewBufferString(body))
	req = req.WithContext(middleware.WithCaller(req.Context(), ownerAddr))
	rr := httptest.NewRecorder()
	h.ReleaseTokens(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"amount":"24000"}`, rr.Body.String())
	assert.Equal(t, []common.Address{aliceAddr}, svc.lastAddrs)
}

func TestClaimRefund_JournalUnavailable(t *testing.T) {
	svc := &stubService{err: service.ErrJournalUnavailable}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/refunds", nil)
	req = req.WithContext(middleware.WithCaller(req.Context(), aliceAddr))
	rr := httptest.NewRecorder()
	h.ClaimRefund(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "journal")
}

func TestUnknownRoute(t *testing.T) {
	router := newTestHandler(t, &stubService{}).SetupRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/sale", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
