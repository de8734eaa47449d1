// Package client предоставляет HTTP-клиент API сервиса краудсейла с подписью запросов.
package client

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
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/crowdsale-system/internal/model"
	"github.com/mmeshcher/crowdsale-system/internal/signature"
)

// ErrNoKey возвращается при вызове подписываемой операции клиентом без ключа.
var ErrNoKey = errors.New("signing key is not configured")

// APIError описывает отказ сервиса.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Contribution описывает взнос адреса в ответе сервиса.
type Contribution struct {
	Address common.Address `json:"address"`
	Wei     string         `json:"wei"`
	Tokens  string         `json:"tokens"`
}

// Purchase описывает запись истории покупок.
type Purchase struct {
	Purchaser   common.Address `json:"purchaser"`
	Beneficiary common.Address `json:"beneficiary"`
	Value       string         `json:"value"`
	Tokens      string         `json:"tokens"`
	At          time.Time      `json:"at"`
}

// Rate содержит действующий множитель.
type Rate struct {
	Phase model.Phase `json:"phase"`
	Rate  uint64      `json:"rate"`
}

// Goal содержит состояние цели сбора.
type Goal struct {
	FundingGoal string `json:"funding_goal,omitempty"`
	WeiRaised   string `json:"wei_raised"`
	Reached     bool   `json:"reached"`
}

type idempotentKey struct{}

// Client инкапсулирует HTTP-взаимодействие с сервисом краудсейла.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
	key        *ecdsa.PrivateKey
	now        func() time.Time
}

// New создаёт клиент. Без ключа доступны только операции чтения.
// Повторяются только запросы чтения: повтор подписанной операции мог бы выполнить её дважды.
func New(baseURL string, key *ecdsa.PrivateKey) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if idempotent, _ := ctx.Value(idempotentKey{}).(bool); !idempotent {
			return false, ctx.Err()
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:    base,
		httpClient: rc,
		key:        key,
		now:        time.Now,
	}
}

// Address возвращает адрес ключа клиента или нулевой адрес без ключа.
func (c *Client) Address() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// Status запрашивает снимок продажи.
func (c *Client) Status(ctx context.Context) (*model.Status, error) {
	var st model.Status
	if err := c.get(ctx, "/api/sale", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Rate запрашивает действующий множитель.
func (c *Client) Rate(ctx context.Context) (*Rate, error) {
	var r Rate
	if err := c.get(ctx, "/api/sale/rate", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Goal запрашивает состояние цели сбора.
func (c *Client) Goal(ctx context.Context) (*Goal, error) {
	var g Goal
	if err := c.get(ctx, "/api/sale/goal", &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// IsWhitelisted проверяет адрес по белому списку.
func (c *Client) IsWhitelisted(ctx context.Context, addr common.Address) (bool, error) {
	var resp struct {
		Whitelisted bool `json:"whitelisted"`
	}
	if err := c.get(ctx, "/api/whitelist/"+addr.Hex(), &resp); err != nil {
		return false, err
	}
	return resp.Whitelisted, nil
}

// Contribution запрашивает взнос адреса.
func (c *Client) Contribution(ctx context.Context, addr common.Address) (*Contribution, error) {
	var res Contribution
	if err := c.get(ctx, "/api/contributions/"+addr.Hex(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Purchases запрашивает историю покупок адреса. Для пустой истории возвращается пустой срез.
func (c *Client) Purchases(ctx context.Context, addr common.Address) ([]Purchase, error) {
	var res []Purchase
	if err := c.get(ctx, "/api/purchases/"+addr.Hex(), &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Contribute вносит wei в пользу владельца ключа.
func (c *Client) Contribute(ctx context.Context, wei *big.Int) (*Contribution, error) {
	var res Contribution
	if err := c.signed(ctx, http.MethodPost, "/api/contributions", amountBody(wei), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BuyTokens вносит wei в пользу beneficiary.
func (c *Client) BuyTokens(ctx context.Context, beneficiary common.Address, wei *big.Int) (*Contribution, error) {
	var res Contribution
	if err := c.signed(ctx, http.MethodPost, "/api/contributions/"+beneficiary.Hex(), amountBody(wei), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ClaimRefund запрашивает возврат взноса из хранилища.
func (c *Client) ClaimRefund(ctx context.Context) (*big.Int, error) {
	return c.signedAmount(ctx, "/api/refunds", nil)
}

// AddToWhitelist добавляет адреса в белый список.
func (c *Client) AddToWhitelist(ctx context.Context, addrs []common.Address) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/whitelist", addressesBody(addrs), nil)
}

// RemoveFromWhitelist исключает адрес из белого списка.
func (c *Client) RemoveFromWhitelist(ctx context.Context, addr common.Address) error {
	return c.signed(ctx, http.MethodDelete, "/api/admin/whitelist/"+addr.Hex(), nil, nil)
}

// StartCrowdsale включает приём взносов.
func (c *Client) StartCrowdsale(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/start", nil, nil)
}

// StopCrowdsale приостанавливает приём взносов.
func (c *Client) StopCrowdsale(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/stop", nil, nil)
}

// ChangePrivateContribution задаёт сумму частных взносов.
func (c *Client) ChangePrivateContribution(ctx context.Context, amount *big.Int) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/private-contribution", amountBody(amount), nil)
}

// EnableTokenRelease разрешает выплату токенов.
func (c *Client) EnableTokenRelease(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/release/enable", nil, nil)
}

// DisableTokenRelease запрещает выплату токенов.
func (c *Client) DisableTokenRelease(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/release/disable", nil, nil)
}

// ReleaseTokens выплачивает токены адресам и возвращает выплаченную сумму.
func (c *Client) ReleaseTokens(ctx context.Context, addrs []common.Address) (*big.Int, error) {
	return c.signedAmount(ctx, "/api/admin/release", addressesBody(addrs))
}

// CloseSale возвращает владельцу остаток токенов продажи.
func (c *Client) CloseSale(ctx context.Context) (*big.Int, error) {
	return c.signedAmount(ctx, "/api/admin/close", nil)
}

// Finalize завершает продажу.
func (c *Client) Finalize(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/finalize", nil, nil)
}

// TransferOwnership передаёт права владельца.
func (c *Client) TransferOwnership(ctx context.Context, newOwner common.Address) error {
	body := map[string]string{"new_owner": newOwner.Hex()}
	return c.signed(ctx, http.MethodPost, "/api/admin/ownership", body, nil)
}

// EnableSettlement закрывает хранилище и пересылает средства на кошелёк.
func (c *Client) EnableSettlement(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/vault/settle", nil, nil)
}

// EnableRefunds переводит хранилище в режим возврата.
func (c *Client) EnableRefunds(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/vault/refunds", nil, nil)
}

// FundInventory переводит токены владельца ключа на счёт продажи.
func (c *Client) FundInventory(ctx context.Context, amount *big.Int) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/tokens", amountBody(amount), nil)
}

func (c *Client) signedAmount(ctx context.Context, path string, body any) (*big.Int, error) {
	var resp struct {
		Amount string `json:"amount"`
	}
	if err := c.signed(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(resp.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("decode response: invalid amount %q", resp.Amount)
	}
	return v, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	ctx = context.WithValue(ctx, idempotentKey{}, true)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) signed(ctx context.Context, method, path string, body, out any) error {
	if c.key == nil {
		return ErrNoKey
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	ts := c.now().Unix()
	nonce := signature.NewNonce()
	sig, err := signature.Sign(c.key, signature.Message(method, u.Path, ts, nonce, payload))
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(signature.HeaderAddress, c.Address().Hex())
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(signature.HeaderNonce, nonce)
	req.Header.Set(signature.HeaderSignature, sig)

	return c.do(req, out)
}

func (c *Client) do(req *retryablehttp.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func amountBody(v *big.Int) any {
	return map[string]string{"amount": v.String()}
}

func addressesBody(addrs []common.Address) any {
	list := make([]string, len(addrs))
	for i, a := range addrs {
		list[i] = a.Hex()
	}
	return map[string][]string{"addresses": list}
}
