// Package handler содержит HTTP-обработчики API сервиса краудсейла.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/crowdsale-system/internal/crowdsale"
	"github.com/mmeshcher/crowdsale-system/internal/middleware"
	"github.com/mmeshcher/crowdsale-system/internal/model"
	"github.com/mmeshcher/crowdsale-system/internal/service"
	"github.com/mmeshcher/crowdsale-system/internal/token"
	"github.com/mmeshcher/crowdsale-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Status(ctx context.Context) model.Status
	IsWhitelisted(ctx context.Context, addr common.Address) bool
	ContributionOf(ctx context.Context, addr common.Address) model.Contribution
	GetPurchases(ctx context.Context, addr common.Address) ([]model.Purchase, error)

	Contribute(ctx context.Context, purchaser common.Address, wei *big.Int) error
	BuyTokens(ctx context.Context, purchaser, beneficiary common.Address, wei *big.Int) error
	ClaimRefund(ctx context.Context, investor common.Address) (*big.Int, error)

	AddToWhitelist(ctx context.Context, caller common.Address, addrs []common.Address) error
	RemoveFromWhitelist(ctx context.Context, caller, addr common.Address) error
	StartCrowdsale(ctx context.Context, caller common.Address) error
	StopCrowdsale(ctx context.Context, caller common.Address) error
	ChangePrivateContribution(ctx context.Context, caller common.Address, amount *big.Int) error
	EnableTokenRelease(ctx context.Context, caller common.Address) error
	DisableTokenRelease(ctx context.Context, caller common.Address) error
	ReleaseTokens(ctx context.Context, caller common.Address, addrs []common.Address) (*big.Int, error)
	CloseSale(ctx context.Context, caller common.Address) (*big.Int, error)
	Finalize(ctx context.Context, caller common.Address) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
	EnableSettlement(ctx context.Context, caller common.Address) error
	EnableRefunds(ctx context.Context, caller common.Address) error
	FundInventory(ctx context.Context, caller common.Address, amount *big.Int) error
}

// Handler реализует HTTP-обработчики API сервиса краудсейла.
type Handler struct {
	service Service
	logger  *zap.Logger
	auth    *middleware.SignatureAuth
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.SignatureAuth) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		auth:    auth,
	}
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type addressesRequest struct {
	Addresses []string `json:"addresses"`
}

type ownershipRequest struct {
	NewOwner string `json:"new_owner"`
}

type rateResponse struct {
	Phase model.Phase `json:"phase"`
	Rate  uint64      `json:"rate"`
}

type goalResponse struct {
	FundingGoal string `json:"funding_goal,omitempty"`
	WeiRaised   string `json:"wei_raised"`
	Reached     bool   `json:"reached"`
}

type whitelistResponse struct {
	Address     common.Address `json:"address"`
	Whitelisted bool           `json:"whitelisted"`
}

type contributionResponse struct {
	Address common.Address `json:"address"`
	Wei     string         `json:"wei"`
	Tokens  string         `json:"tokens"`
}

type purchaseResponse struct {
	Purchaser   common.Address `json:"purchaser"`
	Beneficiary common.Address `json:"beneficiary"`
	Value       string         `json:"value"`
	Tokens      string         `json:"tokens"`
	At          string         `json:"at"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

// GetStatus возвращает снимок состояния продажи.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Status(r.Context()))
}

// GetRate возвращает действующий множитель.
func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	st := h.service.Status(r.Context())
	h.writeJSON(w, http.StatusOK, rateResponse{Phase: st.Phase, Rate: st.Rate})
}

// GetGoal сообщает о достижении цели сбора.
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	st := h.service.Status(r.Context())
	h.writeJSON(w, http.StatusOK, goalResponse{
		FundingGoal: st.FundingGoal,
		WeiRaised:   st.WeiRaised,
		Reached:     st.FundingGoalReached,
	})
}

// GetWhitelisted проверяет адрес по белому списку.
func (h *Handler) GetWhitelisted(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, whitelistResponse{
		Address:     addr,
		Whitelisted: h.service.IsWhitelisted(r.Context(), addr),
	})
}

// GetContribution возвращает взнос адреса и невыплаченные токены.
func (h *Handler) GetContribution(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toContribution(addr, h.service.ContributionOf(r.Context(), addr)))
}

// GetPurchases возвращает историю покупок адреса.
func (h *Handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}

	purchases, err := h.service.GetPurchases(r.Context(), addr)
	if err != nil {
		h.logger.Error("get purchases error", zap.Error(err), zap.String("address", addr.Hex()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(purchases) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]purchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		resp = append(resp, purchaseResponse{
			Purchaser:   p.Purchaser,
			Beneficiary: p.Beneficiary,
			Value:       p.Value.String(),
			Tokens:      p.Tokens.String(),
			At:          p.At.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Contribute принимает взнос подписавшего запрос в его пользу.
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	wei, ok := decodeAmount(w, r, validation.ParseWei)
	if !ok {
		return
	}

	if err := h.service.Contribute(r.Context(), caller, wei); err != nil {
		h.writeError(w, "contribute", caller, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toContribution(caller, h.service.ContributionOf(r.Context(), caller)))
}

// BuyTokens принимает взнос подписавшего запрос в пользу адреса из пути.
func (h *Handler) BuyTokens(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	beneficiary, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	wei, ok := decodeAmount(w, r, validation.ParseWei)
	if !ok {
		return
	}

	if err := h.service.BuyTokens(r.Context(), caller, beneficiary, wei); err != nil {
		h.writeError(w, "buy tokens", caller, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toContribution(beneficiary, h.service.ContributionOf(r.Context(), beneficiary)))
}

// ClaimRefund возвращает подписавшему запрос его сумму из хранилища.
func (h *Handler) ClaimRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	amount, err := h.service.ClaimRefund(r.Context(), caller)
	if err != nil {
		h.writeError(w, "claim refund", caller, err)
		return
	}
	h.writeJSON(w, http.StatusOK, amountResponse{Amount: amount.String()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError переводит отказ операции в HTTP-статус. Текст отказов продажи отдаётся клиенту,
// причины внутренних ошибок только пишутся в лог.
func (h *Handler) writeError(w http.ResponseWriter, op string, caller common.Address, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err), zap.String("caller", caller.Hex()))
		http.Error(w, http.StatusText(code), code)
		return
	}
	http.Error(w, err.Error(), code)
}

func statusFor(err error) int {
	switch crowdsale.KindOf(err) {
	case crowdsale.KindAuthorization:
		return http.StatusForbidden
	case crowdsale.KindValidation:
		return http.StatusBadRequest
	case crowdsale.KindState:
		return http.StatusConflict
	case crowdsale.KindCapacity:
		return http.StatusUnprocessableEntity
	}

	switch {
	case errors.Is(err, service.ErrJournalUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, token.ErrInsufficientBalance), errors.Is(err, token.ErrForeignSender):
		return http.StatusUnprocessableEntity
	case errors.Is(err, token.ErrInvalidTransfer):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func callerFrom(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.GetCallerFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return caller, ok
}

func pathAddress(w http.ResponseWriter, r *http.Request, param string) (common.Address, bool) {
	addr, err := validation.ParseAddress(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return common.Address{}, false
	}
	return addr, true
}

func decodeAmount(w http.ResponseWriter, r *http.Request, parse func(string) (*big.Int, error)) (*big.Int, bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, false
	}
	v, err := parse(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return v, true
}

func decodeAddresses(w http.ResponseWriter, r *http.Request) ([]common.Address, bool) {
	var req addressesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Addresses) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, false
	}
	addrs, err := validation.ParseAddresses(req.Addresses)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return addrs, true
}

func toContribution(addr common.Address, c model.Contribution) contributionResponse {
	return contributionResponse{Address: addr, Wei: c.Wei.String(), Tokens: c.Tokens.String()}
}
