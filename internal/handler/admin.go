package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/validation"
)

// Права владельца проверяет продажа: отказ приходит как 403.

// AddToWhitelist добавляет адреса в белый список одним пакетом.
func (h *Handler) AddToWhitelist(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	addrs, ok := decodeAddresses(w, r)
	if !ok {
		return
	}

	if err := h.service.AddToWhitelist(r.Context(), caller, addrs); err != nil {
		h.writeError(w, "add to whitelist", caller, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RemoveFromWhitelist исключает адрес из белого списка.
func (h *Handler) RemoveFromWhitelist(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}

	if err := h.service.RemoveFromWhitelist(r.Context(), caller, addr); err != nil {
		h.writeError(w, "remove from whitelist", caller, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ChangePrivateContribution задаёт сумму частных взносов. Ноль допустим.
func (h *Handler) ChangePrivateContribution(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r, validation.ParseNonNegativeWei)
	if !ok {
		return
	}

	if err := h.service.ChangePrivateContribution(r.Context(), caller, amount); err != nil {
		h.writeError(w, "change private contribution", caller, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ReleaseTokens выплачивает токены адресам из тела запроса.
func (h *Handler) ReleaseTokens(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	addrs, ok := decodeAddresses(w, r)
	if !ok {
		return
	}

	released, err := h.service.ReleaseTokens(r.Context(), caller, addrs)
	if err != nil {
		h.writeError(w, "release tokens", caller, err)
		return
	}
	h.writeJSON(w, http.StatusOK, amountResponse{Amount: released.String()})
}

// CloseSale возвращает владельцу остаток токенов продажи.
func (h *Handler) CloseSale(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	returned, err := h.service.CloseSale(r.Context(), caller)
	if err != nil {
		h.writeError(w, "close sale", caller, err)
		return
	}
	h.writeJSON(w, http.StatusOK, amountResponse{Amount: returned.String()})
}

// TransferOwnership передаёт права владельца.
func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req ownershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	newOwner, err := validation.ParseAddress(req.NewOwner)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.TransferOwnership(r.Context(), caller, newOwner); err != nil {
		h.writeError(w, "transfer ownership", caller, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// FundInventory переводит токены подписавшего на счёт продажи.
func (h *Handler) FundInventory(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r, validation.ParseWei)
	if !ok {
		return
	}

	if err := h.service.FundInventory(r.Context(), caller, amount); err != nil {
		h.writeError(w, "fund inventory", caller, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ownerAction строит обработчик операции владельца без аргументов.
func (h *Handler) ownerAction(op string, fn func(ctx context.Context, caller common.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		if err := fn(r.Context(), caller); err != nil {
			h.writeError(w, op, caller, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
