package crowdsale

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

// EnableTokenRelease разрешает выплату токенов.
func (s *Sale) EnableTokenRelease(caller common.Address) error {
	const op = "enableTokenRelease"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	s.releaseEnabled = true
	return nil
}

// DisableTokenRelease запрещает выплату токенов.
func (s *Sale) DisableTokenRelease(caller common.Address) error {
	const op = "disableTokenRelease"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	s.releaseEnabled = false
	return nil
}

// ReleaseTokens выплачивает причитающиеся токены адресам списка из запаса продажи
// и обнуляет их записи. Если запаса не хватает на весь список, не выплачивается ничего.
// Адреса без начислений пропускаются, поэтому повторная выплата ничего не меняет.
func (s *Sale) ReleaseTokens(caller common.Address, addrs []common.Address) (*big.Int, error) {
	const op = "releaseTokens"
	if err := s.requireOwner(op, caller); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, stateErr(op, "sale is closed")
	}
	// Вкладчики провалившейся продажи получают возврат, а не токены.
	if v, ok := s.custody.(*vault); ok && v.state == model.VaultRefunding {
		return nil, stateErr(op, "vault is refunding")
	}
	if s.releaseGated && !s.releaseEnabled {
		return nil, stateErr(op, "token release is disabled")
	}

	payees := make([]common.Address, 0, len(addrs))
	seen := make(map[common.Address]bool, len(addrs))
	total := new(big.Int)
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		c, ok := s.contributions[a]
		if !ok || c.Tokens.Sign() == 0 {
			continue
		}
		payees = append(payees, a)
		total.Add(total, c.Tokens)
	}
	if len(payees) == 0 {
		return total, nil
	}

	available, err := s.token.BalanceOf(s.saleAccount)
	if err != nil {
		return nil, fmt.Errorf("%s: read token balance: %w", op, err)
	}
	if total.Cmp(available) > 0 {
		return nil, capacityErr(op, "batch requires %s tokens, %s available", total, available)
	}

	moved := new(big.Int)
	for i, a := range payees {
		c := s.contributions[a]
		amount := new(big.Int).Set(c.Tokens)
		if err := s.token.Transfer(s.saleAccount, a, amount); err != nil {
			err = fmt.Errorf("%s: transfer to %s: %w", op, a.Hex(), err)
			if i == 0 {
				return nil, err
			}
			return nil, &PartialReleaseError{Paid: payees[:i:i], Moved: moved, Err: err}
		}
		c.Wei.SetInt64(0)
		c.Tokens.SetInt64(0)
		moved.Add(moved, amount)
		s.emit(model.EventTransfer, s.saleAccount, a, nil, amount)
	}
	return moved, nil
}

// Close возвращает владельцу весь остаток токенов продажи. Повторный вызов допустим,
// при нулевом остатке ничего не происходит.
func (s *Sale) Close(caller common.Address) (*big.Int, error) {
	const op = "close"
	if err := s.requireOwner(op, caller); err != nil {
		return nil, err
	}
	balance, err := s.token.BalanceOf(s.saleAccount)
	if err != nil {
		return nil, fmt.Errorf("%s: read token balance: %w", op, err)
	}
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := s.token.Transfer(s.saleAccount, s.owner, balance); err != nil {
		return nil, fmt.Errorf("%s: transfer to owner: %w", op, err)
	}
	s.emit(model.EventTransfer, s.saleAccount, s.owner, nil, balance)
	return balance, nil
}

// Finalize завершает продажу: допустимо после окончания периода или по достижении цели.
// Закрытие окончательно. Хранилище закрывается при успехе или переводится в возврат при провале.
func (s *Sale) Finalize(now time.Time, caller common.Address) error {
	const op = "finalize"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	if s.closed {
		return stateErr(op, "sale is already closed")
	}
	if now.Before(s.bounds.EndTime) && !s.IsFundingGoalReached() {
		return stateErr(op, "sale has not ended and the funding goal is not reached")
	}

	if v, ok := s.custody.(*vault); ok && v.state == model.VaultActive {
		if s.fundingGoal == nil || s.IsFundingGoalReached() {
			s.closeVault(v)
		} else {
			v.state = model.VaultRefunding
		}
	}
	s.closed = true
	s.active = false
	s.emit(model.EventSaleFinalized, caller, common.Address{}, s.weiRaised, nil)
	return nil
}
