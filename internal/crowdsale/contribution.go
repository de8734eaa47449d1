package crowdsale

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

// Contribute принимает взнос от purchaser в его же пользу.
func (s *Sale) Contribute(now time.Time, purchaser common.Address, wei *big.Int) error {
	return s.buy("contribute", now, purchaser, purchaser, wei)
}

// BuyTokens принимает взнос от purchaser в пользу beneficiary.
// Оба адреса должны состоять в белом списке.
func (s *Sale) BuyTokens(now time.Time, purchaser, beneficiary common.Address, wei *big.Int) error {
	return s.buy("buyTokens", now, purchaser, beneficiary, wei)
}

func (s *Sale) buy(op string, now time.Time, purchaser, beneficiary common.Address, wei *big.Int) error {
	if beneficiary == (common.Address{}) {
		return validationErr(op, "beneficiary is the zero address")
	}
	if wei == nil || wei.Sign() <= 0 {
		return validationErr(op, "contribution must be positive")
	}

	phase := s.Phase(now)
	if !phase.AcceptsContributions() {
		return stateErr(op, "sale is in phase %s", phase)
	}
	if !s.active {
		return stateErr(op, "sale is not active")
	}
	if !s.whitelist[purchaser] {
		return stateErr(op, "purchaser %s is not whitelisted", purchaser.Hex())
	}
	if !s.whitelist[beneficiary] {
		return stateErr(op, "beneficiary %s is not whitelisted", beneficiary.Hex())
	}

	floor := s.fundingMinimum
	if phase == model.PhasePrefund {
		floor = s.prefundMinimum
	}
	if wei.Cmp(floor) < 0 {
		return validationErr(op, "contribution %s is below the %s minimum %s", wei, phase, floor)
	}

	raised := new(big.Int).Add(s.weiRaised, wei)
	if s.fundingGoal != nil && raised.Cmp(s.fundingGoal) > 0 {
		return capacityErr(op, "contribution would raise %s above the funding goal %s", raised, s.fundingGoal)
	}
	if err := s.custody.canDeposit(); err != nil {
		return err
	}

	tokens := new(big.Int).Mul(wei, new(big.Int).SetUint64(s.Rate(now)))

	c, ok := s.contributions[beneficiary]
	if !ok {
		c = &model.Contribution{Wei: new(big.Int), Tokens: new(big.Int)}
		s.contributions[beneficiary] = c
	}
	c.Wei.Add(c.Wei, wei)
	c.Tokens.Add(c.Tokens, tokens)
	s.weiRaised = raised

	s.emit(model.EventTokenPurchase, purchaser, beneficiary, wei, tokens)
	s.custody.deposit(s, purchaser, wei)
	return nil
}

// ChangePrivateContribution задаёт сумму частных взносов, принятых вне продажи.
// Сумма учитывается в собранном и ограничивается целью сбора так же, как обычные взносы.
func (s *Sale) ChangePrivateContribution(caller common.Address, amount *big.Int) error {
	const op = "changePrivateContribution"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return validationErr(op, "private contribution must not be negative")
	}
	if s.closed {
		return stateErr(op, "sale is closed")
	}
	raised := new(big.Int).Sub(s.weiRaised, s.privateContribution)
	raised.Add(raised, amount)
	if s.fundingGoal != nil && raised.Cmp(s.fundingGoal) > 0 {
		return capacityErr(op, "private contribution would raise %s above the funding goal %s", raised, s.fundingGoal)
	}
	s.weiRaised = raised
	s.privateContribution = new(big.Int).Set(amount)
	return nil
}

// ContributionOf возвращает накопленный взнос и невыплаченные токены адреса.
func (s *Sale) ContributionOf(addr common.Address) model.Contribution {
	c, ok := s.contributions[addr]
	if !ok {
		return model.Contribution{Wei: new(big.Int), Tokens: new(big.Int)}
	}
	return model.Contribution{Wei: new(big.Int).Set(c.Wei), Tokens: new(big.Int).Set(c.Tokens)}
}
