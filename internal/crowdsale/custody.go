package crowdsale

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

type custody interface {
	mode() model.CustodyMode
	canDeposit() error
	deposit(s *Sale, from common.Address, amount *big.Int)
}

// forwarder сразу пересылает каждый принятый взнос на кошелёк.
type forwarder struct {
	wallet    common.Address
	forwarded *big.Int
}

func newForwarder(wallet common.Address) *forwarder {
	return &forwarder{wallet: wallet, forwarded: new(big.Int)}
}

func (f *forwarder) mode() model.CustodyMode { return model.CustodyDirect }

func (f *forwarder) canDeposit() error { return nil }

func (f *forwarder) deposit(s *Sale, from common.Address, amount *big.Int) {
	f.forwarded.Add(f.forwarded, amount)
	s.emit(model.EventFundsForwarded, from, f.wallet, amount, nil)
}

// vault удерживает взносы до успеха или провала продажи.
// Переходы: ACTIVE -> REFUNDING и ACTIVE -> CLOSED, оба конечные.
type vault struct {
	wallet   common.Address
	state    model.VaultState
	deposits map[common.Address]*big.Int
	held     *big.Int
}

func newVault(wallet common.Address) *vault {
	return &vault{
		wallet:   wallet,
		state:    model.VaultActive,
		deposits: make(map[common.Address]*big.Int),
		held:     new(big.Int),
	}
}

func (v *vault) mode() model.CustodyMode { return model.CustodyVault }

func (v *vault) canDeposit() error {
	if v.state != model.VaultActive {
		return stateErr("deposit", "vault is %s", v.state)
	}
	return nil
}

func (v *vault) deposit(_ *Sale, from common.Address, amount *big.Int) {
	d, ok := v.deposits[from]
	if !ok {
		d = new(big.Int)
		v.deposits[from] = d
	}
	d.Add(d, amount)
	v.held.Add(v.held, amount)
}

// Forwarded возвращает сумму, пересланную на кошелёк.
func (s *Sale) Forwarded() *big.Int {
	switch c := s.custody.(type) {
	case *forwarder:
		return new(big.Int).Set(c.forwarded)
	case *vault:
		if c.state == model.VaultClosed {
			return new(big.Int).Set(c.held)
		}
	}
	return new(big.Int)
}

// DepositOf возвращает сумму, удерживаемую хранилищем за адресом.
func (s *Sale) DepositOf(addr common.Address) *big.Int {
	v, ok := s.custody.(*vault)
	if !ok || v.deposits[addr] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.deposits[addr])
}

func (s *Sale) activeVault(op string) (*vault, error) {
	v, ok := s.custody.(*vault)
	if !ok {
		return nil, stateErr(op, "sale does not use vault custody")
	}
	if v.state != model.VaultActive {
		return nil, stateErr(op, "vault is %s", v.state)
	}
	return v, nil
}

// EnableSettlement закрывает хранилище и пересылает все удерживаемые средства на кошелёк.
func (s *Sale) EnableSettlement(caller common.Address) error {
	const op = "enableSettlement"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	v, err := s.activeVault(op)
	if err != nil {
		return err
	}
	s.closeVault(v)
	return nil
}

// EnableRefunds переводит хранилище в режим возврата средств вкладчикам.
func (s *Sale) EnableRefunds(caller common.Address) error {
	const op = "enableRefunds"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	v, err := s.activeVault(op)
	if err != nil {
		return err
	}
	v.state = model.VaultRefunding
	return nil
}

func (s *Sale) closeVault(v *vault) {
	v.state = model.VaultClosed
	s.emit(model.EventFundsForwarded, s.saleAccount, v.wallet, v.held, nil)
}

// ClaimRefund возвращает вкладчику всю его сумму из хранилища в режиме возврата.
func (s *Sale) ClaimRefund(investor common.Address) (*big.Int, error) {
	const op = "claimRefund"
	v, ok := s.custody.(*vault)
	if !ok {
		return nil, stateErr(op, "sale does not use vault custody")
	}
	if v.state != model.VaultRefunding {
		return nil, stateErr(op, "vault is %s", v.state)
	}
	d := v.deposits[investor]
	if d == nil || d.Sign() == 0 {
		return nil, validationErr(op, "nothing to refund for %s", investor.Hex())
	}
	amount := new(big.Int).Set(d)
	delete(v.deposits, investor)
	v.held.Sub(v.held, amount)
	s.emit(model.EventRefunded, s.saleAccount, investor, amount, nil)
	return amount, nil
}
