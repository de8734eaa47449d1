package service

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/crowdsale"
	"github.com/mmeshcher/crowdsale-system/internal/model"
)

// Операции журнала.
const (
	opContribute                = "contribute"
	opBuyTokens                 = "buyTokens"
	opClaimRefund               = "claimRefund"
	opAddToWhitelist            = "addToWhitelist"
	opRemoveFromWhitelist       = "removeFromWhitelist"
	opStartCrowdsale            = "startCrowdsale"
	opStopCrowdsale             = "stopCrowdsale"
	opChangePrivateContribution = "changePrivateContribution"
	opEnableTokenRelease        = "enableTokenRelease"
	opDisableTokenRelease       = "disableTokenRelease"
	opReleaseTokens             = "releaseTokens"
	opClose                     = "close"
	opFinalize                  = "finalize"
	opTransferOwnership         = "transferOwnership"
	opEnableSettlement          = "enableSettlement"
	opEnableRefunds             = "enableRefunds"
	opFundInventory             = "fundInventory"
)

// commandArgs хранит аргументы команды в журнале. Суммы записаны десятичными строками.
type commandArgs struct {
	Address   string   `json:"address,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	Amount    string   `json:"amount,omitempty"`
}

// apply выполняет команду над продажей. Вызывается под мьютексом.
func (s *Service) apply(cmd model.Command, ledger crowdsale.TokenLedger) (*big.Int, error) {
	var a commandArgs
	if len(cmd.Args) > 0 {
		if err := json.Unmarshal(cmd.Args, &a); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", cmd.Op, err)
		}
	}

	sale := s.sale
	switch cmd.Op {
	case opContribute:
		wei, err := a.amount()
		if err != nil {
			return nil, err
		}
		return nil, sale.Contribute(cmd.At, cmd.Caller, wei)
	case opBuyTokens:
		wei, err := a.amount()
		if err != nil {
			return nil, err
		}
		return nil, sale.BuyTokens(cmd.At, cmd.Caller, common.HexToAddress(a.Address), wei)
	case opClaimRefund:
		return sale.ClaimRefund(cmd.Caller)
	case opAddToWhitelist:
		return nil, sale.AddManyToWhitelist(cmd.Caller, a.addresses())
	case opRemoveFromWhitelist:
		return nil, sale.RemoveFromWhitelist(cmd.Caller, common.HexToAddress(a.Address))
	case opStartCrowdsale:
		return nil, sale.StartCrowdsale(cmd.Caller)
	case opStopCrowdsale:
		return nil, sale.StopCrowdsale(cmd.Caller)
	case opChangePrivateContribution:
		amount, err := a.amount()
		if err != nil {
			return nil, err
		}
		return nil, sale.ChangePrivateContribution(cmd.Caller, amount)
	case opEnableTokenRelease:
		return nil, sale.EnableTokenRelease(cmd.Caller)
	case opDisableTokenRelease:
		return nil, sale.DisableTokenRelease(cmd.Caller)
	case opReleaseTokens:
		return sale.ReleaseTokens(cmd.Caller, a.addresses())
	case opClose:
		return sale.Close(cmd.Caller)
	case opFinalize:
		return nil, sale.Finalize(cmd.At, cmd.Caller)
	case opTransferOwnership:
		return nil, sale.TransferOwnership(cmd.Caller, common.HexToAddress(a.Address))
	case opEnableSettlement:
		return nil, sale.EnableSettlement(cmd.Caller)
	case opEnableRefunds:
		return nil, sale.EnableRefunds(cmd.Caller)
	case opFundInventory:
		amount, err := a.amount()
		if err != nil {
			return nil, err
		}
		if err := ledger.Transfer(cmd.Caller, sale.SaleAccount(), amount); err != nil {
			return nil, fmt.Errorf("fund inventory: %w", err)
		}
		return amount, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", cmd.Op)
	}
}

func (a commandArgs) amount() (*big.Int, error) {
	v, ok := new(big.Int).SetString(a.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", a.Amount)
	}
	return v, nil
}

func (a commandArgs) addresses() []common.Address {
	res := make([]common.Address, len(a.Addresses))
	for i, h := range a.Addresses {
		res[i] = common.HexToAddress(h)
	}
	return res
}
