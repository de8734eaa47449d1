package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// unlimited больше любого реального остатка uint256.
var unlimited = new(big.Int).Lsh(big.NewInt(1), 256)

// ReplayLedger подменяет внешний реестр при восстановлении из журнала:
// журнал содержит только успешные операции, повторять их переводы нельзя.
type ReplayLedger struct{}

// BalanceOf всегда возвращает значение, покрывающее любую выплату.
func (ReplayLedger) BalanceOf(common.Address) (*big.Int, error) {
	return new(big.Int).Set(unlimited), nil
}

// Transfer ничего не делает.
func (ReplayLedger) Transfer(common.Address, common.Address, *big.Int) error {
	return nil
}
