// Package token содержит реализации реестра балансов токена, с которым работает продажа.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientBalance возвращается при переводе суммы, превышающей баланс отправителя.
	ErrInsufficientBalance = errors.New("insufficient token balance")
	// ErrInvalidTransfer возвращается при переводе на нулевой адрес или неположительной суммы.
	ErrInvalidTransfer = errors.New("invalid token transfer")
)

// MemoryLedger хранит балансы токена в памяти процесса.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
	supply   *big.Int
}

// NewMemoryLedger создаёт пустой реестр.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
	}
}

// Mint выпускает amount токенов на адрес to. Используется только при начальной эмиссии.
func (l *MemoryLedger) Mint(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) || amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint: %w", ErrInvalidTransfer)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dst := l.balance(to)
	dst.Add(dst, amount)
	l.supply.Add(l.supply, amount)
	return nil
}

// BalanceOf возвращает баланс адреса.
func (l *MemoryLedger) BalanceOf(addr common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.balances[addr]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(b), nil
}

// Transfer переводит amount токенов с from на to.
func (l *MemoryLedger) Transfer(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) || amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("transfer: %w", ErrInvalidTransfer)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.balance(from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from %s: %w", amount, from.Hex(), ErrInsufficientBalance)
	}
	src.Sub(src, amount)
	dst := l.balance(to)
	dst.Add(dst, amount)
	return nil
}

// TotalSupply возвращает объём выпущенных токенов.
func (l *MemoryLedger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply)
}

func (l *MemoryLedger) balance(addr common.Address) *big.Int {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
		l.balances[addr] = b
	}
	return b
}
