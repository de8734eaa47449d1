package repository

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

// MemoryRepository хранит журнал в памяти процесса. Используется без DATABASE_URI
// и в тестах; после перезапуска состояние продажи начинается заново.
type MemoryRepository struct {
	mu       sync.RWMutex
	commands []model.Command
	events   []model.Event
}

// NewMemoryRepository создаёт пустой журнал.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error { return nil }

// AppendCommand добавляет команду и её события.
func (r *MemoryRepository) AppendCommand(_ context.Context, cmd model.Command, events []model.Event) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd.Seq = int64(len(r.commands) + 1)
	r.commands = append(r.commands, cmd)
	r.events = append(r.events, events...)
	return cmd.Seq, nil
}

// LoadCommands возвращает копию журнала.
func (r *MemoryRepository) LoadCommands(context.Context) ([]model.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.Command, len(r.commands))
	copy(res, r.commands)
	return res, nil
}

// GetPurchases возвращает покупки, в которых адрес был покупателем или бенефициаром, новые первыми.
func (r *MemoryRepository) GetPurchases(_ context.Context, addr common.Address) ([]model.Purchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Purchase
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.Kind != model.EventTokenPurchase || (e.From != addr && e.To != addr) {
			continue
		}
		res = append(res, model.Purchase{
			Purchaser:   e.From,
			Beneficiary: e.To,
			Value:       new(big.Int).Set(e.Value),
			Tokens:      new(big.Int).Set(e.Tokens),
			At:          e.At,
		})
	}
	return res, nil
}
