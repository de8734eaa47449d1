package crowdsale

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

func (s *Sale) emit(kind model.EventKind, from, to common.Address, value, tokens *big.Int) {
	s.events = append(s.events, model.Event{
		Kind:   kind,
		From:   from,
		To:     to,
		Value:  copyInt(value),
		Tokens: copyInt(tokens),
	})
}

// Drain возвращает накопленные события и очищает буфер.
// События попадают в буфер только при успешном завершении операции, время проставляет вызывающая сторона.
func (s *Sale) Drain() []model.Event {
	ev := s.events
	s.events = nil
	return ev
}
