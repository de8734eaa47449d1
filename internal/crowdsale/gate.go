package crowdsale

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

func (s *Sale) requireOwner(op string, caller common.Address) error {
	if caller != s.owner {
		return authErr(op)
	}
	return nil
}

// TransferOwnership передаёт права владельца. Прежний владелец теряет их немедленно.
// Передача самому себе и нулевому адресу отклоняется.
func (s *Sale) TransferOwnership(caller, newOwner common.Address) error {
	const op = "transferOwnership"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return validationErr(op, "new owner is the zero address")
	}
	if newOwner == s.owner {
		return validationErr(op, "new owner is already the owner")
	}
	s.emit(model.EventOwnershipTransferred, s.owner, newOwner, nil, nil)
	s.owner = newOwner
	return nil
}

// StartCrowdsale включает приём взносов. Требует неактивной и незакрытой продажи.
func (s *Sale) StartCrowdsale(caller common.Address) error {
	const op = "startCrowdsale"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	if s.closed {
		return stateErr(op, "sale is closed")
	}
	if s.active {
		return stateErr(op, "sale is already active")
	}
	s.active = true
	s.emit(model.EventSaleStarted, caller, common.Address{}, nil, nil)
	return nil
}

// StopCrowdsale приостанавливает приём взносов. Требует активной продажи.
func (s *Sale) StopCrowdsale(caller common.Address) error {
	const op = "stopCrowdsale"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	if !s.active {
		return stateErr(op, "sale is not active")
	}
	s.active = false
	s.emit(model.EventSaleStopped, caller, common.Address{}, nil, nil)
	return nil
}
