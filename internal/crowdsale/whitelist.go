package crowdsale

import "github.com/ethereum/go-ethereum/common"

// AddToWhitelist разрешает адресу участвовать в продаже.
func (s *Sale) AddToWhitelist(caller, addr common.Address) error {
	return s.AddManyToWhitelist(caller, []common.Address{addr})
}

// AddManyToWhitelist добавляет все адреса списка или ни одного.
// Пустой список допустим и ничего не меняет.
func (s *Sale) AddManyToWhitelist(caller common.Address, addrs []common.Address) error {
	const op = "addToWhitelist"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	for i, a := range addrs {
		if a == (common.Address{}) {
			return validationErr(op, "entry %d is the zero address", i)
		}
	}
	for _, a := range addrs {
		s.whitelist[a] = true
	}
	return nil
}

// RemoveFromWhitelist исключает адрес. Действует на следующую же попытку взноса.
func (s *Sale) RemoveFromWhitelist(caller, addr common.Address) error {
	const op = "removeFromWhitelist"
	if err := s.requireOwner(op, caller); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return validationErr(op, "address is the zero address")
	}
	delete(s.whitelist, addr)
	return nil
}

// IsWhitelisted сообщает, состоит ли адрес в белом списке.
func (s *Sale) IsWhitelisted(addr common.Address) bool {
	return s.whitelist[addr]
}
