// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAddress возвращается, если строка не является hex-адресом.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrZeroAddress возвращается для нулевого адреса.
	ErrZeroAddress = errors.New("zero address")
	// ErrChecksumMismatch возвращается для адреса в смешанном регистре с неверной контрольной суммой EIP-55.
	ErrChecksumMismatch = errors.New("address checksum mismatch")
)

// ParseAddress разбирает адрес участника. Адрес в одном регистре принимается как есть,
// в смешанном регистре должен совпадать с контрольной суммой EIP-55.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, ErrInvalidAddress
	}

	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, ErrZeroAddress
	}

	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if addr.Hex()[2:] != body {
			return common.Address{}, ErrChecksumMismatch
		}
	}
	return addr, nil
}

// ParseAddresses разбирает список адресов. Ошибка в любом элементе отклоняет весь список.
func ParseAddresses(list []string) ([]common.Address, error) {
	res := make([]common.Address, 0, len(list))
	for _, s := range list {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		res = append(res, addr)
	}
	return res, nil
}
