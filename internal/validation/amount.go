package validation

import (
	"errors"
	"math/big"
	"strings"
)

// ErrInvalidAmount возвращается для нечисловой, нулевой или отрицательной суммы.
var ErrInvalidAmount = errors.New("invalid amount")

const etherDecimals = 18

// ParseWei разбирает сумму в wei: положительное десятичное целое.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return nil, ErrInvalidAmount
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// ParseNonNegativeWei разбирает сумму в wei, допуская ноль.
func ParseNonNegativeWei(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "0" {
		return new(big.Int), nil
	}
	return ParseWei(s)
}

// ParseEther переводит сумму в ether с дробной частью (не более 18 знаков) в wei без потери точности.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > etherDecimals || !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, ErrInvalidAmount
	}

	digits := whole + frac + strings.Repeat("0", etherDecimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok || v.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
