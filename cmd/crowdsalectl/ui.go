package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmeshcher/crowdsale-system/internal/validation"
)

var (
	colorSuccess = lipgloss.Color("#00D26A")
	colorAddress = lipgloss.Color("#00B4D8")
	colorValue   = lipgloss.Color("#FFFFFF")
	colorMeta    = lipgloss.Color("#555555")
	colorBorder  = lipgloss.Color("#1E3A5F")
	colorTitle   = lipgloss.Color("#9B5DE5")

	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleAddress = lipgloss.NewStyle().Foreground(colorAddress)
	styleValue   = lipgloss.NewStyle().Foreground(colorValue).Bold(true)
	styleMeta    = lipgloss.NewStyle().Foreground(colorMeta)
	styleTitle   = lipgloss.NewStyle().Foreground(colorTitle).Bold(true).MarginBottom(1)
	styleBorder  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

func success(msg string) string { return styleSuccess.Render("✓ " + msg) }

func addr(a string) string { return styleAddress.Render(a) }

// keyValueBlock выводит пары ключ-значение в рамке.
func keyValueBlock(title string, pairs [][2]string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(styleTitle.Render(title))
		sb.WriteString("\n")
	}
	for _, p := range pairs {
		key := styleMeta.Render(fmt.Sprintf("%-22s", p[0]+":"))
		sb.WriteString("  " + key + " " + styleValue.Render(p[1]) + "\n")
	}
	return styleBorder.Render(strings.TrimRight(sb.String(), "\n"))
}

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// formatEther переводит десятичную строку wei в ether без потери точности.
// Нечисловая строка возвращается как есть.
func formatEther(wei string) string {
	v, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return wei
	}
	sign := ""
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}
	whole, frac := new(big.Int).QuoRem(v, weiPerEther, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	digits := frac.String()
	digits = strings.Repeat("0", 18-len(digits)) + digits
	digits = strings.TrimRight(digits, "0")
	return sign + whole.String() + "." + digits
}

// parseNonNegativeEther допускает ноль, в отличие от validation.ParseEther.
func parseNonNegativeEther(s string) (*big.Int, error) {
	whole, frac, hasDot := strings.Cut(strings.TrimSpace(s), ".")
	if whole != "" && strings.Trim(whole, "0") == "" && (!hasDot || frac != "" && strings.Trim(frac, "0") == "") {
		return new(big.Int), nil
	}
	v, err := validation.ParseEther(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}
