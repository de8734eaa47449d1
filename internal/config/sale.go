package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/crowdsale-system/internal/crowdsale"
	"github.com/mmeshcher/crowdsale-system/internal/model"
	"github.com/mmeshcher/crowdsale-system/internal/validation"
)

// Режимы продажи.
const (
	ModePhased = "phased"
	ModeLegacy = "legacy"
)

// SaleConfig описывает продажу в YAML. Суммы задаются строками в wei.
type SaleConfig struct {
	Mode        string `yaml:"mode"`
	Owner       string `yaml:"owner"`
	Wallet      string `yaml:"wallet"`
	SaleAccount string `yaml:"sale_account"`
	Rate        uint64 `yaml:"rate"`

	PrefundStart time.Time `yaml:"prefund_start"`
	StartTime    time.Time `yaml:"start_time"`
	EndTime      time.Time `yaml:"end_time"`
	DeployedAt   time.Time `yaml:"deployed_at"`

	FundingGoal    string `yaml:"funding_goal"`
	PrefundMinimum string `yaml:"prefund_minimum"`
	FundingMinimum string `yaml:"funding_minimum"`
	Custody        string `yaml:"custody"`

	Schedule *ScheduleConfig `yaml:"schedule"`

	// Genesis задаёт начальные балансы реестра в памяти.
	Genesis []Allocation `yaml:"genesis"`
}

// ScheduleConfig переопределяет таблицу бонусов. Смещения задаются в формате time.ParseDuration.
type ScheduleConfig struct {
	Prefund uint64       `yaml:"prefund"`
	Tiers   []TierConfig `yaml:"tiers"`
}

// TierConfig описывает одну ступень бонуса.
type TierConfig struct {
	Offset     string `yaml:"offset"`
	Multiplier uint64 `yaml:"multiplier"`
}

// Allocation задаёт начальный баланс адреса.
type Allocation struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// LoadSale читает и разбирает файл описания продажи.
func LoadSale(path string) (*SaleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sale config: %w", err)
	}

	var sc SaleConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse sale config: %w", err)
	}
	if sc.Mode == "" {
		sc.Mode = ModePhased
	}
	return &sc, nil
}

// NewSale строит продажу над реестром ledger.
func (sc *SaleConfig) NewSale(ledger crowdsale.TokenLedger) (*crowdsale.Sale, error) {
	owner, err := parseField("owner", sc.Owner)
	if err != nil {
		return nil, err
	}
	wallet, err := parseField("wallet", sc.Wallet)
	if err != nil {
		return nil, err
	}
	account, err := parseField("sale_account", sc.SaleAccount)
	if err != nil {
		return nil, err
	}

	switch sc.Mode {
	case ModeLegacy:
		return crowdsale.NewLegacy(crowdsale.LegacyParams{
			Owner:       owner,
			Wallet:      wallet,
			Token:       ledger,
			SaleAccount: account,
			Rate:        sc.Rate,
			DeployedAt:  sc.DeployedAt,
		})
	case ModePhased:
	default:
		return nil, fmt.Errorf("unknown sale mode %q", sc.Mode)
	}

	p := crowdsale.Params{
		Owner:        owner,
		Wallet:       wallet,
		Token:        ledger,
		SaleAccount:  account,
		PrefundStart: sc.PrefundStart,
		StartTime:    sc.StartTime,
		EndTime:      sc.EndTime,
		Rate:         sc.Rate,
		Custody:      model.CustodyMode(sc.Custody),
	}
	if p.FundingGoal, err = optionalWei("funding_goal", sc.FundingGoal); err != nil {
		return nil, err
	}
	if p.PrefundMinimum, err = optionalWei("prefund_minimum", sc.PrefundMinimum); err != nil {
		return nil, err
	}
	if p.FundingMinimum, err = optionalWei("funding_minimum", sc.FundingMinimum); err != nil {
		return nil, err
	}

	if sc.Schedule != nil {
		sch := crowdsale.Schedule{Anchor: sc.StartTime, Prefund: sc.Schedule.Prefund}
		for i, t := range sc.Schedule.Tiers {
			offset, err := time.ParseDuration(t.Offset)
			if err != nil {
				return nil, fmt.Errorf("schedule tier %d: %w", i, err)
			}
			sch.Tiers = append(sch.Tiers, model.RateTier{Offset: offset, Multiplier: t.Multiplier})
		}
		p.Schedule = &sch
	}

	return crowdsale.New(p)
}

// GenesisBalances возвращает начальные балансы реестра в памяти.
func (sc *SaleConfig) GenesisBalances() (map[common.Address]*big.Int, error) {
	res := make(map[common.Address]*big.Int, len(sc.Genesis))
	for i, a := range sc.Genesis {
		addr, err := validation.ParseAddress(a.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis %d: %w", i, err)
		}
		amount, err := validation.ParseWei(a.Amount)
		if err != nil {
			return nil, fmt.Errorf("genesis %d: %w", i, err)
		}
		if prev, ok := res[addr]; ok {
			amount.Add(amount, prev)
		}
		res[addr] = amount
	}
	return res, nil
}

func parseField(name, value string) (common.Address, error) {
	addr, err := validation.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	return addr, nil
}

func optionalWei(name, value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	v, err := validation.ParseWei(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
