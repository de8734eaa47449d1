// Package model содержит доменные сущности сервиса краудсейла.
package model

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase описывает фазу продажи, вычисленную по времени.
type Phase string

const (
	PhaseNotStarted Phase = "NOT_STARTED"
	PhasePrefund    Phase = "PREFUND"
	PhaseFunding    Phase = "FUNDING"
	PhaseEnded      Phase = "ENDED"
)

// AcceptsContributions сообщает, принимаются ли взносы в данной фазе.
func (p Phase) AcceptsContributions() bool {
	return p == PhasePrefund || p == PhaseFunding
}

// CustodyMode задаёт способ хранения собранных средств.
type CustodyMode string

const (
	CustodyDirect CustodyMode = "DIRECT"
	CustodyVault  CustodyMode = "VAULT"
)

// VaultState описывает состояние эскроу-хранилища.
type VaultState string

const (
	VaultActive    VaultState = "ACTIVE"
	VaultRefunding VaultState = "REFUNDING"
	VaultClosed    VaultState = "CLOSED"
)

// RateTier задаёт множитель, действующий начиная со смещения Offset от точки отсчёта.
type RateTier struct {
	Offset     time.Duration
	Multiplier uint64
}

// Contribution содержит накопленные взносы адреса и причитающиеся ему токены.
type Contribution struct {
	Wei    *big.Int
	Tokens *big.Int
}

// EventKind описывает тип события продажи.
type EventKind string

const (
	EventTokenPurchase        EventKind = "TokenPurchase"
	EventTransfer             EventKind = "Transfer"
	EventFundsForwarded       EventKind = "FundsForwarded"
	EventRefunded             EventKind = "Refunded"
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
	EventSaleStarted          EventKind = "SaleStarted"
	EventSaleStopped          EventKind = "SaleStopped"
	EventSaleFinalized        EventKind = "SaleFinalized"
)

// Event описывает наблюдаемое событие, порождённое успешной операцией.
// Для TokenPurchase From содержит покупателя, To бенефициара, Value взнос в wei, Tokens начисление.
type Event struct {
	Kind   EventKind
	From   common.Address
	To     common.Address
	Value  *big.Int
	Tokens *big.Int
	At     time.Time
}

// Status содержит снимок состояния продажи для чтения.
type Status struct {
	Owner               common.Address `json:"owner"`
	Wallet              common.Address `json:"wallet"`
	Phase               Phase          `json:"phase"`
	Active              bool           `json:"active"`
	Closed              bool           `json:"closed"`
	ReleaseEnabled      bool           `json:"release_enabled"`
	Rate                uint64         `json:"rate"`
	WeiRaised           string         `json:"wei_raised"`
	PrivateContribution string         `json:"private_contribution"`
	FundingGoal         string         `json:"funding_goal,omitempty"`
	FundingGoalReached  bool           `json:"funding_goal_reached"`
	Custody             CustodyMode    `json:"custody"`
	VaultState          VaultState     `json:"vault_state,omitempty"`
	PrefundStart        time.Time      `json:"prefund_start"`
	StartTime           time.Time      `json:"start_time"`
	EndTime             time.Time      `json:"end_time"`
}

// Command описывает мутирующую операцию в журнале.
// Args хранит аргументы операции в JSON, суммы записаны десятичными строками.
type Command struct {
	Seq    int64
	Op     string
	Caller common.Address
	Args   json.RawMessage
	At     time.Time
}

// Purchase описывает сохранённое событие покупки.
type Purchase struct {
	Purchaser   common.Address
	Beneficiary common.Address
	Value       *big.Int
	Tokens      *big.Int
	At          time.Time
}
