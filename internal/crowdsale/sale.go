// Package crowdsale реализует конечный автомат продажи токенов: фазы, белый список,
// бонусные ставки, учёт взносов, хранение средств и отложенную выплату токенов.
//
// Пакет не использует блокировок и не обращается к системным часам: атомарность каждой
// операции обеспечивает вызывающая сторона, текущее время передаётся явно.
package crowdsale

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

// TokenLedger описывает внешний реестр балансов токена.
type TokenLedger interface {
	BalanceOf(addr common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
}

var (
	// Ether равен 10^18 wei.
	Ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// DefaultFundingGoal: цель сбора по умолчанию, 38000 ether.
	DefaultFundingGoal = new(big.Int).Mul(big.NewInt(38000), Ether)
	// DefaultPrefundMinimum: минимальный взнос в префанд, 1 ether.
	DefaultPrefundMinimum = new(big.Int).Set(Ether)
	// DefaultFundingMinimum: минимальный взнос в основной период, 0.1 ether.
	DefaultFundingMinimum = new(big.Int).Div(Ether, big.NewInt(10))
)

// LegacyWindow задаёт длительность простой продажи от момента развёртывания.
const LegacyWindow = 28 * day

// Params описывает продажу с префандом, основным периодом и ступенчатым бонусом.
type Params struct {
	Owner        common.Address
	Wallet       common.Address
	Token        TokenLedger
	SaleAccount  common.Address
	PrefundStart time.Time
	StartTime    time.Time
	EndTime      time.Time
	Rate         uint64
	// FundingGoal равен nil, если цель сбора не ограничена.
	FundingGoal    *big.Int
	PrefundMinimum *big.Int
	FundingMinimum *big.Int
	Custody        model.CustodyMode
	// Schedule по умолчанию строится PhasedSchedule от Rate и StartTime.
	Schedule *Schedule
}

// LegacyParams описывает простую продажу: один основной период от момента развёртывания,
// фиксированная цель сбора и прямая пересылка средств.
type LegacyParams struct {
	Owner       common.Address
	Wallet      common.Address
	Token       TokenLedger
	SaleAccount common.Address
	Rate        uint64
	DeployedAt  time.Time
}

// Sale хранит состояние продажи. Все мутации проходят через его методы.
type Sale struct {
	owner       common.Address
	wallet      common.Address
	token       TokenLedger
	saleAccount common.Address

	bounds   Boundaries
	rate     uint64
	schedule Schedule

	fundingGoal         *big.Int
	weiRaised           *big.Int
	privateContribution *big.Int
	prefundMinimum      *big.Int
	fundingMinimum      *big.Int

	active         bool
	closed         bool
	releaseEnabled bool
	// releaseGated разделяет разрешение выплаты и приём взносов.
	releaseGated bool

	whitelist     map[common.Address]bool
	contributions map[common.Address]*model.Contribution
	custody       custody

	events []model.Event
}

// New создаёт продажу с префандом. Продажа создаётся неактивной.
func New(p Params) (*Sale, error) {
	const op = "construct"
	if err := validateParties(p.Owner, p.Wallet, p.SaleAccount, p.Token, p.Rate); err != nil {
		return nil, err
	}
	bounds := Boundaries{PrefundStart: p.PrefundStart, StartTime: p.StartTime, EndTime: p.EndTime}
	if err := bounds.validate(true); err != nil {
		return nil, err
	}

	schedule := PhasedSchedule(p.Rate, p.StartTime)
	if p.Schedule != nil {
		schedule = *p.Schedule
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	prefundMin := orDefault(p.PrefundMinimum, DefaultPrefundMinimum)
	fundingMin := orDefault(p.FundingMinimum, DefaultFundingMinimum)
	if prefundMin.Cmp(fundingMin) <= 0 {
		return nil, validationErr(op, "prefund minimum must exceed funding minimum")
	}
	if p.FundingGoal != nil && p.FundingGoal.Sign() <= 0 {
		return nil, validationErr(op, "funding goal must be positive")
	}

	var c custody
	switch p.Custody {
	case model.CustodyDirect, "":
		c = newForwarder(p.Wallet)
	case model.CustodyVault:
		c = newVault(p.Wallet)
	default:
		return nil, validationErr(op, "unknown custody mode %q", p.Custody)
	}

	s := newSale(p.Owner, p.Wallet, p.SaleAccount, p.Token, p.Rate, bounds, schedule, c)
	s.fundingGoal = copyInt(p.FundingGoal)
	s.prefundMinimum = prefundMin
	s.fundingMinimum = fundingMin
	s.releaseGated = true
	return s, nil
}

// NewLegacy создаёт простую продажу с окном LegacyWindow от DeployedAt.
func NewLegacy(p LegacyParams) (*Sale, error) {
	if err := validateParties(p.Owner, p.Wallet, p.SaleAccount, p.Token, p.Rate); err != nil {
		return nil, err
	}
	if p.DeployedAt.IsZero() {
		return nil, validationErr("construct", "deployment time must be set")
	}
	bounds := Boundaries{PrefundStart: p.DeployedAt, StartTime: p.DeployedAt, EndTime: p.DeployedAt.Add(LegacyWindow)}

	s := newSale(p.Owner, p.Wallet, p.SaleAccount, p.Token, p.Rate, bounds,
		LegacySchedule(p.Rate, p.DeployedAt), newForwarder(p.Wallet))
	s.fundingGoal = new(big.Int).Set(DefaultFundingGoal)
	s.prefundMinimum = new(big.Int).Set(DefaultFundingMinimum)
	s.fundingMinimum = new(big.Int).Set(DefaultFundingMinimum)
	return s, nil
}

func newSale(owner, wallet, account common.Address, token TokenLedger, rate uint64, b Boundaries, sch Schedule, c custody) *Sale {
	return &Sale{
		owner:               owner,
		wallet:              wallet,
		token:               token,
		saleAccount:         account,
		bounds:              b,
		rate:                rate,
		schedule:            sch,
		weiRaised:           new(big.Int),
		privateContribution: new(big.Int),
		whitelist:           make(map[common.Address]bool),
		contributions:       make(map[common.Address]*model.Contribution),
		custody:             c,
	}
}

func validateParties(owner, wallet, account common.Address, token TokenLedger, rate uint64) error {
	const op = "construct"
	switch {
	case owner == (common.Address{}):
		return validationErr(op, "owner is the zero address")
	case wallet == (common.Address{}):
		return validationErr(op, "wallet is the zero address")
	case account == (common.Address{}):
		return validationErr(op, "sale account is the zero address")
	case token == nil:
		return validationErr(op, "token ledger is not set")
	case rate == 0:
		return validationErr(op, "rate is zero")
	case rate > MaxRate:
		return validationErr(op, "rate %d exceeds %d", rate, uint64(MaxRate))
	}
	return nil
}

// UseLedger заменяет реестр токена. Используется после восстановления из журнала.
func (s *Sale) UseLedger(l TokenLedger) {
	s.token = l
}

// Owner возвращает текущего владельца.
func (s *Sale) Owner() common.Address { return s.owner }

// SaleAccount возвращает адрес, на котором продажа держит токены.
func (s *Sale) SaleAccount() common.Address { return s.saleAccount }

// Phase возвращает фазу продажи на момент now.
func (s *Sale) Phase(now time.Time) model.Phase {
	return PhaseAt(now, s.bounds, s.closed)
}

// Rate возвращает действующий множитель на момент now.
func (s *Sale) Rate(now time.Time) uint64 {
	return s.schedule.RateAt(now)
}

// WeiRaised возвращает собранную сумму с учётом частных взносов.
func (s *Sale) WeiRaised() *big.Int {
	return new(big.Int).Set(s.weiRaised)
}

// IsFundingGoalReached сообщает, достигнута ли цель сбора. Без цели всегда false.
func (s *Sale) IsFundingGoalReached() bool {
	return s.fundingGoal != nil && s.weiRaised.Cmp(s.fundingGoal) >= 0
}

// Status возвращает снимок состояния продажи на момент now.
func (s *Sale) Status(now time.Time) model.Status {
	st := model.Status{
		Owner:               s.owner,
		Wallet:              s.wallet,
		Phase:               s.Phase(now),
		Active:              s.active,
		Closed:              s.closed,
		ReleaseEnabled:      s.releaseEnabled,
		Rate:                s.Rate(now),
		WeiRaised:           s.weiRaised.String(),
		PrivateContribution: s.privateContribution.String(),
		FundingGoalReached:  s.IsFundingGoalReached(),
		Custody:             s.custody.mode(),
		PrefundStart:        s.bounds.PrefundStart,
		StartTime:           s.bounds.StartTime,
		EndTime:             s.bounds.EndTime,
	}
	if s.fundingGoal != nil {
		st.FundingGoal = s.fundingGoal.String()
	}
	if v, ok := s.custody.(*vault); ok {
		st.VaultState = v.state
	}
	return st
}

func orDefault(v, def *big.Int) *big.Int {
	if v == nil {
		return new(big.Int).Set(def)
	}
	return new(big.Int).Set(v)
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
