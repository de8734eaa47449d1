package crowdsale

import (
	"math"
	"time"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

const day = 24 * time.Hour

// Schedule задаёт таблицу бонусных множителей.
// Tiers отсчитываются от Anchor; до Anchor действует Prefund, если он задан.
type Schedule struct {
	Anchor  time.Time
	Prefund uint64
	Tiers   []model.RateTier
}

// PhasedSchedule возвращает расписание по умолчанию для продажи с префандом:
// +20% в префанд, +15% в первый день, +10% до конца первой недели, +5% на второй неделе.
func PhasedSchedule(rate uint64, startTime time.Time) Schedule {
	return Schedule{
		Anchor:  startTime,
		Prefund: bonus(rate, 20),
		Tiers: []model.RateTier{
			{Offset: 0, Multiplier: bonus(rate, 15)},
			{Offset: day, Multiplier: bonus(rate, 10)},
			{Offset: 7 * day, Multiplier: bonus(rate, 5)},
			{Offset: 14 * day, Multiplier: rate},
		},
	}
}

// LegacySchedule возвращает расписание простой продажи: +8% в первые сутки после развёртывания.
func LegacySchedule(rate uint64, deployedAt time.Time) Schedule {
	return Schedule{
		Anchor: deployedAt,
		Tiers: []model.RateTier{
			{Offset: 0, Multiplier: bonus(rate, 8)},
			{Offset: day, Multiplier: rate},
		},
	}
}

// MaxRate ограничивает базовый множитель так, чтобы бонус в 20% помещался в uint64.
const MaxRate = math.MaxUint64 / 120

func bonus(rate, percent uint64) uint64 {
	return rate * (100 + percent) / 100
}

// Validate проверяет упорядоченность таблицы: смещения строго растут начиная с нуля,
// множители не растут.
func (s Schedule) Validate() error {
	const op = "construct"
	if len(s.Tiers) == 0 {
		return validationErr(op, "rate schedule has no tiers")
	}
	if s.Tiers[0].Offset != 0 {
		return validationErr(op, "first rate tier must start at offset 0")
	}
	prev := s.Tiers[0].Multiplier
	if s.Prefund != 0 && s.Prefund < prev {
		return validationErr(op, "prefund multiplier must not be below the first tier")
	}
	for i, t := range s.Tiers {
		if t.Multiplier == 0 {
			return validationErr(op, "rate tier %d has zero multiplier", i)
		}
		if i == 0 {
			continue
		}
		if t.Offset <= s.Tiers[i-1].Offset {
			return validationErr(op, "rate tier %d offset is not increasing", i)
		}
		if t.Multiplier > prev {
			return validationErr(op, "rate tier %d multiplier increases", i)
		}
		prev = t.Multiplier
	}
	return nil
}

// RateAt возвращает множитель wei->токены на момент now.
func (s Schedule) RateAt(now time.Time) uint64 {
	if now.Before(s.Anchor) {
		if s.Prefund != 0 {
			return s.Prefund
		}
		return s.Tiers[0].Multiplier
	}
	elapsed := now.Sub(s.Anchor)
	rate := s.Tiers[0].Multiplier
	for _, t := range s.Tiers {
		if elapsed < t.Offset {
			break
		}
		rate = t.Multiplier
	}
	return rate
}
