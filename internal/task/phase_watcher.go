// Package task содержит фоновые задачи сервиса.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

const phaseWatcherName = "sale_phase_watcher"

// StatusSource отдаёт текущий снимок продажи.
type StatusSource interface {
	Status(ctx context.Context) model.Status
}

// PhaseWatcher периодически проверяет фазу и ставку продажи и пишет в лог их смену.
// Фаза зависит только от времени, поэтому отдельного события о ней ядро не порождает.
type PhaseWatcher struct {
	scheduler gocron.Scheduler
	source    StatusSource
	interval  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	observed bool
	phase    model.Phase
	rate     uint64
	goal     bool
}

// NewPhaseWatcher создаёт наблюдателя с периодом interval.
func NewPhaseWatcher(source StatusSource, interval time.Duration, logger *zap.Logger) (*PhaseWatcher, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("phase watch interval must be positive, got %s", interval)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &PhaseWatcher{
		scheduler: s,
		source:    source,
		interval:  interval,
		logger:    logger,
	}, nil
}

// Start регистрирует задачу и запускает планировщик. Первая проверка выполняется сразу.
func (w *PhaseWatcher) Start() error {
	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.run),
		gocron.WithName(phaseWatcherName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", phaseWatcherName, err)
	}

	w.scheduler.Start()
	w.logger.Info("phase watcher started", zap.Duration("interval", w.interval))
	return nil
}

// Stop останавливает планировщик и дожидается завершения выполняющейся проверки.
func (w *PhaseWatcher) Stop() error {
	if err := w.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	w.logger.Info("phase watcher stopped")
	return nil
}

func (w *PhaseWatcher) run() {
	w.check(context.Background())
}

func (w *PhaseWatcher) check(ctx context.Context) {
	st := w.source.Status(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.observed {
		w.observed = true
		w.phase, w.rate, w.goal = st.Phase, st.Rate, st.FundingGoalReached
		w.logger.Info("sale phase observed",
			zap.String("phase", string(st.Phase)),
			zap.Uint64("rate", st.Rate),
			zap.Bool("active", st.Active),
			zap.String("wei_raised", st.WeiRaised),
		)
		return
	}

	if st.Phase != w.phase {
		w.logger.Info("sale phase changed",
			zap.String("from", string(w.phase)),
			zap.String("to", string(st.Phase)),
			zap.String("wei_raised", st.WeiRaised),
		)
		w.phase = st.Phase
	}
	if st.Rate != w.rate {
		w.logger.Info("sale rate changed", zap.Uint64("from", w.rate), zap.Uint64("to", st.Rate))
		w.rate = st.Rate
	}
	if st.FundingGoalReached && !w.goal {
		w.logger.Info("funding goal reached", zap.String("wei_raised", st.WeiRaised), zap.String("goal", st.FundingGoal))
	}
	w.goal = st.FundingGoalReached
}
