// warmer.go — фоновое обслуживание кэша: периодическая очистка истёкших
// записей и прогрев типичных фильтров.
//
// Прогрев — оптимизация, не зависимость корректности: любая ошибка
// логируется и игнорируется. Тикеры работают независимо от
// request-горутин; блокировка кэша берётся только внутри Sweep,
// никогда на время запроса к внешнему хранилищу.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
)

// WarmFunc — прогрев одного фильтра через обычный путь resolve-and-cache.
// Реализуется сервисным слоем.
type WarmFunc func(ctx context.Context, spec model.FilterSpec) error

// Интервалы фонового обслуживания по умолчанию.
const (
	// DefaultSweepInterval — интервал очистки истёкших записей.
	DefaultSweepInterval = 1 * time.Minute
	// DefaultWarmInterval — интервал прогрева типичных фильтров.
	DefaultWarmInterval = 15 * time.Minute
)

// Warmer — фоновый обслуживатель TieredCache.
type Warmer struct {
	cache         *TieredCache
	warm          WarmFunc
	specs         []model.FilterSpec
	sweepInterval time.Duration
	warmInterval  time.Duration
	logger        *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWarmer создаёт фоновый обслуживатель кэша.
// specs — фиксированный набор типичных фильтров для прогрева
// (может быть пустым — тогда работает только очистка).
func NewWarmer(
	cache *TieredCache,
	warm WarmFunc,
	specs []model.FilterSpec,
	sweepInterval time.Duration,
	warmInterval time.Duration,
	logger *slog.Logger,
) *Warmer {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if warmInterval <= 0 {
		warmInterval = DefaultWarmInterval
	}
	return &Warmer{
		cache:         cache,
		warm:          warm,
		specs:         specs,
		sweepInterval: sweepInterval,
		warmInterval:  warmInterval,
		logger:        logger.With(slog.String("component", "cache_warmer")),
	}
}

// Start запускает горутины очистки и прогрева.
// Первый прогрев выполняется сразу, чтобы скрыть first-touch латентность
// типичных запросов после старта.
func (w *Warmer) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.sweepLoop(ctx)
	go w.warmLoop(ctx)

	w.logger.Info("Фоновое обслуживание кэша запущено",
		slog.Duration("sweep_interval", w.sweepInterval),
		slog.Duration("warm_interval", w.warmInterval),
		slog.Int("warm_specs", len(w.specs)),
	)
}

// Stop останавливает фоновые горутины и дожидается их завершения.
func (w *Warmer) Stop() {
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		w.logger.Info("Фоновое обслуживание кэша остановлено")
	})
}

// sweepLoop периодически вычищает истёкшие и устаревшие по версии записи.
func (w *Warmer) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := w.cache.Sweep(); removed > 0 {
				w.logger.Debug("Очистка кэша выполнена", slog.Int("removed", removed))
			}
		}
	}
}

// warmLoop периодически прогревает типичные фильтры.
func (w *Warmer) warmLoop(ctx context.Context) {
	defer w.wg.Done()

	if len(w.specs) == 0 || w.warm == nil {
		return
	}

	w.warmAll(ctx)

	ticker := time.NewTicker(w.warmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.warmAll(ctx)
		}
	}
}

// warmAll прогревает все типичные фильтры. Ошибки логируются и игнорируются.
func (w *Warmer) warmAll(ctx context.Context) {
	for _, spec := range w.specs {
		if ctx.Err() != nil {
			return
		}
		if err := w.warm(ctx, spec); err != nil {
			w.logger.Warn("Ошибка прогрева фильтра",
				slog.String("error", err.Error()),
			)
		}
	}
}

// RecentYearSpecs строит набор типичных фильтров для прогрева:
// последние два года, по одному фильтру на каждую из указанных
// специальностей плюс фильтр без специальности.
func RecentYearSpecs(now time.Time, specialties []string) []model.FilterSpec {
	years := []int{now.Year() - 1, now.Year()}

	specs := []model.FilterSpec{
		model.NewFilterSpec(nil, years, nil, nil, nil, ""),
	}
	for _, sp := range specialties {
		specs = append(specs, model.NewFilterSpec([]string{sp}, years, nil, nil, nil, ""))
	}
	return specs
}
