// question.go — сервис подсчёта и выборки вопросов по фильтру.
// Координирует KeyCodec/CacheFacade, FilterEngine, StatusReconciler
// и Prometheus-метрики.
//
// Поток данных: вызывающий → кэш (lookup) → при промахе FilterEngine
// (запрос) → StatusReconciler (сверка статусов / оценка счётчика) →
// кэш (store) → вызывающий. Конкурентные промахи по одному ключу
// коалесцируются через singleflight; корректность от этого не зависит —
// без коалесцирования оба вычисления записали бы эквивалентное значение.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/examtrainer/question-module/internal/cache"
	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
	"github.com/bigkaa/examtrainer/question-module/internal/repository"
)

// Ошибки сервисного слоя.
var (
	// ErrNotFound — вопрос не найден.
	ErrNotFound = errors.New("вопрос не найден")
	// ErrStatusRequiresUser — статус-фильтр запрошен без аутентифицированного пользователя.
	ErrStatusRequiresUser = errors.New("статус-фильтр требует аутентифицированного пользователя")
)

// Prometheus-метрики сервиса вопросов.
var (
	countTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_count_requests_total",
		Help: "Общее количество запросов подсчёта вопросов.",
	})
	countEstimatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_count_estimates_total",
		Help: "Количество приближённых (сэмплированных) подсчётов.",
	})
	searchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_search_requests_total",
		Help: "Общее количество поисковых запросов по банку вопросов.",
	})
	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qb_resolve_duration_seconds",
		Help:    "Длительность вычисления результата при промахе кэша.",
		Buckets: prometheus.DefBuckets,
	})
	storeFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_store_fallbacks_total",
		Help: "Количество деградаций до пустого ответа из-за ошибки хранилища.",
	})
)

// CountResult — результат подсчёта вопросов.
type CountResult struct {
	// Count — количество вопросов (точное или оценка)
	Count int
	// Exact — является ли Count точным
	Exact bool
	// Cached — получен ли результат из кэша
	Cached bool
	// Duration — время обработки (advisory, для observability)
	Duration time.Duration
}

// SearchResult — результат поиска вопросов с пагинацией.
type SearchResult struct {
	// Questions — вопросы страницы
	Questions []*model.QuestionRecord
	// Total — общее количество совпадений
	Total int
	// Exact — является ли Total точным
	Exact bool
	// Limit — запрошенный лимит
	Limit int
	// Offset — текущее смещение
	Offset int
	// HasMore — есть ли ещё результаты
	HasMore bool
	// Cached — получен ли результат из кэша
	Cached bool
	// Duration — время обработки (advisory)
	Duration time.Duration
}

// QuestionService — сервис подсчёта и выборки вопросов.
type QuestionService struct {
	questions    repository.QuestionRepository
	engine       *FilterEngine
	reconciler   *StatusReconciler
	facade       *cache.Facade
	records      *QuestionRecordCache
	codec        *cache.KeyCodec
	flight       singleflight.Group
	sampleSize   int
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewQuestionService создаёт сервис вопросов.
// sampleSize <= 0 заменяется DefaultSampleSize.
func NewQuestionService(
	questions repository.QuestionRepository,
	engine *FilterEngine,
	reconciler *StatusReconciler,
	facade *cache.Facade,
	records *QuestionRecordCache,
	sampleSize int,
	queryTimeout time.Duration,
	logger *slog.Logger,
) *QuestionService {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &QuestionService{
		questions:    questions,
		engine:       engine,
		reconciler:   reconciler,
		facade:       facade,
		records:      records,
		codec:        cache.NewKeyCodec(),
		sampleSize:   sampleSize,
		queryTimeout: queryTimeout,
		logger:       logger.With(slog.String("component", "question_service")),
	}
}

// Count возвращает количество вопросов по фильтру.
//
// Без статус-тегов — дешёвый путь: один точный COUNT-запрос.
// Со статус-тегами — оценка по случайной выборке кандидатов, помеченная
// Exact == false. Ошибка хранилища деградирует до {0, exact:false}
// без ошибки вызывающей стороне (UI покажет "нет совпадений").
func (s *QuestionService) Count(ctx context.Context, spec model.FilterSpec) (CountResult, error) {
	start := time.Now()
	countTotal.Inc()

	if spec.HasStatusFilter() && spec.IsAnonymous() {
		return CountResult{}, ErrStatusRequiresUser
	}

	if est, ok := s.facade.GetCount(spec); ok {
		return CountResult{
			Count:    est.Count,
			Exact:    est.Exact,
			Cached:   true,
			Duration: time.Since(start),
		}, nil
	}

	flightKey := "count:" + s.codec.Canonicalize(spec)
	v, err, _ := s.flight.Do(flightKey, func() (any, error) {
		return s.computeCount(ctx, spec)
	})
	if err != nil {
		// Деградация: ошибка хранилища локальна для запроса,
		// наружу уходит пустой результат, а не исключение.
		s.logger.Error("Ошибка подсчёта вопросов, деградация до нуля",
			slog.String("error", err.Error()),
		)
		storeFallbacksTotal.Inc()
		return CountResult{Count: 0, Exact: false, Duration: time.Since(start)}, nil
	}

	est := v.(model.CountEstimate)
	resolveDuration.Observe(time.Since(start).Seconds())
	return CountResult{
		Count:    est.Count,
		Exact:    est.Exact,
		Duration: time.Since(start),
	}, nil
}

// computeCount вычисляет счётчик при промахе кэша и кэширует результат.
func (s *QuestionService) computeCount(ctx context.Context, spec model.FilterSpec) (model.CountEstimate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	resolved, err := s.engine.Resolve(ctx, spec)
	if err != nil {
		return model.CountEstimate{}, fmt.Errorf("разрешение фильтра: %w", err)
	}

	total, err := s.engine.Count(ctx, resolved)
	if err != nil {
		return model.CountEstimate{}, fmt.Errorf("подсчёт вопросов: %w", err)
	}

	var est model.CountEstimate
	if !spec.HasStatusFilter() {
		est = model.CountEstimate{Count: total, Exact: true}
	} else {
		sample, err := s.engine.SampleIDs(ctx, resolved, s.sampleSize)
		if err != nil {
			return model.CountEstimate{}, fmt.Errorf("выборка кандидатов: %w", err)
		}
		est, err = s.reconciler.EstimateCount(ctx, spec.EffectiveUserID(), sample, total, spec.StatusTags)
		if err != nil {
			return model.CountEstimate{}, fmt.Errorf("оценка счётчика: %w", err)
		}
		if !est.Exact {
			countEstimatesTotal.Inc()
		}
	}

	s.facade.SetCount(spec, est)
	return est, nil
}

// Search возвращает страницу вопросов по фильтру.
//
// Со статус-тегами используется точный путь сверки: материализуется
// полный список кандидатов, фильтруется по истории пользователя и
// пагинируется в памяти — возвращаемый список всегда авторитетен.
// Ошибка хранилища деградирует до пустой страницы с Exact == false.
func (s *QuestionService) Search(ctx context.Context, spec model.FilterSpec, limit, offset int) (*SearchResult, error) {
	start := time.Now()
	searchTotal.Inc()

	if spec.HasStatusFilter() && spec.IsAnonymous() {
		return nil, ErrStatusRequiresUser
	}

	if page, ok := s.facade.GetQuestions(spec, limit, offset); ok {
		return searchResultFromPage(page, limit, offset, true, time.Since(start)), nil
	}

	flightKey := fmt.Sprintf("search:%s:%d:%d", s.codec.Canonicalize(spec), limit, offset)
	v, err, _ := s.flight.Do(flightKey, func() (any, error) {
		return s.computePage(ctx, spec, limit, offset)
	})
	if err != nil {
		s.logger.Error("Ошибка поиска вопросов, деградация до пустой страницы",
			slog.String("error", err.Error()),
		)
		storeFallbacksTotal.Inc()
		return &SearchResult{
			Questions: []*model.QuestionRecord{},
			Exact:     false,
			Limit:     limit,
			Offset:    offset,
			Duration:  time.Since(start),
		}, nil
	}

	page := v.(cache.QuestionPage)
	resolveDuration.Observe(time.Since(start).Seconds())
	return searchResultFromPage(page, limit, offset, false, time.Since(start)), nil
}

// computePage вычисляет страницу при промахе кэша и кэширует результат.
func (s *QuestionService) computePage(ctx context.Context, spec model.FilterSpec, limit, offset int) (cache.QuestionPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	resolved, err := s.engine.Resolve(ctx, spec)
	if err != nil {
		return cache.QuestionPage{}, fmt.Errorf("разрешение фильтра: %w", err)
	}

	var page cache.QuestionPage
	if !spec.HasStatusFilter() {
		total, err := s.engine.Count(ctx, resolved)
		if err != nil {
			return cache.QuestionPage{}, fmt.Errorf("подсчёт вопросов: %w", err)
		}
		items, err := s.engine.Page(ctx, resolved, limit, offset)
		if err != nil {
			return cache.QuestionPage{}, fmt.Errorf("выборка страницы: %w", err)
		}
		if items == nil {
			items = []*model.QuestionRecord{}
		}
		page = cache.QuestionPage{Questions: items, Total: total, Exact: true}
	} else {
		page, err = s.statusFilteredPage(ctx, spec, resolved, limit, offset)
		if err != nil {
			return cache.QuestionPage{}, err
		}
	}

	s.facade.SetQuestions(spec, limit, offset, page)
	return page, nil
}

// statusFilteredPage — точный путь сверки для операции выборки:
// полный список кандидатов фильтруется по истории пользователя,
// пагинация выполняется по отфильтрованному списку.
func (s *QuestionService) statusFilteredPage(
	ctx context.Context,
	spec model.FilterSpec,
	resolved ResolvedFilter,
	limit, offset int,
) (cache.QuestionPage, error) {
	candidateIDs, err := s.engine.CandidateIDs(ctx, resolved, 0)
	if err != nil {
		return cache.QuestionPage{}, fmt.Errorf("выборка кандидатов: %w", err)
	}

	matched, err := s.reconciler.FilterIDs(ctx, spec.EffectiveUserID(), candidateIDs, spec.StatusTags)
	if err != nil {
		return cache.QuestionPage{}, fmt.Errorf("сверка статусов: %w", err)
	}

	total := len(matched)
	pageIDs := paginateIDs(matched, limit, offset)

	items, err := s.questions.FetchByIDs(ctx, pageIDs)
	if err != nil {
		return cache.QuestionPage{}, fmt.Errorf("выборка вопросов страницы: %w", err)
	}
	if items == nil {
		items = []*model.QuestionRecord{}
	}

	return cache.QuestionPage{Questions: items, Total: total, Exact: true}, nil
}

// FilterOptions возвращает доступные значения фильтров (с кэшированием).
// Ошибка хранилища деградирует до пустых опций.
func (s *QuestionService) FilterOptions(ctx context.Context) (model.FilterOptions, bool, error) {
	if opts, ok := s.facade.GetFilterOptions(); ok {
		return opts, true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	opts, err := s.questions.FilterOptions(ctx)
	if err != nil {
		s.logger.Error("Ошибка чтения опций фильтров, деградация до пустых",
			slog.String("error", err.Error()),
		)
		storeFallbacksTotal.Inc()
		return model.FilterOptions{}, false, nil
	}

	s.facade.SetFilterOptions(opts)
	return opts, false, nil
}

// GetQuestion возвращает вопрос по id.
// Сначала проверяет LRU-кэш записей, при промахе — запрос к PostgreSQL,
// результат кэшируется.
func (s *QuestionService) GetQuestion(ctx context.Context, questionID string) (*model.QuestionRecord, error) {
	if record, ok := s.records.Get(questionID); ok {
		s.logger.Debug("Кэш hit для вопроса", slog.String("question_id", questionID))
		return record, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	record, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение вопроса: %w", err)
	}

	s.records.Set(questionID, record)
	return record, nil
}

// InvalidateCache инкрементирует версию схемы кэша и очищает кэш записей.
// Вызывается после импорта вопросов или изменения справочников.
func (s *QuestionService) InvalidateCache() uint64 {
	s.records.Purge()
	return s.facade.InvalidateAll()
}

// Warm прогревает кэш для одного фильтра через обычный путь подсчёта.
// Используется CacheWarmer; ошибки возвращаются для логирования
// и ни на что не влияют.
func (s *QuestionService) Warm(ctx context.Context, spec model.FilterSpec) error {
	_, err := s.Count(ctx, spec)
	return err
}

// searchResultFromPage собирает SearchResult из кэшируемой страницы.
func searchResultFromPage(page cache.QuestionPage, limit, offset int, cached bool, d time.Duration) *SearchResult {
	return &SearchResult{
		Questions: page.Questions,
		Total:     page.Total,
		Exact:     page.Exact,
		Limit:     limit,
		Offset:    offset,
		HasMore:   offset+len(page.Questions) < page.Total,
		Cached:    cached,
		Duration:  d,
	}
}

// paginateIDs возвращает срез ids[offset:offset+limit] с защитой границ.
func paginateIDs(ids []string, limit, offset int) []string {
	if offset >= len(ids) {
		return nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end]
}
