// facade.go — типизированные операции над TieredCache.
// Каждый класс данных привязан к собственному TTL-ярусу:
// id-маппинги живут дольше всего, страницы вопросов — меньше всего.
// Set* валидирует форму данных перед записью: некорректный ответ
// верхнего слоя не должен отравить кэш — запись отбрасывается с логом,
// следующий читатель вычислит значение заново.
package cache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
)

// TTLConfig — длительности жизни записей по классам.
// Контрактом является относительный порядок:
// IDMappings > FilterOptions > Counts > Questions.
type TTLConfig struct {
	// IDMappings — маппинги имя → id, меняются практически никогда
	IDMappings time.Duration
	// FilterOptions — списки доступных значений фильтров, меняются редко
	FilterOptions time.Duration
	// Counts — счётчики, меняются с каждым импортом вопросов, но терпят staleness
	Counts time.Duration
	// Questions — страницы списков вопросов, самый волатильный и тяжёлый класс
	Questions time.Duration
}

// DefaultTTLConfig — TTL-ярусы по умолчанию.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		IDMappings:    24 * time.Hour,
		FilterOptions: 6 * time.Hour,
		Counts:        10 * time.Minute,
		Questions:     2 * time.Minute,
	}
}

// QuestionPage — кэшируемая страница результатов поиска вопросов.
type QuestionPage struct {
	// Questions — вопросы страницы
	Questions []*model.QuestionRecord
	// Total — общее количество совпадений (точное или оценка)
	Total int
	// Exact — является ли Total точным
	Exact bool
}

// Границы валидации года вопроса.
const (
	minValidYear = 1990
	maxValidYear = 2100
)

// Facade — типизированный доступ к TieredCache.
type Facade struct {
	cache  *TieredCache
	codec  *KeyCodec
	ttl    TTLConfig
	logger *slog.Logger
}

// NewFacade создаёт фасад над кэшем.
func NewFacade(cache *TieredCache, ttl TTLConfig, logger *slog.Logger) *Facade {
	return &Facade{
		cache:  cache,
		codec:  NewKeyCodec(),
		ttl:    ttl,
		logger: logger.With(slog.String("component", "cache_facade")),
	}
}

// --- Счётчики ---

// GetCount возвращает закэшированный результат подсчёта по фильтру.
func (f *Facade) GetCount(spec model.FilterSpec) (model.CountEstimate, bool) {
	key := f.codec.SpecKey(ClassCount, f.cache.Version(), spec)
	v, ok := f.cache.Get(key)
	if !ok {
		return model.CountEstimate{}, false
	}
	est, ok := v.(model.CountEstimate)
	return est, ok
}

// SetCount сохраняет результат подсчёта. Отрицательный счётчик или
// противоречивая выборка отбрасываются.
func (f *Facade) SetCount(spec model.FilterSpec, est model.CountEstimate) {
	if est.Count < 0 {
		f.logger.Warn("Отброшен некорректный счётчик", slog.Int("count", est.Count))
		return
	}
	if !est.Exact && est.SampleSize <= 0 {
		f.logger.Warn("Отброшена оценка без выборки",
			slog.Int("sample_size", est.SampleSize),
		)
		return
	}
	key := f.codec.SpecKey(ClassCount, f.cache.Version(), spec)
	f.cache.Set(key, est, f.ttl.Counts)
}

// --- Страницы вопросов ---

// questionsKey — ключ страницы: ключ фильтра + пагинация.
func (f *Facade) questionsKey(spec model.FilterSpec, limit, offset int) string {
	return fmt.Sprintf("%s:%d:%d",
		f.codec.SpecKey(ClassQuestions, f.cache.Version(), spec), limit, offset)
}

// GetQuestions возвращает закэшированную страницу результатов.
func (f *Facade) GetQuestions(spec model.FilterSpec, limit, offset int) (QuestionPage, bool) {
	v, ok := f.cache.Get(f.questionsKey(spec, limit, offset))
	if !ok {
		return QuestionPage{}, false
	}
	page, ok := v.(QuestionPage)
	return page, ok
}

// SetQuestions сохраняет страницу результатов.
// nil-срез и отрицательный total отбрасываются.
func (f *Facade) SetQuestions(spec model.FilterSpec, limit, offset int, page QuestionPage) {
	if page.Questions == nil || page.Total < 0 {
		f.logger.Warn("Отброшена некорректная страница вопросов",
			slog.Bool("nil_questions", page.Questions == nil),
			slog.Int("total", page.Total),
		)
		return
	}
	f.cache.Set(f.questionsKey(spec, limit, offset), page, f.ttl.Questions)
}

// --- Маппинги имя → id ---

// GetIDMapping возвращает маппинг имя → суррогатный id для kind
// ("specialties" или "exam_types").
func (f *Facade) GetIDMapping(kind string) (map[string]int, bool) {
	key := f.codec.StaticKey(ClassIDMapping, f.cache.Version(), kind)
	v, ok := f.cache.Get(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]int)
	return m, ok
}

// SetIDMapping сохраняет маппинг. Пустой маппинг и неположительные id
// отбрасываются: пустой справочник почти наверняка означает ошибку
// верхнего слоя, кэшировать её нельзя.
func (f *Facade) SetIDMapping(kind string, mapping map[string]int) {
	if len(mapping) == 0 {
		f.logger.Warn("Отброшен пустой id-маппинг", slog.String("kind", kind))
		return
	}
	for name, id := range mapping {
		if id <= 0 {
			f.logger.Warn("Отброшен id-маппинг с некорректным id",
				slog.String("kind", kind),
				slog.String("name", name),
				slog.Int("id", id),
			)
			return
		}
	}
	key := f.codec.StaticKey(ClassIDMapping, f.cache.Version(), kind)
	f.cache.Set(key, mapping, f.ttl.IDMappings)
}

// --- Опции фильтров ---

// GetFilterOptions возвращает закэшированные опции фильтров.
func (f *Facade) GetFilterOptions() (model.FilterOptions, bool) {
	key := f.codec.StaticKey(ClassFilterOptions, f.cache.Version(), "all")
	v, ok := f.cache.Get(key)
	if !ok {
		return model.FilterOptions{}, false
	}
	opts, ok := v.(model.FilterOptions)
	return opts, ok
}

// SetFilterOptions сохраняет опции фильтров.
// Года вне диапазона [1990, 2100] и сложности вне [1, 5] отфильтровываются;
// если после фильтрации года опустели при непустом входе — запись отбрасывается.
func (f *Facade) SetFilterOptions(opts model.FilterOptions) {
	validYears := make([]int, 0, len(opts.Years))
	for _, y := range opts.Years {
		if y >= minValidYear && y <= maxValidYear {
			validYears = append(validYears, y)
		}
	}
	if len(opts.Years) > 0 && len(validYears) == 0 {
		f.logger.Warn("Отброшены опции фильтров: все года вне допустимого диапазона")
		return
	}
	validDifficulties := make([]int, 0, len(opts.Difficulties))
	for _, d := range opts.Difficulties {
		if d >= model.MinDifficulty && d <= model.MaxDifficulty {
			validDifficulties = append(validDifficulties, d)
		}
	}
	opts.Years = validYears
	opts.Difficulties = validDifficulties

	key := f.codec.StaticKey(ClassFilterOptions, f.cache.Version(), "all")
	f.cache.Set(key, opts, f.ttl.FilterOptions)
}

// --- Инвалидация ---

// InvalidateAll инкрементирует версию схемы — логически очищает весь кэш.
// Вызывается после импорта вопросов или изменения справочников.
func (f *Facade) InvalidateAll() uint64 {
	return f.cache.BumpVersion()
}

// InvalidateClass удаляет записи одного класса.
func (f *Facade) InvalidateClass(class Class) int {
	return f.cache.InvalidateClass(f.codec.ClassPrefix(class))
}
