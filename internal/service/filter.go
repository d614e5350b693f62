// filter.go — построение запроса к банку вопросов по FilterSpec.
// Разрешает имена специальностей и типов экзаменов в суррогатные id
// через id-маппинг ярус кэша (БД индексирована по id, не по имени).
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/examtrainer/question-module/internal/cache"
	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
	"github.com/bigkaa/examtrainer/question-module/internal/repository"
)

// Виды справочников для id-маппинг яруса кэша.
const (
	mappingSpecialties = "specialties"
	mappingExamTypes   = "exam_types"
)

// ResolvedFilter — FilterSpec, разрешённый в термины хранилища.
// Matchable == false означает, что фильтр ссылается на несуществующее
// имя справочника и заведомо не совпадёт ни с одним вопросом.
type ResolvedFilter struct {
	// Filter — предикаты в терминах хранилища
	Filter repository.QuestionFilter
	// Matchable — может ли фильтр в принципе дать совпадения
	Matchable bool
}

// FilterEngine — построитель запросов по фильтру банка вопросов.
type FilterEngine struct {
	questions repository.QuestionRepository
	facade    *cache.Facade
	logger    *slog.Logger
}

// NewFilterEngine создаёт движок фильтрации.
func NewFilterEngine(
	questions repository.QuestionRepository,
	facade *cache.Facade,
	logger *slog.Logger,
) *FilterEngine {
	return &FilterEngine{
		questions: questions,
		facade:    facade,
		logger:    logger.With(slog.String("component", "filter_engine")),
	}
}

// Resolve разрешает FilterSpec в ResolvedFilter.
// Предикаты собираются в порядке убывающей селективности
// (year → difficulty → specialty → exam type, см. buildFilterWhere).
func (e *FilterEngine) Resolve(ctx context.Context, spec model.FilterSpec) (ResolvedFilter, error) {
	resolved := ResolvedFilter{
		Filter: repository.QuestionFilter{
			Years:        spec.Years,
			Difficulties: spec.Difficulties,
		},
		Matchable: true,
	}

	if len(spec.Specialties) > 0 {
		ids, ok, err := e.resolveNames(ctx, mappingSpecialties, spec.Specialties)
		if err != nil {
			return resolved, err
		}
		if !ok {
			resolved.Matchable = false
			return resolved, nil
		}
		resolved.Filter.SpecialtyIDs = ids
	}

	if len(spec.ExamTypes) > 0 {
		ids, ok, err := e.resolveNames(ctx, mappingExamTypes, spec.ExamTypes)
		if err != nil {
			return resolved, err
		}
		if !ok {
			resolved.Matchable = false
			return resolved, nil
		}
		resolved.Filter.ExamTypeIDs = ids
	}

	return resolved, nil
}

// Count возвращает точное количество вопросов по фильтру без учёта
// статус-тегов. Это дешёвый общий путь: один COUNT-запрос.
func (e *FilterEngine) Count(ctx context.Context, resolved ResolvedFilter) (int, error) {
	if !resolved.Matchable {
		return 0, nil
	}
	return e.questions.CountByFilter(ctx, resolved.Filter)
}

// CandidateIDs возвращает id вопросов-кандидатов в стабильном порядке.
// limit <= 0 — без ограничения.
func (e *FilterEngine) CandidateIDs(ctx context.Context, resolved ResolvedFilter, limit int) ([]string, error) {
	if !resolved.Matchable {
		return nil, nil
	}
	return e.questions.FetchIDs(ctx, resolved.Filter, limit)
}

// SampleIDs возвращает случайную выборку id вопросов-кандидатов.
func (e *FilterEngine) SampleIDs(ctx context.Context, resolved ResolvedFilter, n int) ([]string, error) {
	if !resolved.Matchable {
		return nil, nil
	}
	return e.questions.SampleIDs(ctx, resolved.Filter, n)
}

// Page возвращает страницу вопросов по фильтру.
func (e *FilterEngine) Page(ctx context.Context, resolved ResolvedFilter, limit, offset int) ([]*model.QuestionRecord, error) {
	if !resolved.Matchable {
		return []*model.QuestionRecord{}, nil
	}
	return e.questions.FetchPage(ctx, resolved.Filter, limit, offset)
}

// resolveNames разрешает имена справочника в суррогатные id через
// id-маппинг ярус кэша; при промахе маппинг читается из БД и кэшируется.
// Неизвестные имена пропускаются; если не разрешилось ни одно имя,
// возвращается (nil, false, nil) — фильтр заведомо пуст.
func (e *FilterEngine) resolveNames(ctx context.Context, kind string, names []string) ([]int, bool, error) {
	mapping, ok := e.facade.GetIDMapping(kind)
	if !ok {
		var err error
		mapping, err = e.loadMapping(ctx, kind)
		if err != nil {
			return nil, false, err
		}
		e.facade.SetIDMapping(kind, mapping)
	}

	ids := make([]int, 0, len(names))
	for _, name := range names {
		id, found := mapping[name]
		if !found {
			e.logger.Debug("Неизвестное имя справочника в фильтре",
				slog.String("kind", kind),
				slog.String("name", name),
			)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, false, nil
	}
	return ids, true, nil
}

// loadMapping читает справочник из БД.
func (e *FilterEngine) loadMapping(ctx context.Context, kind string) (map[string]int, error) {
	switch kind {
	case mappingSpecialties:
		return e.questions.ListSpecialties(ctx)
	case mappingExamTypes:
		return e.questions.ListExamTypes(ctx)
	default:
		return nil, fmt.Errorf("неизвестный вид справочника: %s", kind)
	}
}
