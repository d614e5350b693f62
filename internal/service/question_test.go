package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
	"github.com/bigkaa/examtrainer/question-module/internal/repository"
)

// newTestQuestionService собирает QuestionService с моками и свежим кэшем.
func newTestQuestionService(repo *mockQuestionRepo, history *mockHistoryRepo) *QuestionService {
	facade := testFacade()
	engine := NewFilterEngine(repo, facade, slog.Default())
	reconciler := NewStatusReconciler(history, slog.Default())
	records := NewQuestionRecordCache(100, 5*time.Minute)
	return NewQuestionService(repo, engine, reconciler, facade, records,
		10, 5*time.Second, slog.Default())
}

// --- Тесты Count ---

// TestQuestionService_Count_Exact проверяет точный путь подсчёта
// без статус-тегов: один COUNT-запрос, повторный вызов из кэша.
func TestQuestionService_Count_Exact(t *testing.T) {
	callCount := 0
	repo := &mockQuestionRepo{
		countByFilterFn: func(_ context.Context, f repository.QuestionFilter) (int, error) {
			callCount++
			if len(f.Years) != 1 || f.Years[0] != 2025 {
				t.Errorf("Years = %v, ожидался [2025]", f.Years)
			}
			return 42, nil
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})

	spec := model.NewFilterSpec(nil, []int{2025}, nil, nil, nil, "")

	result, err := svc.Count(context.Background(), spec)
	if err != nil {
		t.Fatalf("Count ошибка: %v", err)
	}
	if result.Count != 42 || !result.Exact {
		t.Errorf("result = %+v, ожидался {Count:42 Exact:true}", result)
	}
	if result.Cached {
		t.Error("Cached = true для первого вызова")
	}

	// Повторный вызов — из кэша, без обращения к хранилищу
	result, err = svc.Count(context.Background(), spec)
	if err != nil {
		t.Fatalf("Count ошибка: %v", err)
	}
	if !result.Cached {
		t.Error("Cached = false для повторного вызова")
	}
	if result.Count != 42 {
		t.Errorf("Count = %d, ожидался 42 из кэша", result.Count)
	}
	if callCount != 1 {
		t.Errorf("CountByFilter вызван %d раз, ожидался 1", callCount)
	}
}

// TestQuestionService_Count_StatusEstimate проверяет приближённый путь:
// счётчик масштабируется долей совпавших в случайной выборке.
func TestQuestionService_Count_StatusEstimate(t *testing.T) {
	sample := []string{"q0", "q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8", "q9"}
	repo := &mockQuestionRepo{
		countByFilterFn: func(_ context.Context, _ repository.QuestionFilter) (int, error) {
			return 100, nil
		},
		sampleIDsFn: func(_ context.Context, _ repository.QuestionFilter, n int) ([]string, error) {
			if n != 10 {
				t.Errorf("размер выборки = %d, ожидался 10", n)
			}
			return sample, nil
		},
	}
	// Отвечены q0..q2 → unanswered совпадает у 7 из 10
	history := &mockHistoryRepo{
		answersFn: func(_ context.Context, userID string, _ []string) ([]model.UserAnswerFact, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, ожидался user-1", userID)
			}
			return []model.UserAnswerFact{
				{QuestionID: "q0", AnsweredAt: testTime},
				{QuestionID: "q1", AnsweredAt: testTime},
				{QuestionID: "q2", AnsweredAt: testTime},
			}, nil
		},
	}
	svc := newTestQuestionService(repo, history)

	spec := model.NewFilterSpec(nil, []int{2025}, nil, nil,
		[]model.StatusTag{model.StatusUnanswered}, "user-1")

	result, err := svc.Count(context.Background(), spec)
	if err != nil {
		t.Fatalf("Count ошибка: %v", err)
	}
	if result.Exact {
		t.Error("Exact = true, ожидался false для оценки по выборке")
	}
	if result.Count != 70 {
		t.Errorf("Count = %d, ожидался 70 (100 * 7/10)", result.Count)
	}
}

// TestQuestionService_Count_StatusRequiresUser проверяет отказ
// при статус-фильтре без аутентифицированного пользователя.
func TestQuestionService_Count_StatusRequiresUser(t *testing.T) {
	svc := newTestQuestionService(&mockQuestionRepo{}, &mockHistoryRepo{})

	spec := model.NewFilterSpec(nil, nil, nil, nil,
		[]model.StatusTag{model.StatusUnanswered}, "")

	if _, err := svc.Count(context.Background(), spec); !errors.Is(err, ErrStatusRequiresUser) {
		t.Errorf("err = %v, ожидался ErrStatusRequiresUser", err)
	}
}

// TestQuestionService_Count_StoreErrorDegrades проверяет деградацию:
// ошибка хранилища даёт {0, exact:false} без ошибки вызывающей стороне.
func TestQuestionService_Count_StoreErrorDegrades(t *testing.T) {
	repo := &mockQuestionRepo{
		countByFilterFn: func(_ context.Context, _ repository.QuestionFilter) (int, error) {
			return 0, errors.New("connection refused")
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})

	spec := model.NewFilterSpec(nil, []int{2025}, nil, nil, nil, "")

	result, err := svc.Count(context.Background(), spec)
	if err != nil {
		t.Fatalf("Count вернул ошибку %v, ожидалась деградация", err)
	}
	if result.Count != 0 || result.Exact {
		t.Errorf("result = %+v, ожидался {Count:0 Exact:false}", result)
	}
}

// TestQuestionService_Count_DegradedNotCached проверяет, что деградированный
// результат не отравляет кэш: после восстановления хранилища следующий
// вызов вычисляет счётчик заново.
func TestQuestionService_Count_DegradedNotCached(t *testing.T) {
	failing := true
	repo := &mockQuestionRepo{
		countByFilterFn: func(_ context.Context, _ repository.QuestionFilter) (int, error) {
			if failing {
				return 0, errors.New("connection refused")
			}
			return 42, nil
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})
	spec := model.NewFilterSpec(nil, []int{2025}, nil, nil, nil, "")

	if result, _ := svc.Count(context.Background(), spec); result.Count != 0 {
		t.Fatalf("Count = %d при отказе хранилища, ожидался 0", result.Count)
	}

	failing = false
	result, err := svc.Count(context.Background(), spec)
	if err != nil {
		t.Fatalf("Count ошибка: %v", err)
	}
	if result.Count != 42 || !result.Exact {
		t.Errorf("result = %+v после восстановления, ожидался {Count:42 Exact:true}", result)
	}
	if result.Cached {
		t.Error("Cached = true, деградированный ноль не должен был попасть в кэш")
	}
}

// --- Тесты Search ---

// TestQuestionService_Search_ExactPath проверяет поиск без статус-тегов.
func TestQuestionService_Search_ExactPath(t *testing.T) {
	records := []*model.QuestionRecord{
		{ID: "q1", Year: 2025},
		{ID: "q2", Year: 2025},
	}
	repo := &mockQuestionRepo{
		countByFilterFn: func(_ context.Context, _ repository.QuestionFilter) (int, error) {
			return 5, nil
		},
		fetchPageFn: func(_ context.Context, _ repository.QuestionFilter, limit, offset int) ([]*model.QuestionRecord, error) {
			if limit != 2 || offset != 0 {
				t.Errorf("limit/offset = %d/%d, ожидались 2/0", limit, offset)
			}
			return records, nil
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})

	spec := model.NewFilterSpec(nil, []int{2025}, nil, nil, nil, "")

	result, err := svc.Search(context.Background(), spec, 2, 0)
	if err != nil {
		t.Fatalf("Search ошибка: %v", err)
	}
	if result.Total != 5 || !result.Exact {
		t.Errorf("Total = %d Exact = %v, ожидались 5/true", result.Total, result.Exact)
	}
	if len(result.Questions) != 2 {
		t.Errorf("len(Questions) = %d, ожидался 2", len(result.Questions))
	}
	if !result.HasMore {
		t.Error("HasMore = false, ожидался true (total=5, offset+items=2)")
	}

	// Повторный вызов — из кэша
	result, err = svc.Search(context.Background(), spec, 2, 0)
	if err != nil {
		t.Fatalf("Search ошибка: %v", err)
	}
	if !result.Cached {
		t.Error("Cached = false для повторного вызова")
	}
}

// TestQuestionService_Search_StatusPath проверяет точный путь сверки:
// полный список кандидатов фильтруется по истории, пагинация в памяти.
func TestQuestionService_Search_StatusPath(t *testing.T) {
	repo := &mockQuestionRepo{
		fetchIDsFn: func(_ context.Context, _ repository.QuestionFilter, limit int) ([]string, error) {
			if limit != 0 {
				t.Errorf("limit = %d, ожидался 0 (полная материализация)", limit)
			}
			return []string{"q1", "q2", "q3", "q4", "q5"}, nil
		},
		fetchByIDsFn: func(_ context.Context, ids []string) ([]*model.QuestionRecord, error) {
			out := make([]*model.QuestionRecord, 0, len(ids))
			for _, id := range ids {
				out = append(out, &model.QuestionRecord{ID: id})
			}
			return out, nil
		},
	}
	history := &mockHistoryRepo{
		flagsFn: func(_ context.Context, _ string, _ []string) ([]model.UserFlag, error) {
			return []model.UserFlag{
				{QuestionID: "q2", IsFlagged: true},
				{QuestionID: "q4", IsFlagged: true},
			}, nil
		},
	}
	svc := newTestQuestionService(repo, history)

	spec := model.NewFilterSpec(nil, nil, nil, nil,
		[]model.StatusTag{model.StatusFlagged}, "user-1")

	// Совпали q2 и q4; страница limit=1 offset=1 → q4
	result, err := svc.Search(context.Background(), spec, 1, 1)
	if err != nil {
		t.Fatalf("Search ошибка: %v", err)
	}
	if result.Total != 2 || !result.Exact {
		t.Errorf("Total = %d Exact = %v, ожидались 2/true", result.Total, result.Exact)
	}
	if len(result.Questions) != 1 || result.Questions[0].ID != "q4" {
		t.Errorf("Questions = %v, ожидался [q4]", result.Questions)
	}
	if result.HasMore {
		t.Error("HasMore = true, ожидался false (offset+items = total)")
	}
}

// TestQuestionService_Search_StoreErrorDegrades проверяет деградацию
// поиска до пустой страницы.
func TestQuestionService_Search_StoreErrorDegrades(t *testing.T) {
	repo := &mockQuestionRepo{
		countByFilterFn: func(_ context.Context, _ repository.QuestionFilter) (int, error) {
			return 0, errors.New("connection refused")
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})

	spec := model.NewFilterSpec(nil, []int{2025}, nil, nil, nil, "")

	result, err := svc.Search(context.Background(), spec, 50, 0)
	if err != nil {
		t.Fatalf("Search вернул ошибку %v, ожидалась деградация", err)
	}
	if len(result.Questions) != 0 || result.Exact {
		t.Errorf("result = %+v, ожидалась пустая страница с Exact=false", result)
	}
}

// TestQuestionService_Search_StatusRequiresUser проверяет отказ
// анонимному поиску со статус-тегами.
func TestQuestionService_Search_StatusRequiresUser(t *testing.T) {
	svc := newTestQuestionService(&mockQuestionRepo{}, &mockHistoryRepo{})

	spec := model.NewFilterSpec(nil, nil, nil, nil,
		[]model.StatusTag{model.StatusFlagged}, model.AnonymousUserID)

	if _, err := svc.Search(context.Background(), spec, 50, 0); !errors.Is(err, ErrStatusRequiresUser) {
		t.Errorf("err = %v, ожидался ErrStatusRequiresUser", err)
	}
}

// --- Тесты GetQuestion ---

// TestQuestionService_GetQuestion_CachesRecord проверяет LRU-кэширование
// отдельных вопросов.
func TestQuestionService_GetQuestion_CachesRecord(t *testing.T) {
	callCount := 0
	repo := &mockQuestionRepo{
		getByIDFn: func(_ context.Context, questionID string) (*model.QuestionRecord, error) {
			callCount++
			return &model.QuestionRecord{ID: questionID, Year: 2025}, nil
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})

	for i := 0; i < 3; i++ {
		record, err := svc.GetQuestion(context.Background(), "q-uuid-1")
		if err != nil {
			t.Fatalf("GetQuestion #%d ошибка: %v", i+1, err)
		}
		if record.ID != "q-uuid-1" {
			t.Errorf("ID = %q, ожидался q-uuid-1", record.ID)
		}
	}

	if callCount != 1 {
		t.Errorf("GetByID вызван %d раз, ожидался 1 (LRU-кэш)", callCount)
	}
}

// TestQuestionService_GetQuestion_NotFound проверяет маппинг
// repository.ErrNotFound → service.ErrNotFound.
func TestQuestionService_GetQuestion_NotFound(t *testing.T) {
	repo := &mockQuestionRepo{
		getByIDFn: func(_ context.Context, _ string) (*model.QuestionRecord, error) {
			return nil, repository.ErrNotFound
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})

	if _, err := svc.GetQuestion(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, ожидался ErrNotFound", err)
	}
}

// --- Тесты FilterOptions ---

// TestQuestionService_FilterOptions проверяет чтение и кэширование опций.
func TestQuestionService_FilterOptions(t *testing.T) {
	callCount := 0
	repo := &mockQuestionRepo{
		filterOptionsFn: func(_ context.Context) (model.FilterOptions, error) {
			callCount++
			return model.FilterOptions{
				Specialties:  []string{"Кардиология"},
				Years:        []int{2024, 2025},
				Difficulties: []int{1, 2, 3, 4, 5},
			}, nil
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})

	opts, cached, err := svc.FilterOptions(context.Background())
	if err != nil {
		t.Fatalf("FilterOptions ошибка: %v", err)
	}
	if cached {
		t.Error("cached = true для первого вызова")
	}
	if len(opts.Years) != 2 {
		t.Errorf("Years = %v, ожидались 2 года", opts.Years)
	}

	_, cached, err = svc.FilterOptions(context.Background())
	if err != nil {
		t.Fatalf("FilterOptions ошибка: %v", err)
	}
	if !cached {
		t.Error("cached = false для повторного вызова")
	}
	if callCount != 1 {
		t.Errorf("репозиторий вызван %d раз, ожидался 1", callCount)
	}
}

// TestQuestionService_FilterOptions_ErrorDegrades проверяет деградацию
// до пустых опций при ошибке хранилища.
func TestQuestionService_FilterOptions_ErrorDegrades(t *testing.T) {
	repo := &mockQuestionRepo{
		filterOptionsFn: func(_ context.Context) (model.FilterOptions, error) {
			return model.FilterOptions{}, errors.New("connection refused")
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})

	opts, _, err := svc.FilterOptions(context.Background())
	if err != nil {
		t.Fatalf("FilterOptions вернул ошибку %v, ожидалась деградация", err)
	}
	if len(opts.Specialties) != 0 || len(opts.Years) != 0 {
		t.Errorf("opts = %+v, ожидались пустые опции", opts)
	}
}

// --- Тесты инвалидации ---

// TestQuestionService_InvalidateCache проверяет, что инвалидация
// сбрасывает кэшированные счётчики и возвращает новую версию схемы.
func TestQuestionService_InvalidateCache(t *testing.T) {
	callCount := 0
	repo := &mockQuestionRepo{
		countByFilterFn: func(_ context.Context, _ repository.QuestionFilter) (int, error) {
			callCount++
			return 42 + callCount, nil
		},
	}
	svc := newTestQuestionService(repo, &mockHistoryRepo{})
	spec := model.NewFilterSpec(nil, []int{2025}, nil, nil, nil, "")

	if _, err := svc.Count(context.Background(), spec); err != nil {
		t.Fatalf("Count ошибка: %v", err)
	}

	if version := svc.InvalidateCache(); version != 2 {
		t.Errorf("version = %d, ожидалась 2", version)
	}

	// После инвалидации счётчик вычисляется заново
	result, err := svc.Count(context.Background(), spec)
	if err != nil {
		t.Fatalf("Count ошибка: %v", err)
	}
	if result.Cached {
		t.Error("Cached = true после инвалидации")
	}
	if callCount != 2 {
		t.Errorf("CountByFilter вызван %d раз, ожидался 2", callCount)
	}
}

// --- Тесты вспомогательных функций ---

// TestPaginateIDs проверяет защиту границ пагинации в памяти.
func TestPaginateIDs(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	if got := paginateIDs(ids, 2, 0); len(got) != 2 || got[0] != "a" {
		t.Errorf("paginateIDs(2,0) = %v, ожидался [a b]", got)
	}
	if got := paginateIDs(ids, 2, 4); len(got) != 1 || got[0] != "e" {
		t.Errorf("paginateIDs(2,4) = %v, ожидался [e]", got)
	}
	if got := paginateIDs(ids, 2, 5); got != nil {
		t.Errorf("paginateIDs(2,5) = %v, ожидался nil", got)
	}
	if got := paginateIDs(ids, 10, 0); len(got) != 5 {
		t.Errorf("paginateIDs(10,0) = %v, ожидались все 5", got)
	}
}
